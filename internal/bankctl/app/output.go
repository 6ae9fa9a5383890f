package app

import (
	"encoding/json"
	"io"
	"strings"
	"text/tabwriter"
)

func (app *Application) jsonOutput() bool {
	return strings.EqualFold(app.cfg.Output, "json")
}

// render writes v as indented JSON in json mode, otherwise calls text.
func (app *Application) render(v any, text func(w io.Writer)) error {
	if app.jsonOutput() || text == nil {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(app.stdout)
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
