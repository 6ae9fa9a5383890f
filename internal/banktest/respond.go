package banktest

import (
	"net/http"
	"strconv"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
)

// fieldErrors is a DRF validation body: field name to messages.
type fieldErrors map[string][]string

func (e fieldErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	httpx.WriteJSON(w, status, map[string]string{"detail": detail})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpx.WriteJSON(w, status, map[string]string{"error": msg})
}

func writeTokenInvalid(w http.ResponseWriter, status int) {
	httpx.WriteJSON(w, status, map[string]string{
		"detail": "Token is invalid or expired",
		"code":   "token_not_valid",
	})
}

func writeNotFound(w http.ResponseWriter, model string) {
	writeDetail(w, http.StatusNotFound, "No "+model+" matches the given query.")
}

// pathID parses the numeric {id} wildcard. Anything else is a 404, as
// with the backend's integer routes.
func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil && id > 0
}
