package app

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/belgacembalti/Secure-Digital-Card/internal/capture"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitAuth       = 3
	ExitValidation = 4
	ExitCamera     = 5
)

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	var (
		usage   *UsageError
		invalid *banksdk.ValidationError
		authErr *banksdk.AuthError
		mfa     *banksdk.MFARequiredError
		camera  *capture.CameraError
	)

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage):
		return ExitUsage
	case errors.As(err, &invalid):
		return ExitValidation
	case errors.As(err, &authErr), errors.As(err, &mfa),
		errors.Is(err, banksdk.ErrSessionExpired),
		errors.Is(err, banksdk.ErrNotSignedIn),
		banksdk.IsStatus(err, http.StatusUnauthorized):
		return ExitAuth
	case errors.As(err, &camera):
		return ExitCamera
	default:
		return ExitFailure
	}
}

// Explain renders err for a person at a terminal.
func Explain(err error) string {
	var (
		invalid *banksdk.ValidationError
		authErr *banksdk.AuthError
		mfa     *banksdk.MFARequiredError
		httpErr *banksdk.HTTPError
	)

	switch {
	case errors.As(err, &invalid):
		fields := make([]string, 0, len(invalid.Fields))
		for f := range invalid.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		var b strings.Builder
		b.WriteString("invalid input:")
		for _, f := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", f, invalid.Fields[f])
		}
		return b.String()
	case errors.As(err, &mfa):
		return fmt.Sprintf("second factor required: finish with bankctl mfa --token %s --code CODE", mfa.MFAToken)
	case errors.As(err, &authErr):
		if authErr.Message != "" {
			return "sign-in rejected: " + authErr.Message
		}
		return "sign-in rejected"
	case errors.Is(err, banksdk.ErrSessionExpired):
		return "session expired: sign in again with bankctl login"
	case errors.Is(err, banksdk.ErrNotSignedIn):
		return "not signed in: run bankctl login"
	case errors.As(err, &httpErr):
		if d := httpErr.Detail(); d != "" {
			return fmt.Sprintf("%s (HTTP %d)", d, httpErr.Status)
		}
	}
	return err.Error()
}
