package banksdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ============================================================================
// HTTPError - any non-2xx backend response
// ============================================================================

// HTTPError is returned by the Dispatcher for every response outside 2xx.
// Body holds the raw response so callers can inspect backend-specific
// payloads.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	msg := e.Detail()
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, msg)
}

// Detail extracts the human readable message from a {"detail": ...} or
// {"error": ...} body. It returns "" when the body carries neither.
func (e *HTTPError) Detail() string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}

// IsStatus reports whether err wraps an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

func isUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// ============================================================================
// Authentication errors
// ============================================================================

// AuthError means the backend did not accept the presented credential
// (password, face image or second factor). The session is left untouched.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// MFARequiredError is returned by Login when the account has a second factor
// enabled. Pass it to CompleteMFA together with the one-time code.
type MFARequiredError struct {
	MFAToken string   `json:"mfa_token"`
	Methods  []string `json:"mfa_methods"`
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("MFA required: available methods=%v", e.Methods)
}

// ErrSessionExpired is matched by every SessionExpiredError.
var ErrSessionExpired = errors.New("session expired")

// ErrNoRefreshCredential is the cause recorded when renewal was impossible
// because no refresh credential was stored.
var ErrNoRefreshCredential = errors.New("no refresh credential stored")

// SessionExpiredError is returned once the session could not be renewed.
// By the time a caller sees it the credentials have already been cleared.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return ErrSessionExpired.Error()
	}
	return ErrSessionExpired.Error() + ": " + e.Cause.Error()
}

func (e *SessionExpiredError) Unwrap() error { return e.Cause }

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

// ============================================================================
// ValidationError - per-field input problems
// ============================================================================

// ValidationError reports rejected input keyed by wire field name, e.g.
// "password2" for a registration confirmation mismatch. It is produced both
// by local checks and from backend 400 field errors.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message for name, or "".
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

func newValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// parseFieldErrors decodes a DRF style error body: {"field": ["msg", ...]},
// {"field": "msg"}, or {"detail"/"error": "msg"}. Multiple messages for one
// field are joined with a space.
func parseFieldErrors(body []byte) map[string]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			fields[name] = strings.Join(list, " ")
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			fields[name] = single
		}
	}
	return fields
}

// fieldErrors turns a backend 400 carrying field errors into a
// ValidationError and leaves every other error alone.
func fieldErrors(err error) error {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadRequest {
		return err
	}
	if fields := parseFieldErrors(httpErr.Body); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return err
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// credentialError translates the failure of a credential exchange (login,
// face login, MFA) into the caller facing taxonomy.
func credentialError(err error) error {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	switch httpErr.Status {
	case http.StatusConflict:
		var mfa struct {
			Code     string   `json:"error"`
			MFAToken string   `json:"mfa_token"`
			Methods  []string `json:"mfa_methods"`
		}
		if json.Unmarshal(httpErr.Body, &mfa) == nil && mfa.Code == "mfa_required" && mfa.MFAToken != "" {
			return &MFARequiredError{MFAToken: mfa.MFAToken, Methods: mfa.Methods}
		}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: httpErr.Status, Message: httpErr.Detail(), Err: httpErr}
	}
	return err
}
