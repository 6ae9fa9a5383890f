package banksdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct horse battery"
	testFace     = EncodedImage("data:image/jpeg;base64,ZmFjZQ==")
	testMFAToken = "mfa-challenge"
	testOTP      = "123456"
)

var testUser = User{ID: "7", Username: "ada", Email: testEmail, IsVerified: true}

// testBackend is a scripted stand-in for the banking API. Only the current
// access credential is accepted on protected routes.
type testBackend struct {
	t   *testing.T
	mux *http.ServeMux
	srv *httptest.Server

	mu            sync.Mutex
	access        string
	refresh       string
	rotate        bool
	seq           int
	mfa           bool
	refreshStatus int
	refreshGate   chan struct{}
	logoutStatus  int
	hits          map[string]int
	authHeaders   map[string]int
	lastRequestID map[string][]string

	rejected     atomic.Int64
	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	b := &testBackend{
		t:             t,
		mux:           http.NewServeMux(),
		hits:          make(map[string]int),
		authHeaders:   make(map[string]int),
		lastRequestID: make(map[string][]string),
	}

	b.mux.HandleFunc("POST /auth/login/", b.handleLogin)
	b.mux.HandleFunc("POST /auth/login/refresh/", b.handleRefresh)
	b.mux.HandleFunc("POST /auth/login/mfa/", b.handleMFA)
	b.mux.HandleFunc("POST /auth/face-login/", b.handleFace)
	b.mux.HandleFunc("POST /auth/register/", b.handleRegister)
	b.mux.HandleFunc("POST /auth/logout/", b.handleLogout)
	b.protected("GET /auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, testUser)
	})
	b.protected("GET /cards/", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []Card{})
	})

	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

// protected registers fn behind bearer checking and per-URI counters.
func (b *testBackend) protected(pattern string, fn http.HandlerFunc) {
	b.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.RequestURI()
		header := r.Header.Get("Authorization")

		b.mu.Lock()
		b.hits[key]++
		if header != "" {
			b.authHeaders[key]++
		}
		b.lastRequestID[key] = append(b.lastRequestID[key], r.Header.Get(slogx.RequestIDHeader))
		valid := b.access != "" && header == "Bearer "+b.access
		b.mu.Unlock()

		if !valid {
			b.rejected.Add(1)
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		fn(w, r)
	})
}

func (b *testBackend) set(fn func(b *testBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *testBackend) hitsFor(uri string) (hits, withAuth int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[uri], b.authHeaders[uri]
}

func (b *testBackend) currentAccess() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.access
}

// issueLocked mints a new pair. Callers hold b.mu.
func (b *testBackend) issueLocked() TokenPair {
	b.seq++
	b.access = fmt.Sprintf("access-%d", b.seq)
	b.refresh = fmt.Sprintf("refresh-%d", b.seq)
	return TokenPair{Access: b.access, Refresh: b.refresh}
}

func (b *testBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()

	if body.Email != testEmail || body.Password != testPassword {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
		return
	}
	if b.mfa {
		writeTestJSON(w, http.StatusConflict, map[string]any{
			"error":       "mfa_required",
			"mfa_token":   testMFAToken,
			"mfa_methods": []string{"totp"},
		})
		return
	}
	writeTestJSON(w, http.StatusOK, b.issueLocked())
}

func (b *testBackend) handleMFA(w http.ResponseWriter, r *http.Request) {
	var body mfaRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()

	if body.MFAToken != testMFAToken || body.Code != testOTP {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid code"})
		return
	}
	writeTestJSON(w, http.StatusOK, b.issueLocked())
}

func (b *testBackend) handleFace(w http.ResponseWriter, r *http.Request) {
	var body faceLoginRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case body.Image.IsZero():
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
	case body.Image != testFace:
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "Face not recognized"})
	default:
		pair := b.issueLocked()
		user := testUser
		writeTestJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: &user})
	}
}

func (b *testBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var body refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshStatus != 0 {
		writeTestJSON(w, b.refreshStatus, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	if body.Refresh == "" || body.Refresh != b.refresh {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	b.seq++
	b.access = fmt.Sprintf("access-%d", b.seq)
	resp := TokenPair{Access: b.access}
	if b.rotate {
		b.refresh = fmt.Sprintf("refresh-%d", b.seq)
		resp.Refresh = b.refresh
	}
	writeTestJSON(w, http.StatusOK, resp)
}

func (b *testBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Username == "taken" {
		writeTestJSON(w, http.StatusBadRequest, map[string][]string{
			"username": {"A user with that username already exists."},
		})
		return
	}
	writeTestJSON(w, http.StatusCreated, User{ID: "8", Username: body.Username, Email: body.Email})
}

func (b *testBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)

	b.mu.Lock()
	status := b.logoutStatus
	b.mu.Unlock()

	if status == 0 {
		status = http.StatusResetContent
	}
	w.WriteHeader(status)
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logoutRecorder collects OnLogout calls.
type logoutRecorder struct {
	mu      sync.Mutex
	reasons []LogoutReason
}

func (l *logoutRecorder) record(_ context.Context, reason LogoutReason) {
	l.mu.Lock()
	l.reasons = append(l.reasons, reason)
	l.mu.Unlock()
}

func (l *logoutRecorder) all() []LogoutReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogoutReason(nil), l.reasons...)
}

func newTestSession(t *testing.T, b *testBackend) (*Session, *logoutRecorder) {
	t.Helper()

	rec := &logoutRecorder{}
	s, err := New(Config{
		BaseURL:  b.srv.URL,
		Logger:   slogx.Discard(),
		OnLogout: rec.record,
	})
	require.NoError(t, err)
	return s, rec
}

// signIn puts a valid pair in both the backend and the session store.
func signIn(t *testing.T, b *testBackend, s *Session) TokenPair {
	t.Helper()

	b.mu.Lock()
	pair := b.issueLocked()
	b.mu.Unlock()

	require.NoError(t, s.Store().SetPair(context.Background(), pair.Access, pair.Refresh))
	return pair
}

// expireAccess makes the backend reject every access credential until the
// next refresh.
func (b *testBackend) expireAccess() {
	b.set(func(b *testBackend) { b.access = "" })
}
