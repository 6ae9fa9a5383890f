// Package banktest is an in-process fake of the Secure Digital Card REST
// backend. It speaks the same wire format as the real service (SimpleJWT
// credential pairs, DRF error bodies, decimal strings) and exposes knobs to
// expire credentials and counters to observe what a client sent.
//
// It does not import banksdk: tests against it check the client against the
// wire format, not against the client's own types.
package banktest

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
)

// BasePath is where the API is mounted, as on the real deployment.
const BasePath = "/api"

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

type Options struct {
	// SigningKey signs access credentials. A random key is used when empty.
	SigningKey []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RotateRefresh issues a new refresh credential on every renewal and
	// blacklists the one that was presented.
	RotateRefresh bool

	// LoginLimit throttles the credential endpoints per client IP. The zero
	// value disables throttling.
	LoginLimit httpx.RateLimitConfig

	Logger *slog.Logger
	Now    func() time.Time
}

// Server is an http.Handler serving the backend API under BasePath.
type Server struct {
	// URL is the API base URL once the server was started with Start.
	URL string

	opts        Options
	mux         *http.ServeMux
	middlewares []httpx.Middleware
	logger      *slog.Logger
	sealer      *cryptox.Sealer

	mu          sync.Mutex
	data        *state
	live        map[string]string // access jti -> user id
	grants      map[string]*refreshGrant
	challenges  map[string]mfaChallenge
	faces       map[string]string // face fingerprint -> user id
	refreshFail int
	authHeaders map[string]int
	hits        map[string]int

	refreshCalls atomic.Int64
	loginCalls   atomic.Int64
}

func New(opts Options) (*Server, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.SigningKey) == 0 {
		key, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		opts.SigningKey = []byte(key)
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}
	sealer, err := cryptox.NewSealer(opts.SigningKey, salt)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:        opts,
		mux:         http.NewServeMux(),
		logger:      opts.Logger,
		sealer:      sealer,
		data:        newState(),
		live:        make(map[string]string),
		grants:      make(map[string]*refreshGrant),
		challenges:  make(map[string]mfaChallenge),
		faces:       make(map[string]string),
		authHeaders: make(map[string]int),
		hits:        make(map[string]int),
	}
	s.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(s.logger),
	}
	s.routes()
	return s, nil
}

// Start serves s on a loopback listener for the duration of the test.
func Start(tb testing.TB, opts Options) *Server {
	tb.Helper()

	if opts.Logger == nil {
		opts.Logger = slogx.Discard()
	}
	s, err := New(opts)
	if err != nil {
		tb.Fatalf("banktest: %v", err)
	}

	ts := httptest.NewServer(s)
	tb.Cleanup(ts.Close)
	s.URL = ts.URL + BasePath
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uri := strings.TrimPrefix(r.URL.RequestURI(), BasePath)

	s.mu.Lock()
	s.hits[uri]++
	if r.Header.Get("Authorization") != "" {
		s.authHeaders[uri]++
	}
	s.mu.Unlock()

	httpx.Chain(s.mux, s.middlewares...).ServeHTTP(w, r)
}

func (s *Server) routes() {
	authed := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, httpx.BearerAuth(s.verifyAccess))
	}
	throttled := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, httpx.RateLimitByIP(s.opts.LoginLimit))
	}

	// Credential endpoints, throttled per IP.
	s.handle("POST /auth/login/", throttled(s.handleLogin))
	s.handle("POST /auth/login/mfa/", throttled(s.handleMFA))
	s.handle("POST /auth/face-login/", throttled(s.handleFaceLogin))
	s.handle("POST /auth/login/refresh/", http.HandlerFunc(s.handleRefresh))
	s.handle("POST /auth/register/", http.HandlerFunc(s.handleRegister))

	s.handle("GET /auth/profile/", authed(s.handleProfile))
	s.handle("PATCH /auth/profile/", authed(s.handleProfileUpdate))
	s.handle("POST /auth/change-password/", authed(s.handleChangePassword))
	s.handle("POST /auth/upload-profile-picture/", authed(s.handleUploadPicture))
	s.handle("POST /auth/logout/", authed(s.handleLogout))

	s.handle("GET /cards/", authed(s.handleListCards))
	s.handle("POST /cards/", authed(s.handleCreateCard))
	s.handle("GET /cards/{id}/", authed(s.handleGetCard))
	s.handle("PATCH /cards/{id}/", authed(s.handleUpdateCard))
	s.handle("DELETE /cards/{id}/", authed(s.handleDeleteCard))
	s.handle("POST /cards/{id}/block/", authed(s.handleBlockCard(true)))
	s.handle("POST /cards/{id}/unblock/", authed(s.handleBlockCard(false)))

	s.handle("GET /transactions/", authed(s.handleListTransactions))
	s.handle("POST /transactions/", authed(s.handleCreateTransaction))
	s.handle("GET /transactions/{id}/", authed(s.handleGetTransaction))

	s.handle("GET /analytics/stats/", authed(s.handleStats))
	s.handle("GET /analytics/dashboard/", authed(s.handleDashboard))
	s.handle("GET /analytics/trends/", authed(s.handleTrends))

	s.handle("GET /monitoring/logs/", authed(s.handleAuditLogs))
	s.handle("GET /monitoring/devices/", authed(s.handleDevices))
}

func (s *Server) handle(pattern string, h http.Handler) {
	method, path, _ := strings.Cut(pattern, " ")
	s.mux.Handle(method+" "+BasePath+path, h)
}

// ============================================================================
// Test knobs and counters
// ============================================================================

// InvalidateAccess makes every access credential issued so far fail with
// 401, as if they all expired at once. Refresh credentials stay valid.
func (s *Server) InvalidateAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.live)
}

// RevokeRefresh blacklists every refresh credential.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		g.blacklisted = true
	}
}

// FailRefresh makes the renewal endpoint answer with status until called
// again with 0.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = status
}

// RefreshCalls counts renewal exchanges received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// LoginCalls counts password, MFA and face sign-in attempts.
func (s *Server) LoginCalls() int64 { return s.loginCalls.Load() }

// Hits returns how many requests arrived for uri ("/cards/?n=1"), and how
// many of those carried an Authorization header.
func (s *Server) Hits(uri string) (total, withAuth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri], s.authHeaders[uri]
}

// IssuePair signs email in without going through the API.
func (s *Server) IssuePair(email string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.data.userByEmail(email)
	if u == nil {
		return "", "", errUnknownUser
	}
	pair, err := s.issuePairLocked(u)
	if err != nil {
		return "", "", err
	}
	return pair.Access, pair.Refresh, nil
}

func (s *Server) now() time.Time { return s.opts.Now().UTC() }
