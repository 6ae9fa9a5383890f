package banksdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
)

// Backend paths used by the session itself.
const (
	LoginPath     = "/auth/login/"
	MFAPath       = "/auth/login/mfa/"
	FaceLoginPath = "/auth/face-login/"
	RegisterPath  = "/auth/register/"
	ProfilePath   = "/auth/profile/"
	LogoutPath    = "/auth/logout/"
)

// LogoutReason tells an OnLogout hook why the session ended.
type LogoutReason string

const (
	LogoutSignedOut LogoutReason = "signed_out"
	LogoutExpired   LogoutReason = "session_expired"
)

// Config configures a Session. Only BaseURL is required.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	// Store defaults to a MemoryStore.
	Store CredentialStore

	Logger         *slog.Logger
	RenewalTimeout time.Duration

	// OnLogout fires after credentials were cleared, either by Logout or
	// by a failed renewal. Callers route the user to sign-in from here.
	OnLogout func(ctx context.Context, reason LogoutReason)
}

// Session is the authenticated surface of the client. It owns the cached
// user and is the only writer of the credential store besides the renewal
// coordinator it builds.
type Session struct {
	store       CredentialStore
	dispatcher  *Dispatcher
	coordinator *Coordinator
	authorized  Sender
	logger      *slog.Logger
	onLogout    func(ctx context.Context, reason LogoutReason)

	mu   sync.RWMutex
	user *User
}

// New wires a Dispatcher, a Coordinator and the credential store into a
// Session.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	dispatcher, err := NewDispatcher(cfg.BaseURL, cfg.HTTPClient, cfg.Store)
	if err != nil {
		return nil, err
	}

	s := &Session{
		store:      cfg.Store,
		dispatcher: dispatcher,
		logger:     cfg.Logger,
		onLogout:   cfg.OnLogout,
	}
	s.coordinator = NewCoordinator(dispatcher, cfg.Store,
		WithRenewalTimeout(cfg.RenewalTimeout),
		WithCoordinatorLogger(cfg.Logger),
		WithExpiredHandler(s.expired),
	)
	s.authorized = s.coordinator.Wrap(dispatcher)
	return s, nil
}

// Authorized returns the renewal-aware Sender for protected endpoints.
func (s *Session) Authorized() Sender { return s.authorized }

// Coordinator exposes the renewal coordinator, mainly for its counters.
func (s *Session) Coordinator() *Coordinator { return s.coordinator }

// Store returns the credential store the session writes to.
func (s *Session) Store() CredentialStore { return s.store }

// Login exchanges email and password for a credential pair and returns the
// signed-in user. Rejected credentials yield *AuthError; an account with a
// second factor yields *MFARequiredError.
func (s *Session) Login(ctx context.Context, email, password string) (*User, error) {
	if err := newValidationError(validateLogin(email, password)); err != nil {
		return nil, err
	}
	return s.exchangeCredential(ctx, LoginPath, loginRequest{Email: email, Password: password})
}

// CompleteMFA finishes a login that returned *MFARequiredError.
func (s *Session) CompleteMFA(ctx context.Context, challenge *MFARequiredError, code string) (*User, error) {
	if challenge == nil || challenge.MFAToken == "" {
		return nil, errors.New("missing MFA challenge")
	}
	if err := newValidationError(validateOTP(code)); err != nil {
		return nil, err
	}
	return s.exchangeCredential(ctx, MFAPath, mfaRequest{MFAToken: challenge.MFAToken, Code: code})
}

// LoginWithFace signs in with a captured image. An unrecognised face is an
// *AuthError; it never triggers renewal.
func (s *Session) LoginWithFace(ctx context.Context, image EncodedImage) (*User, error) {
	if image.IsZero() {
		return nil, &ValidationError{Fields: map[string]string{"image": "No image provided"}}
	}
	return s.exchangeCredential(ctx, FaceLoginPath, faceLoginRequest{Image: image})
}

// LoginWithCamera captures a still through c and signs in with it. Capture
// failures are returned unchanged and leave the session untouched.
func (s *Session) LoginWithCamera(ctx context.Context, c Capturer) (*User, error) {
	image, err := c.CaptureStillImage(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoginWithFace(ctx, image)
}

func (s *Session) exchangeCredential(ctx context.Context, path string, payload any) (*User, error) {
	req, err := NewJSONRequest(http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	req.Anonymous = true

	resp, err := s.dispatcher.Send(ctx, req)
	if err != nil {
		return nil, credentialError(err)
	}

	var tokens tokenResponse
	if err := resp.Decode(&tokens); err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		return nil, errors.New("login response missing access credential")
	}

	if err := s.store.SetPair(ctx, tokens.Access, tokens.Refresh); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	user := tokens.User
	if user == nil {
		user, err = s.fetchProfile(ctx)
		if err != nil {
			// Half a login is worse than none.
			_ = s.store.Clear(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
	}

	s.setUser(user)
	s.logger.InfoContext(ctx, "signed in",
		"user_id", user.ID,
		"via", path,
		"access_fp", cryptox.Redact(tokens.Access),
	)
	return cloneUser(user), nil
}

// Register creates an account. Input is checked locally first, so a
// mismatched confirmation never reaches the network. The new user is not
// signed in.
func (s *Session) Register(ctx context.Context, in RegisterRequest) (*User, error) {
	if err := newValidationError(in.Validate()); err != nil {
		return nil, err
	}

	req, err := NewJSONRequest(http.MethodPost, RegisterPath, in)
	if err != nil {
		return nil, err
	}
	req.Anonymous = true

	resp, err := s.dispatcher.Send(ctx, req)
	if err != nil {
		return nil, fieldErrors(err)
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser reports who is signed in. It returns the cached user when
// there is one, nil when no access credential is stored, and otherwise
// asks the backend, counting renewal-then-success as signed in. A session
// that cannot be renewed yields (nil, nil); transport failures are returned.
func (s *Session) CurrentUser(ctx context.Context) (*User, error) {
	if u := s.cachedUser(); u != nil {
		return u, nil
	}

	access, err := s.store.Get(ctx, KindAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to read access credential: %w", err)
	}
	if access == "" {
		return nil, nil
	}

	user, err := s.fetchProfile(ctx)
	switch {
	case errors.Is(err, ErrSessionExpired), isUnauthorized(err):
		return nil, nil
	case err != nil:
		return nil, err
	}

	s.setUser(user)
	return cloneUser(user), nil
}

// Logout tells the backend the session is over, then clears local state no
// matter what the backend said.
func (s *Session) Logout(ctx context.Context) error {
	refresh, _ := s.store.Get(ctx, KindRefresh)
	access, _ := s.store.Get(ctx, KindAccess)

	if access != "" || refresh != "" {
		if err := s.notifyLogout(ctx, refresh); err != nil {
			s.logger.WarnContext(ctx, "logout notification failed", "err", err)
		}
	}

	s.setUser(nil)
	if err := s.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	s.logger.InfoContext(ctx, "signed out")
	if s.onLogout != nil {
		s.onLogout(ctx, LogoutSignedOut)
	}
	return nil
}

// notifyLogout goes through the raw dispatcher: a stale access credential
// must not start a renewal just to sign out.
func (s *Session) notifyLogout(ctx context.Context, refresh string) error {
	req, err := NewJSONRequest(http.MethodPost, LogoutPath, logoutRequest{Refresh: refresh})
	if err != nil {
		return err
	}
	_, err = s.dispatcher.Send(ctx, req)
	return err
}

func (s *Session) fetchProfile(ctx context.Context) (*User, error) {
	var user User
	if err := s.do(ctx, NewRequest(http.MethodGet, ProfilePath), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// expired is the coordinator's forced logout hook.
func (s *Session) expired(ctx context.Context, _ error) {
	s.setUser(nil)
	if s.onLogout != nil {
		s.onLogout(ctx, LogoutExpired)
	}
}

// do sends req through the renewal path and decodes the body into out when
// out is non-nil.
func (s *Session) do(ctx context.Context, req *Request, out any) error {
	resp, err := s.authorized.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (s *Session) cachedUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	s.user = cloneUser(u)
	s.mu.Unlock()
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
