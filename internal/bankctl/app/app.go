// Package app wires configuration, the credential store and the banking
// session into the bankctl command line client.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/belgacembalti/Secure-Digital-Card/internal/capture"
	"github.com/belgacembalti/Secure-Digital-Card/internal/credstore/sqlite"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/cryptox"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"

	serviceName = "bankctl"
)

// Application holds everything a sub-command needs.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store   *sqlite.Store
	session *banksdk.Session

	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option customizes an Application, mostly for tests.
type Option func(*Application)

// WithIO replaces the standard streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(app *Application) {
		app.stdin = bufio.NewReader(stdin)
		app.stdout = stdout
		app.stderr = stderr
	}
}

// New opens the credential store and builds the session.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg:    cfg,
		stdin:  bufio.NewReader(os.Stdin),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}

	app.logger = slogx.New(slogx.Config{
		Service: serviceName,
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  app.stderr,
	})

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initSession(); err != nil {
		_ = app.store.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) initStore(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(app.cfg.Store.DatabaseFile), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	key, err := cryptox.LoadMasterKey(app.cfg.Store.MasterKey, app.cfg.Store.MasterKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.Store.DatabaseFile)
	store, err := sqlite.NewStore(ctx, dsn, key)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	app.store = store

	app.logger.Debug("credential store ready", "path", app.cfg.Store.DatabaseFile)
	return nil
}

func (app *Application) initSession() error {
	var transport http.RoundTripper = http.DefaultTransport
	if app.cfg.RateLimit.Enabled() {
		transport = httpx.NewThrottledTransport(transport, app.cfg.RateLimit)
	}
	transport = slogx.NewTransport(transport, app.logger)

	session, err := banksdk.New(banksdk.Config{
		BaseURL: app.cfg.API.BaseURL,
		HTTPClient: &http.Client{
			Timeout:   app.cfg.API.Timeout,
			Transport: userAgent{base: transport},
		},
		Store:          app.store,
		Logger:         app.logger,
		RenewalTimeout: app.cfg.API.RenewalTimeout,
		OnLogout:       app.onLogout,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	app.session = session
	return nil
}

func (app *Application) onLogout(_ context.Context, reason banksdk.LogoutReason) {
	if reason == banksdk.LogoutExpired {
		fmt.Fprintln(app.stderr, "Your session has expired. Sign in again with: bankctl login")
	}
}

// capturer picks the still source for face-login: an image file when
// given, otherwise the configured camera command.
func (app *Application) capturer(imagePath string) (banksdk.Capturer, error) {
	if imagePath != "" {
		return capture.FileCapturer{Path: imagePath}, nil
	}
	if app.cfg.Capture.Command == "" {
		return nil, errors.New("no camera configured: pass --image or set capture.command")
	}
	return &capture.CommandCapturer{
		Command: app.cfg.Capture.Command,
		Args:    app.cfg.Capture.Args,
		Timeout: app.cfg.Capture.Timeout,
		Logger:  app.logger,
	}, nil
}

// Close releases the credential store.
func (app *Application) Close() error {
	if app.store == nil {
		return nil
	}
	return app.store.Close()
}

// prompt reads one line from stdin after printing label to stderr.
func (app *Application) prompt(label string) (string, error) {
	fmt.Fprint(app.stderr, label)
	line, err := app.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type userAgent struct {
	base http.RoundTripper
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", serviceName+"/"+BuildVersion)
	}
	return u.base.RoundTrip(req)
}
