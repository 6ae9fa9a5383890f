package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/internal/banktest"
	"github.com/belgacembalti/Secure-Digital-Card/internal/capture"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct horse battery"
)

type harness struct {
	t      *testing.T
	bank   *banktest.Server
	cfg    Config
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	bank := banktest.Start(t, banktest.Options{RotateRefresh: true})
	_, err := bank.AddUser(banktest.Account{
		Username: "ada",
		Email:    testEmail,
		Password: testPassword,
		Verified: true,
	})
	require.NoError(t, err)

	return &harness{
		t:    t,
		bank: bank,
		cfg: Config{
			Env:       "test",
			LogLevel:  "error",
			LogFormat: "text",
			Output:    "text",
			API: APIConfig{
				BaseURL:        bank.URL,
				Timeout:        5 * time.Second,
				RenewalTimeout: 5 * time.Second,
			},
			Store: StoreConfig{
				DatabaseFile: filepath.Join(t.TempDir(), "credentials.db"),
				MasterKey:    "test-master-key",
			},
			Capture: CaptureConfig{Timeout: time.Second},
		},
	}
}

// run executes one command line in a fresh Application, the way separate
// bankctl invocations share only the credential database.
func (h *harness) run(stdin string, args ...string) error {
	h.t.Helper()

	h.stdout.Reset()
	h.stderr.Reset()

	app, err := New(context.Background(), h.cfg, WithIO(strings.NewReader(stdin), &h.stdout, &h.stderr))
	require.NoError(h.t, err)
	defer func() { require.NoError(h.t, app.Close()) }()

	return app.Run(context.Background(), args)
}

func (h *harness) login() {
	h.t.Helper()
	require.NoError(h.t, h.run("", "login", "--email", testEmail, "--password", testPassword))
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()
	require.Contains(t, h.stdout.String(), "Signed in as ada <ada@example.com>")

	require.NoError(t, h.run("", "whoami"))
	out := h.stdout.String()
	require.Contains(t, out, "Username")
	require.Contains(t, out, "ada")
	require.Contains(t, out, "Access expires")

	require.NoError(t, h.run("", "logout"))
	require.Contains(t, h.stderr.String(), "Signed out.")

	err := h.run("", "whoami")
	require.ErrorIs(t, err, banksdk.ErrNotSignedIn)
	require.Equal(t, ExitAuth, ExitCode(err))
}

func TestLoginPrompts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run(testEmail+"\n"+testPassword+"\n", "login"))
	require.Contains(t, h.stderr.String(), "Email: ")
	require.Contains(t, h.stderr.String(), "Password: ")
	require.Contains(t, h.stdout.String(), "Signed in as ada")
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.run("", "login", "--email", testEmail, "--password", "wrong")

	var authErr *banksdk.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ExitAuth, ExitCode(err))
	require.True(t, strings.HasPrefix(Explain(err), "sign-in rejected"))
}

func TestLoginWithSecondFactor(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	secret, err := h.bank.EnableTOTP(testEmail)
	require.NoError(t, err)

	require.NoError(t, h.run("", "login", "--email", testEmail, "--password", testPassword, "--totp-secret", secret))
	require.Contains(t, h.stdout.String(), "Signed in as ada")

	require.NoError(t, h.run("", "whoami"))
	require.Contains(t, h.stdout.String(), "Two-factor")
}

func TestFaceLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "face.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	still, err := capture.FileCapturer{Path: path}.CaptureStillImage(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.bank.RegisterFace(testEmail, still.Payload()))

	require.NoError(t, h.run("", "face-login", "--image", path))
	require.Contains(t, h.stdout.String(), "Signed in as ada")

	err = h.run("", "face-login", "--image", filepath.Join(t.TempDir(), "missing.png"))
	require.Equal(t, ExitCamera, ExitCode(err))

	err = h.run("", "face-login")
	require.ErrorContains(t, err, "no camera configured")
}

func TestCardsAndTransactions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	require.NoError(t, h.run("", "cards"))
	require.Contains(t, h.stdout.String(), "No cards.")

	require.NoError(t, h.run("", "card-add",
		"--holder", "Ada Lovelace", "--number", "4111111111111111", "--cvv", "123", "--expiry", "12/29"))
	require.Contains(t, h.stdout.String(), "**** **** **** 1111")

	h.cfg.Output = "json"
	require.NoError(t, h.run("", "cards"))
	var cards []banksdk.Card
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &cards))
	require.Len(t, cards, 1)
	require.Equal(t, "1111", cards[0].MaskedNumber)
	id := cards[0].ID
	h.cfg.Output = "text"

	require.NoError(t, h.run("", "card-limit", id, "250"))
	require.Contains(t, h.stdout.String(), "daily limit is now 250.00")

	require.NoError(t, h.run("", "pay", "--card", id, "--amount", "12.50", "--merchant", "Coffee Lab"))
	require.Contains(t, h.stdout.String(), "PAYMENT of 12.50 at Coffee Lab")

	require.NoError(t, h.run("", "transactions", "--card", id))
	require.Contains(t, h.stdout.String(), "Coffee Lab")

	require.NoError(t, h.run("", "stats", "--period", "week"))
	require.Contains(t, h.stdout.String(), "Spent 12.50 over 1 transactions")

	require.NoError(t, h.run("", "trends"))
	require.Contains(t, h.stdout.String(), "12.50")

	require.NoError(t, h.run("", "dashboard"))
	require.Contains(t, h.stdout.String(), "Cards: 1 (1 active, 0 blocked)")

	require.NoError(t, h.run("", "card-block", id))
	require.Contains(t, h.stdout.String(), "Card "+id+" blocked.")
	require.NoError(t, h.run("", "cards"))
	require.Contains(t, h.stdout.String(), "blocked")
	require.NoError(t, h.run("", "card-unblock", id))

	require.NoError(t, h.run("", "audit"))
	for _, action := range []string{"LOGIN", "ADD_CARD", "LIMIT_CHANGE", "TRANSACTION", "BLOCK_CARD"} {
		require.Contains(t, h.stdout.String(), action)
	}

	require.NoError(t, h.run("", "devices"))
	require.Contains(t, h.stdout.String(), "bankctl")

	require.NoError(t, h.run("", "card-delete", id))
	require.NoError(t, h.run("", "cards"))
	require.Contains(t, h.stdout.String(), "No cards.")
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	err := h.run("", "card-add", "--holder", "Ada", "--number", "12", "--cvv", "1", "--expiry", "13/29")
	require.Equal(t, ExitValidation, ExitCode(err))

	msg := Explain(err)
	require.True(t, strings.HasPrefix(msg, "invalid input:"))
	require.Less(t, strings.Index(msg, "card_number"), strings.Index(msg, "cvv"))
	require.Less(t, strings.Index(msg, "cvv"), strings.Index(msg, "expiry_date"))

	err = h.run("", "pay", "--card", "1", "--amount", "lots", "--merchant", "x")
	require.Equal(t, ExitUsage, ExitCode(err))
}

func TestExpiredSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	h.bank.InvalidateAccess()
	require.NoError(t, h.run("", "cards"), "access is renewed silently")
	require.EqualValues(t, 1, h.bank.RefreshCalls())

	h.bank.InvalidateAccess()
	h.bank.RevokeRefresh()
	err := h.run("", "cards")
	require.ErrorIs(t, err, banksdk.ErrSessionExpired)
	require.Equal(t, ExitAuth, ExitCode(err))
	require.Contains(t, h.stderr.String(), "Your session has expired")

	err = h.run("", "whoami")
	require.ErrorIs(t, err, banksdk.ErrNotSignedIn)
}

func TestRegisterAndProfile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.run("hopper1906\nhopper1906\n", "register", "--username", "grace", "--email", "grace@example.com"))
	require.Contains(t, h.stdout.String(), "Account grace created")

	err := h.run("", "register", "--username", "grace2", "--email", "g2@example.com", "--password", "a1b2c3d4", "--password2", "other")
	require.Equal(t, ExitValidation, ExitCode(err))
	require.Contains(t, Explain(err), "password2")

	require.NoError(t, h.run("", "login", "--email", "grace@example.com", "--password", "hopper1906"))
	require.NoError(t, h.run("", "profile", "--username", "amazing-grace"))
	require.Contains(t, h.stdout.String(), "Profile updated: amazing-grace")

	require.NoError(t, h.run("", "passwd", "--old", "hopper1906", "--new", "cobol-1959"))
	require.Contains(t, h.stderr.String(), "Password changed.")

	err = h.run("", "profile")
	require.Equal(t, ExitUsage, ExitCode(err))
}

func TestAvatar(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	path := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	require.NoError(t, h.run("", "avatar", path))
	require.Contains(t, h.stdout.String(), "/media/profile_pics/")

	err := h.run("", "avatar")
	require.Equal(t, ExitUsage, ExitCode(err))
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	require.NoError(t, h.run(""))
	require.Contains(t, h.stdout.String(), "commands:")
	require.Contains(t, h.stdout.String(), "face-login")

	err := h.run("", "transfer")
	require.Equal(t, ExitUsage, ExitCode(err))
	require.Contains(t, h.stderr.String(), "usage: bankctl")

	require.NoError(t, h.run("", "login", "-h"))
	require.Contains(t, h.stderr.String(), "usage: bankctl login")

	err = h.run("", "whoami", "extra")
	require.Equal(t, ExitUsage, ExitCode(err))

	require.NoError(t, h.run("", "version"))
	require.Contains(t, h.stdout.String(), BuildVersion)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", usagef("bad"), ExitUsage},
		{"validation", &banksdk.ValidationError{Fields: map[string]string{"email": "required"}}, ExitValidation},
		{"auth", &banksdk.AuthError{Status: 401}, ExitAuth},
		{"mfa", fmt.Errorf("login: %w", &banksdk.MFARequiredError{MFAToken: "t"}), ExitAuth},
		{"expired", banksdk.ErrSessionExpired, ExitAuth},
		{"not signed in", banksdk.ErrNotSignedIn, ExitAuth},
		{"unauthorized", &banksdk.HTTPError{Method: "GET", Path: "/cards/", Status: 401}, ExitAuth},
		{"camera", &capture.CameraError{Source: "cam", Err: capture.ErrUnavailable}, ExitCamera},
		{"server error", &banksdk.HTTPError{Method: "GET", Path: "/cards/", Status: 500}, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExplainHTTPDetail(t *testing.T) {
	t.Parallel()

	err := &banksdk.HTTPError{Method: "GET", Path: "/cards/9/", Status: 404, Body: []byte(`{"detail":"No Card matches the given query."}`)}
	require.Equal(t, "No Card matches the given query. (HTTP 404)", Explain(err))
	require.Equal(t, "boom", Explain(errors.New("boom")))
}
