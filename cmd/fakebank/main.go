// Command fakebank serves the in-process fake banking backend on a real
// port so bankctl can be tried without the production service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/internal/banktest"
	"github.com/belgacembalti/Secure-Digital-Card/internal/capture"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"github.com/common-nighthawk/go-figure"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

const version = "v0.1.0"

type config struct {
	Addr          string        `env:"FAKEBANK_ADDR"           env-default:"127.0.0.1:8000"`
	AccessTTL     time.Duration `env:"FAKEBANK_ACCESS_TTL"     env-default:"5m"`
	RefreshTTL    time.Duration `env:"FAKEBANK_REFRESH_TTL"    env-default:"24h"`
	RotateRefresh bool          `env:"FAKEBANK_ROTATE_REFRESH" env-default:"true"`
	SigningKey    string        `env:"FAKEBANK_SIGNING_KEY"`

	DemoEmail    string `env:"FAKEBANK_DEMO_EMAIL"    env-default:"demo@example.com"`
	DemoPassword string `env:"FAKEBANK_DEMO_PASSWORD" env-default:"demo-password"`
	DemoTOTP     bool   `env:"FAKEBANK_DEMO_TOTP"`

	// DemoFace is an image file face-login recognizes as the demo user.
	DemoFace string `env:"FAKEBANK_DEMO_FACE"`

	Env       string `env:"ENV"        env-default:"dev"`
	LogLevel  string `env:"LOG_LEVEL"  env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" env-default:"5s"`
}

func main() {
	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	logger := slogx.New(slogx.Config{
		Service: "fakebank",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("fakebank stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	bank, err := banktest.New(banktest.Options{
		SigningKey:    []byte(cfg.SigningKey),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		RotateRefresh: cfg.RotateRefresh,
		LoginLimit:    httpx.LoginLimit,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := seed(bank, cfg, logger); err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           bank,
		ReadHeaderTimeout: 5 * time.Second,
	}

	figure.NewFigure("fakebank", "cybermedium", true).Print()
	fmt.Println()
	logger.Info("fakebank listening", "url", "http://"+cfg.Addr+banktest.BasePath, "version", version)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

// seed creates the demo account with one card and a little history.
func seed(bank *banktest.Server, cfg config, logger *slog.Logger) error {
	if _, err := bank.AddUser(banktest.Account{
		Username: "demo",
		Email:    cfg.DemoEmail,
		Password: cfg.DemoPassword,
		Verified: true,
	}); err != nil {
		return err
	}

	if cfg.DemoTOTP {
		secret, err := bank.EnableTOTP(cfg.DemoEmail)
		if err != nil {
			return err
		}
		logger.Info("demo account has a second factor", "totp_secret", secret)
	}

	if cfg.DemoFace != "" {
		still, err := capture.FileCapturer{Path: cfg.DemoFace}.CaptureStillImage(context.Background())
		if err != nil {
			return err
		}
		if err := bank.RegisterFace(cfg.DemoEmail, still.Payload()); err != nil {
			return err
		}
		logger.Info("demo face registered", "file", cfg.DemoFace)
	}

	cardID, err := bank.AddCard(cfg.DemoEmail, "Demo User", "4111111111111111", "123", "12/29")
	if err != nil {
		return err
	}

	now := time.Now()
	history := []struct {
		amount   string
		merchant string
		kind     string
		ago      time.Duration
	}{
		{"4.20", "Coffee Lab", "PAYMENT", 2 * time.Hour},
		{"62.00", "Grocer", "PAYMENT", 3 * 24 * time.Hour},
		{"20.00", "ATM", "WITHDRAWAL", 12 * 24 * time.Hour},
		{"15.99", "Bookshop", "REFUND", 40 * 24 * time.Hour},
	}
	for _, h := range history {
		if err := bank.AddTransaction(cardID, decimal.RequireFromString(h.amount), h.merchant, h.kind, now.Add(-h.ago)); err != nil {
			return err
		}
	}

	logger.Info("demo account ready", "email", cfg.DemoEmail, "card_id", cardID)
	return nil
}
