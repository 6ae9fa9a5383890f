package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/belgacembalti/Secure-Digital-Card/internal/bankctl/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bankctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default $BANKCTL_CONFIG or ./"+app.DefaultConfigFile+")")
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}

	cfg, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bankctl: %v\n", err)
		return app.ExitUsage
	}
	if *asJSON {
		cfg.Output = "json"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, *cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bankctl: %v\n", err)
		return app.ExitFailure
	}
	defer application.Close()

	if err := application.Run(ctx, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "bankctl: %s\n", app.Explain(err))
		return app.ExitCode(err)
	}
	return app.ExitOK
}
