// Package main is adminctl, the command-line admin console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/cli"
	"github.com/autounite/admin-console/internal/config"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminctl: %v\n", err)
		return cli.ExitError
	}
	logger := logging.New("adminctl", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.New(cli.Options{
		API: apiclient.Config{
			BaseURL:   cfg.API.BaseURL,
			APIKey:    cfg.API.APIKey,
			Timeout:   cfg.API.Timeout,
			RateLimit: cfg.API.RateLimitRPS,
			Burst:     cfg.API.RateLimitBurst,
			Logger:    logger,
		},
		Backend: session.NewFileBackend(cfg.Session.File),
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminctl: %v\n", err)
		return cli.ExitError
	}
	return app.Run(ctx, os.Args[1:])
}
