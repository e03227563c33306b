// Package main runs the web admin console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/config"
	"github.com/autounite/admin-console/internal/console"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New("admin-console", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := sessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	srv, err := console.New(console.Options{
		Addr: cfg.Console.Addr,
		API: apiclient.Config{
			BaseURL:   cfg.API.BaseURL,
			APIKey:    cfg.API.APIKey,
			Timeout:   cfg.API.Timeout,
			RateLimit: cfg.API.RateLimitRPS,
			Burst:     cfg.API.RateLimitBurst,
			Logger:    logger,
		},
		Backend:      backend,
		SessionTTL:   cfg.Console.SessionTTL,
		SecureCookie: cfg.Console.SecureCookie,
		LoginRPS:     cfg.Console.LoginRPS,
		LoginBurst:   cfg.Console.LoginBurst,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"api":             cfg.API.BaseURL,
		"session_backend": cfg.Console.SessionBackend,
	}).Info("starting admin console")
	return srv.Run(ctx)
}

func sessionBackend(ctx context.Context, cfg *config.Config) (session.Backend, func(), error) {
	if cfg.Console.SessionBackend != config.BackendRedis {
		return session.NewMemoryBackend(cfg.Console.SessionTTL), func() {}, nil
	}
	client, err := session.DialRedis(ctx, cfg.Console.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session redis: %w", err)
	}
	return session.NewRedisBackend(client, cfg.Console.SessionTTL), func() { _ = client.Close() }, nil
}
