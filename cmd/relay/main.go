package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/bccr-indicadores/internal/config"
	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/Adda-Baaj/bccr-indicadores/internal/relay"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("relay starting", "config", cfg.LogFields())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := relay.NewHandler(cfg.UpstreamURL, httpclient.NewRestyClient(cfg.RequestTimeout), log)
	srv := relay.NewServer(handler, relay.Options{
		Addr:           cfg.RelayAddr,
		AllowedOrigins: cfg.RelayOrigins,
		StaticDir:      cfg.RelayStaticDir,
		RateLimitRPS:   cfg.RelayRateLimitRPS,
		RateLimitBurst: cfg.RelayRateLimitBurst,
	}, log)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("relay run: %w", err)
	}
	return nil
}
