package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adda-Baaj/bccr-indicadores/internal/config"
	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
)

const (
	defaultIndicator = "317"
	usage            = "usage: indicador [INDICADOR] [FECHA_INICIO] [FECHA_FINAL] [NOMBRE] [SUBNIVELES]"
)

type fetcher interface {
	Fetch(ctx context.Context, req bccr.IndicatorRequest) ([]domain.IndicatorRecord, error)
}

type result struct {
	Items []domain.IndicatorRecord `json:"items"`
	Count int                      `json:"count"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "indicador failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	req, err := parseArgs(args, bccr.Today())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// stdout carries the result document.
	cfg.LogOutput = "stderr"

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := bccr.NewClient(
		httpclient.NewRestyClient(cfg.RequestTimeout),
		cfg.Endpoint,
		bccr.Defaults{
			SubscriberName: cfg.SubscriberName,
			DetailLevel:    cfg.DetailLevel,
			Token:          cfg.Token,
			Email:          cfg.Email,
		},
		log,
	)
	return fetchAndPrint(ctx, client, req, out)
}

// parseArgs maps positional arguments onto a request. Missing dates default to today.
func parseArgs(args []string, today string) (bccr.IndicatorRequest, error) {
	if len(args) > 5 {
		return bccr.IndicatorRequest{}, fmt.Errorf("too many arguments\n%s", usage)
	}
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return bccr.IndicatorRequest{}, fmt.Errorf("%s", usage)
		}
	}

	arg := func(i int) string {
		if i < len(args) {
			return strings.TrimSpace(args[i])
		}
		return ""
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	return bccr.IndicatorRequest{
		Indicator:      or(arg(0), defaultIndicator),
		DateFrom:       or(arg(1), today),
		DateTo:         or(arg(2), today),
		SubscriberName: arg(3),
		DetailLevel:    arg(4),
	}, nil
}

func fetchAndPrint(ctx context.Context, client fetcher, req bccr.IndicatorRequest, out io.Writer) error {
	records, err := client.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch indicator %s: %w", req.Indicator, err)
	}
	if records == nil {
		records = []domain.IndicatorRecord{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result{Items: records, Count: len(records)})
}
