package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
	"github.com/go-resty/resty/v2"
)

const maxBodySnippet = 512

// httpPublisher posts each event as a JSON document to a webhook.
type httpPublisher struct {
	id     string
	typ    string
	cfg    HTTPPublisherConfig
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	return &httpPublisher{
		id:     cfg.ID,
		typ:    TypeHTTP,
		cfg:    *cfg.HTTP,
		client: httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:    ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return h.typ }

// Publish sends the event; any non-2xx answer is an error carrying a body snippet.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.encode()
	if err != nil {
		return err
	}

	req := h.client.R().
		SetContext(ctx).
		SetHeaders(h.cfg.Headers).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event-ID", evt.ID).
		SetBody(payload)

	resp, err := req.Execute(h.cfg.Method, h.cfg.URL)
	if err != nil {
		err = fmt.Errorf("http request: %w", err)
		logDelivery(h.log, h.typ, h.id, evt, "", err)
		return err
	}
	if resp.IsError() {
		err = fmt.Errorf("http response status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
		logDelivery(h.log, h.typ, h.id, evt, "", err)
		return err
	}
	logDelivery(h.log, h.typ, h.id, evt, "", nil)
	return nil
}

func bodySnippet(body []byte) string {
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet]
	}
	return strings.TrimSpace(string(body))
}
