package bccr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
)

var requestHeaders = map[string]string{
	"Accept":       "application/xml, text/xml, */*",
	"Content-Type": "application/x-www-form-urlencoded",
}

// Logger defines the logging surface the client relies on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) InfoObj(string, string, interface{})  {}
func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

// Client queries the indicators service, directly or through the relay.
type Client struct {
	http     httpclient.Client
	endpoint string
	defaults Defaults
	log      Logger
}

// NewClient builds a client. The endpoint may be the upstream URL or a relay path.
func NewClient(client httpclient.Client, endpoint string, defaults Defaults, log Logger) *Client {
	if log == nil {
		log = noopLogger{}
	}
	return &Client{
		http:     client,
		endpoint: strings.TrimSpace(endpoint),
		defaults: defaults,
		log:      log,
	}
}

// URL returns the full request URL for req.
func (c *Client) URL(req IndicatorRequest) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("bccr endpoint is empty")
	}
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse bccr endpoint: %w", err)
	}

	encoded := BuildQuery(req, c.defaults).Encode()
	if base.RawQuery != "" {
		base.RawQuery += "&" + encoded
	} else {
		base.RawQuery = encoded
	}
	return base.String(), nil
}

// Fetch performs one indicator query and extracts its records. The extractor
// only ever sees complete 200 bodies.
func (c *Client) Fetch(ctx context.Context, req IndicatorRequest) ([]domain.IndicatorRecord, error) {
	if c == nil || c.http == nil {
		return nil, ErrTransportUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := c.URL(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, target, requestHeaders)
	if err != nil {
		return nil, fmt.Errorf("fetch indicator %s: %w", req.Indicator, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch indicator %s: %w", req.Indicator, err)
	}

	if resp.StatusCode() != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Message: errorSummary(resp.Body())}
		c.log.WarnObj("bccr request rejected", "bccr_error", map[string]any{
			"indicator": req.Indicator,
			"status":    statusErr.StatusCode,
			"message":   statusErr.Message,
		})
		return nil, statusErr
	}

	records := ExtractRecordsBytes(resp.Body())
	c.log.DebugObj("bccr records extracted", "bccr_result", map[string]any{
		"indicator":  req.Indicator,
		"date_from":  req.DateFrom,
		"date_to":    req.DateTo,
		"body_bytes": len(resp.Body()),
		"records":    len(records),
	})
	return records, nil
}
