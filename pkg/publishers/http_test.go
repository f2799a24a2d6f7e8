package publishers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adda-Baaj/bccr-indicadores/internal/domain"
)

func TestHTTPPublisherPostsEventJSON(t *testing.T) {
	evt := NewEvent("usd-compra", "Tipo de cambio compra", domain.IndicatorRecord{
		Code: "317", Value: 501.41, Raw: "501.41",
		Date: domain.ObservationDate{Day: 15, Month: 10, Year: 2025},
	})

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if got := r.Header.Get("X-Source"); got != "bccr" {
			t.Errorf("missing configured header, got %q", got)
		}
		if got := r.Header.Get("X-Event-ID"); got != evt.ID {
			t.Errorf("X-Event-ID = %q, want %q", got, evt.ID)
		}
		if got := r.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
			t.Errorf("Content-Type = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pub, err := newHTTPPublisher(context.Background(), sanitizePublisherConfig(PublisherConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{
			URL:     srv.URL,
			Method:  "put",
			Headers: map[string]string{"X-Source": "bccr"},
		},
	}), nil)
	if err != nil {
		t.Fatalf("newHTTPPublisher: %v", err)
	}

	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if body["series_id"] != "usd-compra" || body["value_exact"] != "501.41" {
		t.Fatalf("unexpected body %#v", body)
	}
	record, _ := body["record"].(map[string]any)
	if record["indicador"] != "317" || record["numeric"] != true {
		t.Fatalf("unexpected record %#v", record)
	}
}

func TestHTTPPublisherErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pub, err := newHTTPPublisher(context.Background(), sanitizePublisherConfig(PublisherConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{URL: srv.URL, TimeoutSeconds: 1},
	}), nil)
	if err != nil {
		t.Fatalf("newHTTPPublisher: %v", err)
	}

	err = pub.Publish(context.Background(), Event{ID: "e1"})
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected status error with snippet, got %v", err)
	}
}

func TestHTTPPublisherMissingConfig(t *testing.T) {
	if _, err := newHTTPPublisher(context.Background(), PublisherConfig{ID: "hook", Type: TypeHTTP}, nil); err == nil {
		t.Fatalf("expected error for missing http block")
	}
}

func TestBodySnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", maxBodySnippet+10)
	if got := bodySnippet([]byte(long)); len(got) != maxBodySnippet {
		t.Fatalf("snippet length = %d", len(got))
	}
}
