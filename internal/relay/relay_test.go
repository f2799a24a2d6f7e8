package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
)

type stubResponse struct {
	body       []byte
	statusCode int
	header     http.Header
}

func (s stubResponse) Body() []byte        { return s.body }
func (s stubResponse) StatusCode() int     { return s.statusCode }
func (s stubResponse) Header() http.Header { return s.header }

type stubClient struct {
	resp  httpclient.Response
	err   error
	calls []string
}

func (s *stubClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

const upstreamURL = "https://upstream.example/ws/ObtenerIndicadoresEconomicos"

func TestProxyForwardsQueryVerbatim(t *testing.T) {
	client := &stubClient{resp: stubResponse{
		body:       []byte("<DataSet/>"),
		statusCode: http.StatusOK,
		header:     http.Header{"Content-Type": {"text/xml; charset=utf-8"}},
	}}
	router := NewRouter(NewHandler(upstreamURL, client, nil), Options{}, nil)

	rawQuery := "Indicador=317&FechaInicio=15%2F10%2F2025&FechaFinal=15%2F10%2F2025&Nombre=Ana+Soto&SubNiveles=N&Token=TK&CorreoElectronico=a%40b.cr"
	req := httptest.NewRequest(http.MethodGet, ProxyPath+"?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(client.calls) != 1 || client.calls[0] != upstreamURL+"?"+rawQuery {
		t.Fatalf("unexpected upstream calls %#v", client.calls)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "<DataSet/>" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestProxyMirrorsUpstreamErrorStatus(t *testing.T) {
	client := &stubClient{resp: stubResponse{
		body:       []byte("<html><title>Runtime Error</title></html>"),
		statusCode: http.StatusInternalServerError,
		header:     http.Header{},
	}}
	router := NewRouter(NewHandler(upstreamURL, client, nil), Options{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProxyPath+"?Indicador=1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != defaultContentType {
		t.Fatalf("expected default content type, got %q", ct)
	}
	if rec.Body.String() != "<html><title>Runtime Error</title></html>" {
		t.Fatalf("body altered: %q", rec.Body.String())
	}
}

func TestProxyTransportFailureReturnsJSON(t *testing.T) {
	client := &stubClient{err: errors.New("dial tcp: timeout")}
	router := NewRouter(NewHandler(upstreamURL, client, nil), Options{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProxyPath, nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "Failed to fetch from BCCR" || payload["message"] != "dial tcp: timeout" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if client.calls[0] != upstreamURL {
		t.Fatalf("expected bare upstream url without query, got %q", client.calls[0])
	}
}

func TestHealthReturnsTimestamp(t *testing.T) {
	h := NewHandler(upstreamURL, &stubClient{}, nil)
	h.now = func() time.Time { return time.Date(2025, 10, 15, 6, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	NewRouter(h, Options{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["status"] != "ok" || payload["timestamp"] != "2025-10-15T06:00:00Z" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestCORSHeadersOnProxy(t *testing.T) {
	client := &stubClient{resp: stubResponse{statusCode: http.StatusOK, header: http.Header{}}}
	router := NewRouter(NewHandler(upstreamURL, client, nil), Options{AllowedOrigins: []string{"*"}}, nil)

	req := httptest.NewRequest(http.MethodGet, ProxyPath, nil)
	req.Header.Set("Origin", "http://page.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	client := &stubClient{resp: stubResponse{statusCode: http.StatusOK, header: http.Header{}}}
	router := NewRouter(NewHandler(upstreamURL, client, nil), Options{RateLimitRPS: 0.001, RateLimitBurst: 1}, nil)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, ProxyPath, nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, ProxyPath, nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health should not be rate limited, got %d", health.Code)
	}
}

func TestStaticDirServed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tdc.js"), []byte("window.BCCR = {};"), 0o644); err != nil {
		t.Fatalf("write static file: %v", err)
	}
	router := NewRouter(NewHandler(upstreamURL, &stubClient{}, nil), Options{StaticDir: dir}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tdc.js", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if rec.Code != http.StatusOK || string(body) != "window.BCCR = {};" {
		t.Fatalf("unexpected static response %d %q", rec.Code, body)
	}
}

// The client must read relayed bodies exactly as direct ones.
func TestClientThroughRelay(t *testing.T) {
	payload := `<DataSet><INGC011_CAT_INDICADORECONOMIC><COD_INDICADORINTERNO>318</COD_INDICADORINTERNO><NUM_VALOR>510.25</NUM_VALOR></INGC011_CAT_INDICADORECONOMIC></DataSet>`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get(bccr.ParamIndicator) != "318" {
			t.Errorf("upstream got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write([]byte(payload))
	}))
	defer upstream.Close()

	relaySrv := httptest.NewServer(NewRouter(NewHandler(upstream.URL, httpclient.NewRestyClient(2*time.Second), nil), Options{}, nil))
	defer relaySrv.Close()

	client := bccr.NewClient(httpclient.NewRestyClient(2*time.Second), relaySrv.URL+ProxyPath, bccr.Defaults{}, nil)
	records, err := client.Fetch(context.Background(), bccr.IndicatorRequest{Indicator: "318", DateFrom: "15/10/2025", DateTo: "15/10/2025"})
	if err != nil {
		t.Fatalf("Fetch via relay: %v", err)
	}
	if len(records) != 1 || records[0].Code != "318" || records[0].Value != 510.25 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer(NewHandler(upstreamURL, &stubClient{}, nil), Options{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
