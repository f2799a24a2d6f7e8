package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// Options configures the relay server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	StaticDir      string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is a thin wrapper over chi + stdlib http.Server.
type Server struct {
	addr string
	srv  *http.Server
	log  logger.Logger
}

// NewRouter mounts the relay routes.
func NewRouter(h *Handler, opts Options, log logger.Logger) http.Handler {
	if log == nil {
		log = &logger.NopLogger{}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(accessLog(log))
	r.Use(corsHandler(opts.AllowedOrigins))

	r.With(rateLimit(opts.RateLimitRPS, opts.RateLimitBurst)).Get(ProxyPath, h.Proxy)
	r.Get(HealthPath, h.Health)

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}
	return r
}

// NewServer creates the relay http server.
func NewServer(h *Handler, opts Options, log logger.Logger) *Server {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Server{
		addr: opts.Addr,
		log:  log,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(h, opts, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("relay listening", "relay_server", map[string]any{
			"addr":   s.addr,
			"routes": []string{ProxyPath, HealthPath},
		})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
