// Package server exposes the bridge to the forms host over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shineum/sendgrid-bridge/internal/delivery"
	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/gate"
	"github.com/shineum/sendgrid-bridge/internal/notes"
	"github.com/shineum/sendgrid-bridge/internal/notification"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 10 << 20

	defaultReadyCacheTTL = 10 * time.Second
)

// Hook is the SendGrid pre-send hook and service registration.
type Hook interface {
	MaybeSendEmail(ctx context.Context, ev forms.SendEvent) forms.Email
	Service(ctx context.Context) notification.ServiceInfo
}

// Deliverer runs the full delivery pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, ev forms.SendEvent) (delivery.Result, error)
}

// StatsSource returns SendGrid account statistics.
type StatsSource interface {
	Stats(ctx context.Context, days int) (json.RawMessage, error)
}

// Readiness reports the SendGrid gate state.
type Readiness interface {
	Initialize(ctx context.Context) gate.Readiness
}

// CheckFunc is an additional readiness check, such as a store ping.
type CheckFunc func(ctx context.Context) error

// Config wires the server's collaborators.
type Config struct {
	Listen string
	// AuthToken is the bearer token required on /v1 routes. Empty disables
	// authentication.
	AuthToken string
	Hook      Hook
	Pipeline  Deliverer
	Stats     StatsSource
	Gate      Readiness
	Notes     notes.Recorder
	Checks    map[string]CheckFunc
	// ReadyCacheTTL is how long /readyz reuses a failed gate check.
	// Zero uses 10s.
	ReadyCacheTTL time.Duration
	Logger        *slog.Logger
}

// Server is the HTTP ingress.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router

	now        func() time.Time
	readyMu    sync.Mutex
	notReady   gate.Readiness
	notReadyAt time.Time
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ReadyCacheTTL <= 0 {
		cfg.ReadyCacheTTL = defaultReadyCacheTTL
	}

	s := &Server{cfg: cfg, logger: logger, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/services", s.handleServices)
		r.Post("/hooks/pre-send", s.handlePreSend)
		r.Post("/deliver", s.handleDeliver)
		r.Get("/stats", s.handleStats)
		r.Get("/entries/{entryID}/notes", s.handleNotes)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireToken rejects requests without the configured bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	want := []byte(s.cfg.AuthToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sendgrid-bridge"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gateReadiness returns the gate state for /readyz. A failed check is reused
// for ReadyCacheTTL so repeated readiness checks do not call SendGrid each time.
func (s *Server) gateReadiness(ctx context.Context) gate.Readiness {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()

	if !s.notReadyAt.IsZero() && s.now().Sub(s.notReadyAt) < s.cfg.ReadyCacheTTL {
		return s.notReady
	}

	rd := s.cfg.Gate.Initialize(ctx)
	if rd.Ready() {
		s.notReadyAt = time.Time{}
	} else {
		s.notReady, s.notReadyAt = rd, s.now()
	}
	return rd
}
