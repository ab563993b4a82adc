// Package api serves the drop ingress, health and metrics endpoints, the
// dashboard read API and the live drop feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vodeneev/dropalerts/internal/ledger"
	"github.com/Vodeneev/dropalerts/internal/pipeline"
	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

const shutdownTimeout = 5 * time.Second

// Ingestor accepts raw drops. *pipeline.Pipeline satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, raw map[string]any) (pipeline.IngestResult, error)
}

// DropReader is the read side of the drop store used by the dashboard.
type DropReader interface {
	GetByID(ctx context.Context, id string) (*models.Drop, error)
	RecentByKind(ctx context.Context, kind models.Kind, since time.Time, limit int) ([]*models.Drop, error)
	CountToday(ctx context.Context, kind models.Kind, tier models.TierKind, now time.Time, loc *time.Location) (int, error)
	Ping(ctx context.Context) error
}

// Ledger is the bet ledger as seen by the dashboard.
type Ledger interface {
	Aggregate(ctx context.Context, userID int64, window time.Duration) (ledger.Stats, error)
	UpdateOutcome(ctx context.Context, betID string, status models.BetStatus, actualProfit *float64) (*models.Bet, error)
}

type Deps struct {
	Ingestor Ingestor
	Drops    DropReader
	Ledger   Ledger
	Hub      *Hub
	Registry *prometheus.Registry
	Logger   *slog.Logger
	Location *time.Location
	Now      func() time.Time
}

type Server struct {
	cfg  config.HTTPConfig
	deps Deps
	log  *slog.Logger
	now  func() time.Time
	srv  *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With("component", "http"),
		now:  deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", dropSecretHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/ping", handlePing)
	r.Get("/health", s.handleHealth)
	if s.deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	if s.deps.Ingestor != nil {
		r.Post("/public/drop", s.handleDrop)
	}

	r.Route("/api", func(r chi.Router) {
		if s.deps.Drops != nil {
			r.Get("/drops/recent", s.handleRecentDrops)
			r.Get("/drops/count", s.handleCountToday)
			r.Get("/drops/{id}", s.handleGetDrop)
		}
		if s.deps.Ledger != nil {
			r.Get("/users/{id}/stats", s.handleUserStats)
			r.With(s.requireDashboardToken).Post("/bets/{id}/outcome", s.handleBetOutcome)
		}
	})

	if s.deps.Hub != nil {
		r.Get("/ws/drops", s.deps.Hub.ServeHTTP)
	}
	return r
}

// Run serves until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drops != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Drops.Ping(ctx); err != nil {
			s.log.Warn("Health check failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
