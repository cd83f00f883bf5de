// Package worker provides the HTTP service around the assessment
// coordinator.
package worker

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ecotrace/internal/config"
	"github.com/thebtf/ecotrace/internal/coordinator"
	"github.com/thebtf/ecotrace/internal/db/gorm"
	"github.com/thebtf/ecotrace/internal/oracle"
	"github.com/thebtf/ecotrace/internal/session"
	"github.com/thebtf/ecotrace/internal/worker/sse"
)

// QuoteSource generates daily sustainability quotes.
type QuoteSource interface {
	Quote(ctx context.Context) oracle.QuoteOutcome
}

// Service wires the coordinator, stores, and session manager behind the
// HTTP API.
type Service struct {
	config *config.Config

	store      *gorm.Store
	footprints *gorm.FootprintStore
	contexts   *gorm.ContextStore
	goals      *gorm.GoalStore
	users      *gorm.UserStore
	rollups    *gorm.RollupStore

	sessions    *session.Manager
	coordinator *coordinator.Coordinator
	broadcaster *sse.Broadcaster
	quotes      QuoteSource

	router    chi.Router
	jwtKey    *rsa.PublicKey
	scheduler *cron.Cron
	startTime time.Time
	ready     atomic.Bool
}

// NewService assembles the worker service. The coordinator and session
// manager are injected so their lifecycle stays with the caller.
func NewService(cfg *config.Config, store *gorm.Store, sessions *session.Manager, coord *coordinator.Coordinator, broadcaster *sse.Broadcaster, quotes QuoteSource) *Service {
	svc := &Service{
		config:      cfg,
		store:       store,
		footprints:  gorm.NewFootprintStore(store),
		contexts:    gorm.NewContextStore(store),
		goals:       gorm.NewGoalStore(store),
		users:       gorm.NewUserStore(store),
		rollups:     gorm.NewRollupStore(store),
		sessions:    sessions,
		coordinator: coord,
		broadcaster: broadcaster,
		quotes:      quotes,
		router:      chi.NewRouter(),
		jwtKey:      parseJWTPublicKey(cfg.JWTPublicKeyPEM),
		startTime:   time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// setupRoutes registers all HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/assess", s.handleAssess)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", s.handleDashboardStats)
			r.Get("/trends", s.handleDashboardTrends)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Post("/", s.handleSetGoal)
			r.Get("/", s.handleGetGoal)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", s.handleGetProfile)
			r.Put("/me", s.handleUpdateProfile)
			r.Post("/complete-onboarding", s.handleCompleteOnboarding)
			r.Put("/preferences", s.handleSetPreferences)
		})

		r.Get("/quotes/daily", s.handleDailyQuote)

		r.Route("/privacy", func(r chi.Router) {
			r.Get("/export", s.handleExport)
			r.Delete("/data", s.handleDeleteData)
		})

		r.Get("/events", s.broadcaster.ServeHTTP)
	})
}

// Run starts the rollup scheduler and serves HTTP until the context is
// canceled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	s.startRollupJob()
	s.ready.Store(true)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.config.WorkerPort).Msg("Worker listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
