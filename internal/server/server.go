package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/db"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/mq"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/internal/storage"
	"github.com/modcatalog/apiserver/internal/store"
)

// Server wraps the HTTP server, its router and the background token sweep.
type Server struct {
	httpServer    *http.Server
	router        *chi.Mux
	db            *sql.DB
	queue         *mq.MQ
	tokens        *services.TokenService
	sweepInterval time.Duration
	log           logging.Logger

	stopSweep context.CancelFunc
	sweepDone sync.WaitGroup
}

// New opens the database and the optional storage and messaging backends,
// and wires every service and route.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	var exportStore services.ObjectStore
	if objects != nil {
		if err := objects.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		exportStore = objects
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("mq: %w", err)
	}
	var audit services.AuditSink = services.NopAuditSink{}
	if queue != nil {
		audit = mq.NewAuditPublisher(queue, cfg.MQ.AuditChannel)
	}

	userRepo := store.NewUserRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)
	modRepo := store.NewModRepository(dbConn)
	redirectRepo := store.NewRedirectRepository(dbConn)

	deps := services.Deps{Logger: log, Clock: auth.SystemClock, Audit: audit}
	userService := services.NewUserService(userRepo, deps)
	tokenService := services.NewTokenService(tokenRepo, userRepo, cfg.Auth.TokenTTL, deps)
	modService := services.NewModService(modRepo)
	redirectService := services.NewRedirectService(redirectRepo)
	exportService := services.NewExportService(modRepo, redirectRepo, exportStore, deps)

	router := NewRouter(RouterDeps{
		Authorizer: auth.NewAuthorizer(tokenRepo, userRepo, auth.SystemClock, log),
		Users:      userService,
		Tokens:     tokenService,
		Mods:       modService,
		Redirects:  redirectService,
		Exports:    exportService,
		Logger:     log,
		HTTP:       cfg.HTTP,
		StaticDir:  cfg.StaticDir,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:    httpServer,
		router:        router,
		db:            dbConn,
		queue:         queue,
		tokens:        tokenService,
		sweepInterval: cfg.Auth.SweepInterval,
		log:           log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start launches the expired-token sweep and runs the HTTP server until it
// is shut down.
func (s *Server) Start(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	s.sweepDone.Add(1)
	go func() {
		defer s.sweepDone.Done()
		s.tokens.RunExpirySweep(sweepCtx, s.sweepInterval)
	}()

	s.log.Info(ctx, "listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		s.sweepDone.Wait()
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the sweep and closes the
// backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.stopSweep != nil {
		s.stopSweep()
		s.sweepDone.Wait()
	}
	if s.queue != nil {
		if closeErr := s.queue.Close(); closeErr != nil {
			s.log.Warn(ctx, "failed to close mq", "err", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
