// Package server wires the router, handlers, middleware and shared
// resources, and runs the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studentfolio/studentfolio/internal/auth"
	"github.com/studentfolio/studentfolio/internal/catalog"
	"github.com/studentfolio/studentfolio/internal/config"
	"github.com/studentfolio/studentfolio/internal/directory"
	"github.com/studentfolio/studentfolio/internal/handler"
	"github.com/studentfolio/studentfolio/internal/middleware"
	sqliteRepo "github.com/studentfolio/studentfolio/internal/repository/sqlite"
	"github.com/studentfolio/studentfolio/internal/service"
)

// Server owns the router and the resources that need closing on shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the dependency graph: database, catalog administrator
// session, token and password services, the service layer, and the
// handlers, then mounts the routes.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()

	// The administrator session. Personal sessions are derived from it
	// per request via WithAPIKey.
	admin := catalog.NewClient(catalog.Session{
		BaseURL: s.cfg.Catalog.URL,
		APIKey:  s.cfg.Catalog.APIKey,
	}, s.logger)

	authService := service.NewAuthService(s.db, tokens, passwords, admin, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	searchHandler := handler.NewSearchHandler(directory.NewSearch(admin), s.logger)
	profileHandler := handler.NewProfileHandler(authService, admin, s.logger)
	orgHandler := handler.NewOrganizationHandler(authService, admin, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics())

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Get("/me", authHandler.HandleMe)
				r.Delete("/me", authHandler.HandleDelete)
			})
		})

		// Public discovery.
		r.Get("/search", searchHandler.HandleStudents)
		r.Get("/tags", searchHandler.HandleTags)
		r.Get("/tags/top", searchHandler.HandleTopTags)
		r.Get("/universities", searchHandler.HandleUniversities)

		// Public pages.
		r.With(auth.OptionalAuth(tokens)).Get("/profile/{username}", profileHandler.HandleGet)
		r.Get("/organizations/{name}", orgHandler.HandleGet)

		// Authenticated profile and portfolio management.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Put("/profile", profileHandler.HandleUpdate)
			r.Post("/profile/student", profileHandler.HandleBecomeStudent)
			r.Get("/profile/organizations", profileHandler.HandleOrganizations)
			r.Post("/profile/items", profileHandler.HandleAddItem)
			r.Put("/profile/items/{id}", profileHandler.HandleUpdateItem)
			r.Post("/profile/items/{id}/tags", profileHandler.HandleAddItemTags)
			r.Post("/profile/items/{id}/file", profileHandler.HandleUploadItemFile)

			r.Post("/organizations", orgHandler.HandleCreate)
			r.Put("/organizations/{name}", orgHandler.HandleUpdate)
			r.Post("/organizations/{name}/logo", orgHandler.HandleUploadLogo)
			r.Post("/organizations/{name}/members", orgHandler.HandleAddMember)
		})
	})

	return nil
}

// Start runs the listener until SIGINT/SIGTERM, then drains in-flight
// requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("catalog", s.cfg.Catalog.URL),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
