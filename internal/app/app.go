// Package app assembles the server: configuration, logging, telemetry,
// services, router, and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"shelfstats/internal/config"
	apierrors "shelfstats/internal/errors"
	"shelfstats/internal/enrich"
	"shelfstats/internal/infrastructure"
	customMiddleware "shelfstats/internal/middleware"
	"shelfstats/internal/services"
	handlers "shelfstats/internal/transport/http"
	ws "shelfstats/internal/websocket"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Application is the composed server.
type Application struct {
	Config *config.Config
	Router *chi.Mux
	Server *http.Server
	Logger *slog.Logger

	OTelProviders *infrastructure.OTelProviders
	WebSocketHub  *ws.Hub

	SessionStore *services.SessionStore
	Insights     *services.InsightsService
	Enrichment   *services.EnrichmentService
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port))

	otelProviders, err := infrastructure.InitializeOTel(logger, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

func (a *Application) initializeServices() {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	a.SessionStore = services.NewSessionStore(a.Config.Session, a.Logger)
	a.Insights = services.NewInsightsService(a.Logger, a.OTelProviders.Metrics)

	fetcher := enrich.NewFetcher(a.Config.Enrichment, a.Logger, a.OTelProviders.Metrics)
	a.Enrichment = services.NewEnrichmentService(fetcher, hub, a.Logger, a.OTelProviders.Metrics)

	// Expired sessions take their enrichment bookkeeping with them.
	a.SessionStore.StartJanitor(func(id string) {
		a.Enrichment.Forget(id)
		a.WebSocketHub.Broadcast(ws.TypeSessionExpired, map[string]any{"session_id": id})
	})
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware first so the websocket upgrade is never wrapped
	// by a buffering ResponseWriter.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Logger)
	r.Get("/ws", wsHandler.Serve)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.corsConfig()))
		r.Use(customMiddleware.Compress(5))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	sessionHandler := handlers.NewSessionHandler(a.SessionStore, a.Insights, a.Logger, errorHandler)
	insightsHandler := handlers.NewInsightsHandler(a.Insights, a.Config.Session, a.Logger, errorHandler)
	enrichHandler := handlers.NewEnrichHandler(a.Enrichment, a.Logger, errorHandler)
	exportHandler := handlers.NewExportHandler(a.Logger, errorHandler)
	healthHandler := handlers.NewHealthHandler(a.SessionStore, Version)

	r.Get("/healthz", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(sessionHandler.SessionCtx)

				r.Delete("/", sessionHandler.Delete)
				r.Get("/summary", sessionHandler.Summary)
				r.Get("/streak", sessionHandler.Streak)

				r.Route("/charts", func(r chi.Router) {
					r.Get("/books-per-year", insightsHandler.BooksPerYear)
					r.Get("/publication-years", insightsHandler.BooksByPublicationYear)
					r.Get("/cumulative-pages", insightsHandler.CumulativePages)
					r.Get("/bindings", insightsHandler.BindingDistribution)
				})

				r.Route("/books", func(r chi.Router) {
					r.Get("/top-authors", insightsHandler.TopAuthors)
					r.Get("/top-publishers", insightsHandler.TopPublishers)
					r.Get("/top-genres", insightsHandler.TopGenres)
					r.Get("/top-rated", insightsHandler.TopRatedPersonal)
					r.Get("/top-rated-community", insightsHandler.TopRatedCommunity)
					r.Get("/longest", insightsHandler.LongestBooks)
					r.Get("/shortest", insightsHandler.ShortestBooks)
					r.Get("/by-author", insightsHandler.BooksByAuthor)
					r.Get("/published-in", insightsHandler.BooksPublishedIn)
				})

				r.Post("/enrich", enrichHandler.Start)
				r.Get("/enrich", enrichHandler.Status)
				r.Delete("/enrich", enrichHandler.Cancel)

				r.Get("/export", exportHandler.ExportCSV)
				r.Get("/report.xlsx", exportHandler.ExportReport)
			})
		})
	})
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
	if a.Config.Security.EnableCORS {
		cfg.AllowedOrigins = a.Config.Security.AllowedOrigins
	}
	return cfg
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run serves until interrupted, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfoContext(ctx, "listening",
			slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	}

	return a.Stop(ctx)
}

// Stop shuts the server and background services down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.SessionStore.StopJanitor()
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "telemetry shutdown error",
				slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}
