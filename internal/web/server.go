package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/schoolmap/internal/normalize"
	"github.com/schoolmap/internal/web/handlers"
	"github.com/schoolmap/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	store      *handlers.RunStore
	normalizer *normalize.Normalizer
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a new web server over store. The store should already
// hold a result or be able to refresh one.
func NewServer(config *Config, store *handlers.RunStore, normalizer *normalize.Normalizer) *Server {
	server := &Server{
		config:     config,
		store:      store,
		normalizer: normalizer,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Convert config for handlers (to avoid import cycle)
	handlerConfig := &handlers.Config{}
	handlerConfig.Features.ExportEnabled = s.config.Features.ExportEnabled
	handlerConfig.Features.RefreshEnabled = s.config.Features.RefreshEnabled

	apiHandler := &handlers.APIHandler{Store: s.store, Config: handlerConfig}
	entitiesHandler := &handlers.EntitiesHandler{Store: s.store, Config: handlerConfig}
	mapsHandler := &handlers.MapsHandler{Store: s.store, Config: handlerConfig}
	searchHandler := &handlers.SearchHandler{Store: s.store, Config: handlerConfig, Normalizer: s.normalizer}
	exportHandler := &handlers.ExportHandler{Store: s.store, Config: handlerConfig}
	realtimeHandler := &handlers.RealtimeHandler{Store: s.store, Config: handlerConfig}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", apiHandler.Health).Methods("GET")

	// Merged entities
	api.HandleFunc("/entities", entitiesHandler.ListEntities).Methods("GET")
	api.HandleFunc("/entities/{key}", entitiesHandler.GetEntity).Methods("GET")
	api.HandleFunc("/profiles/{id}/outcome", entitiesHandler.GetOutcome).Methods("GET")
	api.HandleFunc("/boundaries/geojson", mapsHandler.GetGeoJSON).Methods("GET")
	api.HandleFunc("/search", searchHandler.SearchNames).Methods("GET")

	// Diagnostics
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")
	api.HandleFunc("/report", apiHandler.GetReport).Methods("GET")
	api.HandleFunc("/report/conflicts", apiHandler.GetConflicts).Methods("GET")
	api.HandleFunc("/report/unmatched", apiHandler.GetUnmatched).Methods("GET")
	api.HandleFunc("/report/duplicates", apiHandler.GetDuplicates).Methods("GET")

	if s.config.Features.ExportEnabled {
		api.HandleFunc("/report/review.xlsx", exportHandler.ReviewWorkbook).Methods("GET")
		api.HandleFunc("/export/merged.json", exportHandler.MergedJSON).Methods("GET")
	}

	api.HandleFunc("/status", realtimeHandler.MatchingStatus).Methods("GET")
	api.Handle("/refresh", middleware.Authentication(s.config.Auth.APIKey)(
		http.HandlerFunc(realtimeHandler.TriggerRefresh))).Methods("POST")

	// Static file serving
	if dir := s.config.Server.StaticDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
		}
	}

	// CORS wraps the router so preflight requests never reach method matching.
	s.handler = middleware.CORS(s.config.Server.AllowedOrigins)(
		middleware.RequestLogging(zap.L())(s.router))
}

// Start serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	zap.L().Info("server stopped")
	return nil
}
