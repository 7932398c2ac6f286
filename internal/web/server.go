package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/claims-recal/internal/engine"
	"github.com/claims-recal/internal/store"
	"github.com/claims-recal/internal/web/handlers"
	"github.com/claims-recal/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	db         *sql.DB
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance
func NewServer(config *Config) (*Server, error) {
	// Initialize database connection
	db, err := sql.Open("postgres", config.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure database connection pool
	db.SetMaxOpenConns(config.Database.MaxConnections)
	db.SetMaxIdleConns(config.Database.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	// Test database connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	server := &Server{
		config: config,
		db:     db,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Convert config for handlers (to avoid import cycle)
	handlerConfig := &handlers.Config{
		MaxIterations:           s.config.Engine.MaxIterations,
		LearningRate:            s.config.Engine.LearningRate,
		ConvergenceThreshold:    s.config.Engine.ConvergenceThreshold,
		GridSteps:               s.config.Engine.GridSteps,
		SensitivityPerturbation: s.config.Engine.SensitivityPerturbation,
	}

	engineHandler := &handlers.EngineHandler{
		Claims: store.NewClaimStore(s.db),
		Runs:   store.NewRunStore(s.db),
		Model:  engine.NewScoringModel(engine.DefaultCoefficients()),
		Config: handlerConfig,
	}

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Recalibration engine endpoints
	api.HandleFunc("/recalibrate", engineHandler.Recalibrate).Methods("POST")
	api.HandleFunc("/optimize", engineHandler.Optimize).Methods("POST")
	api.HandleFunc("/sensitivity", engineHandler.Sensitivity).Methods("POST")
	api.HandleFunc("/weights/compare", engineHandler.CompareWeights).Methods("POST")

	// Weight table management
	api.HandleFunc("/weights", engineHandler.GetWeights).Methods("GET")
	api.HandleFunc("/weights", engineHandler.PutWeights).Methods("PUT")

	// Run history and statistics
	api.HandleFunc("/runs", engineHandler.ListRuns).Methods("GET")
	api.HandleFunc("/stats", engineHandler.GetStats).Methods("GET")

	// Apply middleware
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging())

	if s.config.Auth.Enabled {
		// Apply authentication middleware to API routes only
		api.Use(middleware.Authentication(s.config.Auth.APIKey))
	}
}

// Start starts the web server
func (s *Server) Start() error {
	// Setup graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	go func() {
		fmt.Printf("Starting server on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server error: %v\n", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	fmt.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		fmt.Printf("Server shutdown error: %v\n", err)
	}

	if err := s.db.Close(); err != nil {
		fmt.Printf("Database close error: %v\n", err)
	}

	fmt.Println("Server stopped")
	return nil
}
