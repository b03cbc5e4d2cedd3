// ==============================================================================
// SIMULATION API MAIN - cmd/api/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"rtgsim/internal/handler"
	"rtgsim/internal/middleware"
	"rtgsim/internal/repository/postgres"
	"rtgsim/internal/scheduler"
	"rtgsim/internal/simulation"
	"rtgsim/pkg/cache"
	"rtgsim/pkg/config"
	"rtgsim/pkg/logger"
	"rtgsim/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("simulation-api")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Simulation API", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection (optional; runs stay in memory without it)
	var db *sqlx.DB
	var sink simulation.Sink
	if cfg.Database.URL != "" {
		var err error
		db, err = sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", map[string]interface{}{
				"error": err.Error(),
			})
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		sink = postgres.NewStore(db)
		log.Info("Database connected", nil)
	} else {
		log.Warn("DATABASE_URL not set, runs will not be persisted", nil)
	}

	// Redis connection (optional snapshot cache + rate limiting)
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		var err error
		redisClient, err = cache.Connect(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{
				"error": err.Error(),
			})
		}
		defer redisClient.Close()
		log.Info("Redis connected", nil)
	}

	// Services
	svc := simulation.NewService(sink, redisClient, cfg.Simulation.SnapshotCacheTTL, cfg.Simulation.MaxLiveRuns, log)
	player := scheduler.NewPlayer(svc, log)
	player.Start()
	defer player.Stop()

	// Handlers
	val := validator.New()
	simHandler := handler.NewSimulationHandler(svc, val, log)
	authHandler := handler.NewAuthHandler(cfg.JWT, val, log)
	feedHandler := handler.NewFeedHandler(svc, log, time.Second)
	playHandler := handler.NewPlaybackHandler(player, val, log)
	sysHandler := handler.NewSystemHandler(db, redisClient, svc, log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(4 << 20))
	if redisClient != nil {
		r.Use(middleware.NewRateLimiter(redisClient, 120, time.Minute).Limit)
	}

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r.HandleFunc("/health", sysHandler.Health).Methods("GET")
	r.HandleFunc("/status", sysHandler.GetSystemStatus).Methods("GET")
	r.HandleFunc("/auth/token", authHandler.IssueToken).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)

	// Read-only endpoints
	api.HandleFunc("/runs", simHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", simHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/agents", simHandler.GetAgents).Methods("GET")
	api.HandleFunc("/runs/{id}/queues", simHandler.GetQueues).Methods("GET")
	api.HandleFunc("/runs/{id}/events", simHandler.GetEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/report", simHandler.GetReport).Methods("GET")
	api.HandleFunc("/runs/{id}/checksum", simHandler.GetChecksum).Methods("GET")
	api.HandleFunc("/runs/{id}/feed", feedHandler.Stream).Methods("GET")

	// Mutating endpoints
	ops := api.NewRoute().Subrouter()
	ops.Use(authMW.RequireOperator)
	ops.HandleFunc("/runs", simHandler.CreateRun).Methods("POST")
	ops.HandleFunc("/runs/{id}/advance", simHandler.Advance).Methods("POST")
	ops.HandleFunc("/runs/{id}/play", playHandler.Play).Methods("POST")
	ops.HandleFunc("/runs/{id}/pause", playHandler.Pause).Methods("POST")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Simulation API started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down simulation API...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Simulation API forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Simulation API stopped gracefully", nil)
}
