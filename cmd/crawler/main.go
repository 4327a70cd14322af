package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/castpipe/castpipe/db"
	"github.com/castpipe/castpipe/internal/api"
	"github.com/castpipe/castpipe/internal/config"
	"github.com/castpipe/castpipe/internal/crawler"
	"github.com/castpipe/castpipe/internal/fetcher"
	"github.com/castpipe/castpipe/internal/models"
	"github.com/castpipe/castpipe/internal/parser"
	"github.com/castpipe/castpipe/internal/storage/postgres"
	"github.com/castpipe/castpipe/internal/task"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
)

func main() {
	// Load the dotenv if exists
	_ = godotenv.Load()

	var env config.Server
	err := envconfig.Process("", &env)
	if err != nil {
		log.Fatal("Cannot load env:", err)
	}

	// Setup structured logging
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	slog.Info("Starting podcast crawler")

	// Run database migrations
	d, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		log.Fatal("Failed to load migrations:", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, env.Database.ToMigrationUri())
	if err != nil {
		log.Fatal("Failed to create migrate instance:", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("Failed to run migrations:", err)
		}
	}
	slog.Info("Migrations ran successfully")

	// Initialize database connection pool
	dbPool, err := pgxpool.New(context.Background(), env.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal("Failed to create database pool:", err)
	}
	defer dbPool.Close()

	// Test database connection
	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	slog.Info("Database connection established")

	// Initialize storage layer
	store := postgres.NewStore(dbPool)

	// Wire the task management core: fetch -> parse -> batch upsert
	feedFetcher := fetcher.New(fetcher.Config{
		Timeout:   time.Duration(env.Crawler.FetchTimeoutS) * time.Second,
		UserAgent: env.Crawler.UserAgent,
	})
	feedParser := parser.New()

	flushFn := func(ctx context.Context, batch []*task.Task) error {
		feeds := make([]*models.ParsedFeed, 0, len(batch))
		for _, t := range batch {
			result, ok := t.StageResult(task.StageParsing)
			if !ok {
				continue
			}
			if feed, ok := result.(*models.ParsedFeed); ok {
				feeds = append(feeds, feed)
			}
		}
		return store.UpsertFeeds(ctx, feeds)
	}

	system := crawler.NewSystem(crawler.Config{
		WorkerCount:          env.Crawler.WorkerCount,
		MaxHistorySize:       env.Crawler.MaxHistorySize,
		MaxRetries:           env.Crawler.MaxRetries,
		BaseBackoff:          env.Crawler.BaseBackoff(),
		BatchSize:            env.Crawler.BatchSize,
		BatchTimeout:         env.Crawler.BatchTimeout(),
		MaxConcurrentFlushes: env.Crawler.MaxConcurrentFlushes,
		DispatchBuffer:       env.Crawler.DispatchBuffer,
		AwaitTimeout:         time.Duration(env.Crawler.AwaitTimeoutS) * time.Second,
		ShutdownTimeout:      time.Duration(env.Crawler.ShutdownTimeoutS) * time.Second,
		TimerDrainTimeout:    time.Duration(env.Crawler.TimerDrainTimeoutS) * time.Second,
		Policy:               crawler.SelectionPolicy(env.Crawler.DistributionPolicy),
		Epsilon:              env.Crawler.AffinityEpsilon,
	}, feedFetcher, feedParser, flushFn)
	system.Start()

	// Initialize API handler
	apiHandler := api.NewHandler(store, system)

	// Setup HTTP routes
	r := gin.Default()
	apiHandler.RegisterRoutes(r)

	// Readiness probes the database connection
	r.GET("/readiness", func(c *gin.Context) {
		if err := dbPool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	srv := &http.Server{
		Addr:    ":" + env.ServerPort,
		Handler: r,
	}

	// Start HTTP server in goroutine
	go func() {
		slog.Info("HTTP server listening", "port", env.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error:", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down crawler...")

	// Stop accepting admin requests first, then drain the pipeline
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	system.Shutdown(time.Duration(env.Crawler.ShutdownTimeoutS) * time.Second)

	slog.Info("Crawler exited gracefully")
}
