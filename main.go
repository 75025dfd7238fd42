package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"price-tracker/internal/api"
	"price-tracker/internal/config"
	"price-tracker/internal/database"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/scrape"
	"price-tracker/internal/scrape/browser"
	"price-tracker/internal/tracks"
	"price-tracker/pkg/logger"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	// Acquisition pipeline
	fetcher := scrape.NewFetcher()
	automator := browser.New(log, cfg.DebugDumpDir)
	scraper := scrape.New(fetcher, automator, scrape.Config{
		PriceCeiling:             cfg.PricePlausibleMax,
		ExtendedBrowserPlatforms: cfg.ExtendedBrowserPlatforms,
	}, log)

	hub := api.NewHub(log)
	svc := tracks.NewService(db, scraper, hub, cfg.ManualRunTimeout, log)

	// Scheduler
	store := scheduler.NewGormStore(db, cfg.InstanceID, cfg.LockTTL)
	sched := scheduler.New(store, svc.Process, scheduler.Config{
		Tick:        cfg.TickInterval,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
	}, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance": cfg.InstanceID})
	})

	handler := api.SetupRoutes(r.Group("/api/v1"), svc, scraper, hub, log)
	r.GET("/ws", handler.ServeWS)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("instance", cfg.InstanceID).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
