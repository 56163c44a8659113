package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/config"
	"github.com/bizworx/bizworx-api/shared/mailer"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/notify"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// The retry consumer re-sends client emails that failed, with exponential backoff.
func main() {
	cfg := config.Load()
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.ConnectDatabase()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	if err := config.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	m, err := mailer.New(cfg.AWSRegion, cfg.MailFrom, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize mailer")
	}
	retrier := notify.NewRetrier(db, notify.NewDispatcher(db, m, log), notify.RetryConfig{
		MaxRetries: cfg.RetryMaxAttempts,
		BatchSize:  cfg.RetryBatchSize,
		Interval:   cfg.RetryInterval,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		retrier.Run(ctx)
	}()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "retry-consumer",
		})
	})
	router.GET("/stats", func(c *gin.Context) {
		stats, err := retrier.Stats(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("failed to load retry stats")
			utils.InternalServerErrorResponse(c, "Failed to load retry stats")
			return
		}
		utils.OKResponse(c, "Retry stats", stats)
	})
	router.GET("/metrics", metrics.Handler())

	port := cfg.RetryConsumerPort
	srv := &http.Server{Addr: ":" + port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("Retry consumer starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start retry consumer")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down retry consumer")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
}
