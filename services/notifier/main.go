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
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/mailer"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/notify"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// The notifier consumes activity events from Kafka: it fills the activity feed and
// emails clients about shared estimates and sent invoices.
func main() {
	cfg := config.Load()
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.KafkaBroker == "" {
		log.Fatal("KAFKA_BROKER is required for the notifier")
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
	dispatcher := notify.NewDispatcher(db, m, log)

	consumer := events.NewKafkaConsumer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroup, log)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx, dispatcher); err != nil {
			log.WithError(err).Error("Event consumer stopped")
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			utils.ServiceUnavailableResponse(c, "Notifier is degraded")
			return
		}
		utils.OKResponse(c, "Notifier is healthy", gin.H{"topic": cfg.KafkaTopic, "group": cfg.KafkaGroup})
	})
	router.GET("/metrics", metrics.Handler())

	port := cfg.NotifierPort
	srv := &http.Server{Addr: ":" + port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("Notifier starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start notifier")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down notifier")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
}
