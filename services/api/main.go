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

	"github.com/bizworx/bizworx-api/shared/config"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/mailer"
	"github.com/bizworx/bizworx-api/shared/notify"
	"github.com/bizworx/bizworx-api/shared/utils"
)

func main() {
	cfg := config.Load()
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Refusing to start with insecure configuration")
	}
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

	ctx := context.Background()
	rdb, err := utils.NewRedisClient(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Without Kafka the activity feed and emails are handled in-process
	var publisher events.Publisher
	if cfg.KafkaBroker != "" {
		publisher = events.NewKafkaProducer(cfg.KafkaBroker, cfg.KafkaTopic, log)
		log.WithField("topic", cfg.KafkaTopic).Info("Publishing activity events to Kafka")
	} else {
		m, err := mailer.New(cfg.AWSRegion, cfg.MailFrom, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize mailer")
		}
		publisher = events.NewInlinePublisher(notify.NewDispatcher(db, m, log))
		log.Warn("KAFKA_BROKER not set, handling activity events inline")
	}
	defer publisher.Close()

	server := NewServer(cfg, db, rdb, publisher, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("BizWorx API starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start API server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}
