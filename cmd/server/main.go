// Package main provides the API server and digest scheduler entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wiki-engagement/internal/api"
	"github.com/wiki-engagement/internal/clock"
	"github.com/wiki-engagement/internal/config"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/mail"
	"github.com/wiki-engagement/internal/retry"
	"github.com/wiki-engagement/internal/service"
	"github.com/wiki-engagement/internal/storage"
	"github.com/wiki-engagement/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	clk := clock.Real()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	accounts := storage.NewAccountRepository(postgres)
	comments := storage.NewCommentRepository(postgres)
	pages := storage.NewPageRepository(postgres)
	notifications := storage.NewNotificationRepository(postgres)

	var settings service.SettingsRepository = storage.NewSettingsRepository(postgres)
	var claims worker.DeliveryClaims

	if cfg.Database.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without settings cache and delivery claims")
		} else {
			defer func() { _ = redis.Close() }()
			settings = storage.NewSettingsCache(settings, redis, cfg.Cache.SettingsTTL, logger)
			claims = storage.NewDeliveryClaims(redis, instanceID())
		}
	}

	var audit service.AbuseAuditSink
	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, abuse events will not be archived")
		} else {
			defer func() { _ = ch.Close() }()
			audit = storage.NewAbuseEventRepository(ch)
		}
	}

	logger.Info("Storage initialized")

	guard, err := service.NewGuard(service.GuardConfig{
		Accounts:        accounts,
		Comments:        comments,
		Clock:           clk,
		CommentInterval: cfg.Admission.CommentInterval,
		Logger:          logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create admission guard")
	}

	detector, err := service.NewAbuseDetector(service.AbuseDetectorConfig{
		Accounts:       accounts,
		Comments:       comments,
		Audit:          audit,
		Window:         cfg.Admission.AbuseWindow,
		Threshold:      cfg.Admission.AbuseDistinctAuthors,
		FreezeDuration: cfg.Admission.FreezeDuration,
		Logger:         logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create abuse detector")
	}

	fanout, err := service.NewFanout(service.FanoutConfig{
		Accounts:      accounts,
		Comments:      comments,
		Pages:         pages,
		Settings:      settings,
		Notifications: notifications,
		Clock:         clk,
		Logger:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification fan-out")
	}

	commentService, err := service.NewCommentService(service.CommentServiceConfig{
		Guard:    guard,
		Detector: detector,
		Fanout:   fanout,
		Accounts: accounts,
		Comments: comments,
		Counter:  comments,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create comment service")
	}

	mailer, err := newMailer(cfg, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create mailer")
	}
	renderer, err := mail.NewRenderer(cfg.Mail.BaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create email renderer")
	}

	scheduler, err := worker.NewDigestScheduler(&worker.DigestSchedulerConfig{
		Notifications: notifications,
		Settings:      settings,
		Recipients:    accounts,
		Mailer:        mailer,
		Renderer:      renderer,
		Claims:        claims,
		Clock:         clk,
		TickInterval:  cfg.Digest.TickInterval,
		ErrorBackoff:  cfg.Digest.ErrorBackoff,
		SendTimeout:   cfg.Digest.SendTimeout,
		HourlyWindow:  cfg.Digest.HourlyWindow,
		DailyWindow:   cfg.Digest.DailyWindow,
		ClaimTTL:      cfg.Digest.ClaimTTL,
		MarkRetry:     retry.DefaultRetryConfig(),
		Logger:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create digest scheduler")
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if err := scheduler.Start(schedulerCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start digest scheduler")
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestsPerSec:  cfg.Server.RequestsPerSec,
	}, api.Dependencies{
		Comments:  commentService,
		Pages:     service.NewPageService(fanout, logger),
		Settings:  service.NewSettingsService(settings, clk),
		Accounts:  accounts,
		Scheduler: scheduler,
		Logger:    logger,
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := scheduler.Stop(ctx); err != nil {
		logger.WithError(err).Error("Digest scheduler did not stop cleanly")
	}

	logger.Info("Server exited")
}

// newMailer selects SMTP when a host is configured and the logging sender otherwise
func newMailer(cfg *config.Config, clk clock.Clock, logger *logging.Logger) (mail.Sender, error) {
	if cfg.Mail.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, notification emails will only be logged")
		return mail.NewLogSender(logger), nil
	}

	port, err := strconv.Atoi(cfg.Mail.SMTPPort)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", cfg.Mail.SMTPPort, err)
	}

	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:            cfg.Mail.SMTPHost,
		Port:            port,
		Username:        cfg.Mail.Username,
		Password:        cfg.Mail.Password,
		From:            cfg.Mail.From,
		Timeout:         cfg.Digest.SendTimeout,
		RatePerSecond:   float64(cfg.Mail.RatePerSecond),
		BreakerFailures: cfg.Mail.BreakerFailures,
		BreakerTimeout:  cfg.Mail.BreakerTimeout,
		Clock:           clk,
		Logger:          logger,
	})
}

// instanceID names this process as the owner of its delivery claims
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "scheduler"
	}
	return host + "-" + uuid.NewString()[:8]
}
