// Package main recomputes every paragraph comment counter from the stored comments.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/wiki-engagement/internal/config"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/storage"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "Upper bound for the recount")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	changed, err := storage.NewCommentRepository(db).RecalculateCommentCounts(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Recount failed")
	}

	logger.WithFields(map[string]interface{}{
		"changed":    changed,
		"durationMs": time.Since(start).Milliseconds(),
	}).Info("Paragraph comment counts recalculated")
}
