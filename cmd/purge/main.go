// Command purge removes sends that every participant has trashed. It runs
// once and exits, for use from an external scheduler.
package main

import (
	"context"
	"flag"
	"time"

	"privmsg/config"
	"privmsg/utils"
	"privmsg/worker"

	"github.com/sirupsen/logrus"
)

func main() {
	after := flag.Duration("after", 0, "purge sends trashed longer ago than this (default PURGE_AFTER)")
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the purge after this long")
	flag.Parse()

	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.InitLogger(cfg.Environment)
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed")
	}
	defer utils.FlushSentry()

	if err := config.ConnectDB(); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	retention := cfg.Purge.After
	if *after > 0 {
		retention = *after
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pw := worker.NewPurgeWorker(config.DB, cfg.Purge.Cron, retention, logrus.WithField("component", "purge"))
	n, err := pw.RunOnce(ctx)
	if err != nil {
		utils.LogError("purge_failed", err, nil)
		utils.FlushSentry()
		logrus.Fatalf("Purge failed: %v", err)
	}
	logrus.WithField("purged", n).Info("Purge finished")
}
