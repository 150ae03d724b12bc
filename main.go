package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"privmsg/config"
	controller "privmsg/controllers"
	"privmsg/middleware"
	"privmsg/routes"
	"privmsg/utils"
	"privmsg/worker"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.InitLogger(cfg.Environment)
	logger := logrus.WithField("component", "main")

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed")
	}
	defer utils.FlushSentry()

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	var (
		redisClient *redis.Client
		storage     fiber.Storage
	)
	if cfg.Redis.Enabled {
		redisClient = utils.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unavailable, falling back to in-memory rate limiting")
			redisClient.Close()
			redisClient = nil
		} else {
			storage = middleware.NewRedisStorage(redisClient)
			defer redisClient.Close()
		}
	}
	cache := utils.NewUnreadCache(redisClient, 5*time.Minute)

	// Notification sinks
	hub := controller.NewHub(logrus.WithField("component", "websocket"))
	notifier := utils.NewMultiNotifier(logrus.WithField("component", "notifier"), hub)

	if cfg.NotifyEmail {
		notifier.Add(utils.NewMailNotifier(utils.MailConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
			SiteURL:   cfg.SiteURL,
		}, logrus.WithField("component", "mailer")))
	}

	var broker routes.Broker
	if cfg.AMQPURL != "" {
		publisher, err := utils.NewPublisher(cfg.AMQPURL)
		if err != nil {
			logger.WithError(err).Warn("Event publishing disabled")
		} else {
			defer publisher.Close()
			notifier.Add(utils.NewEventNotifier(publisher))
			broker = publisher
		}
	}

	var accessLog io.Writer
	if cfg.Environment != "production" {
		accessLog = os.Stdout
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Purge.Enabled {
		purgeWorker := worker.NewPurgeWorker(config.DB, cfg.Purge.Cron, cfg.Purge.After, logrus.WithField("component", "purge"))
		go purgeWorker.Start(ctx)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName: "privmsg",
	})

	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))

	// Setup routes
	routes.SetupRoutes(app, config.DB, routes.Options{
		JWTSecret:        cfg.JWTSecret,
		PaginateBy:       cfg.PaginateBy,
		ComposeRateLimit: cfg.ComposeRateLimit,
		RateLimitStorage: storage,
		Notifier:         notifier,
		Cache:            cache,
		Hub:              hub,
		Broker:           broker,
		AccessLog:        accessLog,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
