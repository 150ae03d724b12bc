package routes

import (
	"io"
	"time"

	controller "privmsg/controllers"
	"privmsg/forms"
	"privmsg/middleware"
	"privmsg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Broker is the event publisher as seen by the health check.
type Broker interface {
	IsConnected() bool
}

// Options carries what the message routes need besides the database.
// Everything except JWTSecret is optional. A nil AccessLog disables request
// logging.
type Options struct {
	JWTSecret        string
	PaginateBy       int
	ComposeRateLimit int
	RateLimitStorage fiber.Storage
	Notifier         *utils.MultiNotifier
	Cache            *utils.UnreadCache
	Hub              *controller.Hub
	Broker           Broker
	RecipientFilter  forms.RecipientFilter
	AccessLog        io.Writer
}

func SetupMessageRoutes(app *fiber.App, db *gorm.DB, opts Options) *controller.MessageController {
	msgLogger := logrus.WithField("component", "messages")
	mc := controller.NewMessageController(db, msgLogger, opts.Notifier, opts.Cache, opts.PaginateBy)
	if opts.RecipientFilter != nil {
		mc.SetRecipientFilter(opts.RecipientFilter)
	}

	// The access log wraps auth so rejected requests are logged too
	var handlers []fiber.Handler
	if opts.AccessLog != nil {
		handlers = append(handlers, logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
			Output: opts.AccessLog,
		}))
	}
	handlers = append(handlers, middleware.Protected(db, opts.JWTSecret))
	messages := app.Group("/messages", handlers...)

	limit := opts.ComposeRateLimit
	if limit <= 0 {
		limit = 30
	}
	sendLimiter := middleware.ComposeRateLimiter(limit, opts.RateLimitStorage)

	// Boxes
	messages.Get("/inbox", mc.Inbox)
	messages.Get("/outbox", mc.Outbox)
	messages.Get("/trash", mc.Trash)
	messages.Get("/unread-count", mc.UnreadCount)

	// Sending
	messages.Get("/compose", mc.ComposeForm)
	messages.Get("/compose/:recipient", mc.ComposeForm)
	messages.Post("/compose", sendLimiter, mc.Compose)
	messages.Get("/reply/:id", mc.ReplyForm)
	messages.Post("/reply/:id", sendLimiter, mc.Reply)

	// Single message actions
	messages.Get("/view/:id", mc.View)
	messages.Post("/delete/:id", mc.Delete)
	messages.Post("/undelete/:id", mc.Undelete)
	messages.Post("/unread/:id", mc.MarkUnread)
	messages.Post("/trash", mc.BulkTrash)

	// Live notifications
	if opts.Hub != nil {
		messages.Get("/ws", opts.Hub.Upgrade, opts.Hub.Handler())
	}

	msgLogger.Info("Message routes initialized successfully")
	return mc
}

func SetupRoutes(app *fiber.App, db *gorm.DB, opts Options) {
	started := time.Now()

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		amqp := "disabled"
		if opts.Broker != nil {
			amqp = "disconnected"
			if opts.Broker.IsConnected() {
				amqp = "connected"
			}
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"uptime": time.Since(started).Round(time.Second).String(),
			"amqp":   amqp,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupMessageRoutes(app, db, opts)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
