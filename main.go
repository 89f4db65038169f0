package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"docmail/config"
	"docmail/handlers/api"
	"docmail/mailbox"
	"docmail/middleware"
	"docmail/storage"
	"docmail/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.toml")
	if err != nil {
		utils.Log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := storage.InitDB(cfg.Cache.Path)
	if err != nil {
		utils.Log.Error("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	users := storage.NewUserStorage(db, []byte(cfg.Encryption.Key))
	messages := storage.NewMessageStorage(db, cfg.Cache.TTL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages.StartSweeper(ctx, cfg.Cache.SweepInterval())

	dial := func(address, password string) (mailbox.Session, error) {
		return mailbox.Dial(cfg.IMAP.Server, cfg.IMAP.Port, address, password)
	}
	fetcher := mailbox.NewFetcher(dial, cfg.IMAP.Folder, cfg.Fetch.Window)

	app := fiber.New(fiber.Config{
		AppName:      "docmail",
		ErrorHandler: errorHandler,
	})

	// Add global middleware
	app.Use(recover.New()) // Recover from panics
	app.Use(logger.New())  // Request logging
	app.Use(compress.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Rate limiting (100 requests per minute per IP)
	app.Use(middleware.RateLimiter(100, time.Minute))

	authHandler := api.NewAuthHandler(cfg, users)
	emailHandler := api.NewEmailHandler(fetcher, messages)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	apiRoutes := app.Group("/api")
	apiRoutes.Post("/register", authHandler.HandleRegister)
	apiRoutes.Post("/login", authHandler.HandleLogin)
	apiRoutes.Post("/logout", authHandler.HandleLogout)

	// Protected routes
	protected := apiRoutes.Group("", api.RequireAuth(users, cfg.JWT.Secret))
	protected.Get("/emails", emailHandler.HandleInbox)
	protected.Get("/emails/:id/attachments/:filename", emailHandler.HandleDownloadAttachment)
	protected.Get("/user/profile", emailHandler.HandleProfile)

	// Start server
	utils.Log.Info("Starting server on port %d...", cfg.Server.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		utils.Log.Error("Error starting server: %v", err)
	}
}

// errorHandler maps application errors onto status codes and a structured
// JSON body carrying the error classification.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := utils.KindInternal

	var appErr *utils.AppError
	var fiberErr *fiber.Error
	if errors.As(err, &appErr) {
		code = appErr.Code
		kind = appErr.Kind
		utils.Log.Error("Application error: %v", appErr)
	} else if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}
