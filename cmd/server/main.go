package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/shifter/server/internal/config"
	"github.com/shifter/server/internal/database"
	"github.com/shifter/server/internal/handlers"
	"github.com/shifter/server/internal/middleware"
	"github.com/shifter/server/internal/routes"
	"github.com/shifter/server/internal/storage"
	"github.com/shifter/server/pkg/logger"
	"github.com/shifter/server/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	authHandler := handlers.NewAuthHandler(db)
	filesHandler := handlers.NewFilesHandler(db, storageClient)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimit})

	// Interceptor order is fixed: panic recovery, CORS, logging, then
	// timezone activation, session resolution and forced-reset
	// enforcement before any handler runs.
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.Timezone(cfg.Server.DefaultLocation()))
	app.Use(authMiddleware.SessionAuth)
	app.Use(middleware.EnsurePasswordReset())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post(routes.Login, authHandler.Login)
	app.Post(routes.Logout, authHandler.Logout)
	app.Get(routes.Logout, authHandler.LogoutNotAllowed)

	app.Get(routes.Settings, middleware.RequireAuth, authHandler.SettingsPage)
	app.Post(routes.Settings, middleware.RequireAuth, authHandler.ChangePassword)

	app.Get(routes.NewUser, middleware.RequireAuth, middleware.StaffOnly, authHandler.NewUserPage)
	app.Post(routes.NewUser, middleware.RequireAuth, middleware.StaffOnly, authHandler.CreateUser)

	app.Get(routes.Index, middleware.RequireAuth, filesHandler.List)
	app.Post(routes.Index, middleware.RequireAuth, filesHandler.Upload)

	// Lookup by opaque hex is the only public surface; expired uploads
	// answer exactly like missing ones.
	app.Get(routes.Index+"/:hex", filesHandler.Get)
	app.Get(routes.Index+"/:hex/download", filesHandler.Download)
	app.Get(routes.Index+"/:hex/download-url", filesHandler.DownloadURL)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
