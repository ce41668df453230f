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
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/api/handlers"
	"github.com/maheshrc27/autopost/internal/api/middleware"
	"github.com/maheshrc27/autopost/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}

	server := fiber.New(fiber.Config{
		ReadTimeout:  cfg.RunTimeout,
		WriteTimeout: cfg.RunTimeout,
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	server.Use(logger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(cfg, a.ApiKeys)

	auth := handlers.NewAuthHandler(cfg, a.Auth)
	server.Post("/login", auth.Login)
	server.Post("/logout", auth.Logout)

	api := server.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	accounts := handlers.NewAccountHandler(a.Accounts, a.Publications, a.Scheduler)
	api.Get("/accounts", accounts.ListAccounts)
	api.Post("/accounts", accounts.CreateAccount)
	api.Get("/accounts/:id", accounts.GetAccount)
	api.Put("/accounts/:id", accounts.UpdateAccount)
	api.Delete("/accounts/:id", accounts.DeleteAccount)
	api.Post("/accounts/:id/run", accounts.RunAccount)
	api.Get("/triggers", accounts.ListTriggers)

	history := handlers.NewHistoryHandler(a.History)
	api.Get("/history", history.ListHistory)
	api.Get("/stats", history.GetStats)

	apiKeys := handlers.NewApiKeyHandler(a.ApiKeys)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	// scheduler
	if err := a.Scheduler.Reload(context.Background()); err != nil {
		log.Fatalf("Failed to load schedule: %v", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(server, a)
}

func closeApp(a *app.App) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(server *fiber.App, a *app.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	a.Scheduler.Stop()
	closeApp(a)
	log.Println("Server shutdown complete.")
}
