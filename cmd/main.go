package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/config"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/tenant/tenantsrv"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("configuration error: %v", err)
	}

	container := NewContainer(cfg)
	defer container.Cleanup()

	// "register-app" onboards a tenant from the command line; credentials are
	// printed exactly once. There is no HTTP surface for onboarding.
	if len(os.Args) > 1 && os.Args[1] == "register-app" {
		registerApp(container, os.Args[2:])
		return
	}

	logx.Info("starting bifrost identity provider")

	app := fiber.New(fiber.Config{
		AppName:               "Bifrost IdP",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.HTTP.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Get("/health", healthCheckHandler(container))

	container.Handlers.RegisterRoutes(app, container.ClientAuth)
	logx.Info("internal routes registered")

	app.Use(notFoundHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.StartBackgroundServices(ctx)

	startServer(app, cfg.HTTP.Port)
}

// registerApp onboards a tenant application.
func registerApp(container *Container, args []string) {
	fs := flag.NewFlagSet("register-app", flag.ExitOnError)
	name := fs.String("name", "", "application name (required)")
	callback := fs.String("callback-url", "", "OAuth callback URL (required)")
	webURL := fs.String("web-url", "", "public web URL")
	apiURL := fs.String("api-url", "", "backend base URL for webhook delivery")
	methods := fs.String("auth-methods", "email", "comma-separated auth methods")
	fs.Parse(args)

	if *name == "" || *callback == "" {
		fmt.Fprintln(os.Stderr, "register-app: -name and -callback-url are required")
		fs.Usage()
		os.Exit(2)
	}

	in := tenantsrv.RegisterInput{
		AppName:            *name,
		CallbackURL:        *callback,
		AllowedAuthMethods: strings.Split(*methods, ","),
	}
	if *webURL != "" {
		in.WebURL = webURL
	}
	if *apiURL != "" {
		in.APIURL = apiURL
	}

	reg, err := container.Tenants.Register(context.Background(), in)
	if err != nil {
		logx.Fatalf("failed to register application: %v", err)
	}

	fmt.Println("Application registered. Store these credentials now; the client secret is not recoverable.")
	fmt.Printf("  client_id:      %s\n", reg.App.ClientID)
	fmt.Printf("  client_secret:  %s\n", reg.ClientSecret)
	fmt.Printf("  webhook_secret: %s\n", reg.WebhookSecret)
}

// ============================================================================
// Handlers
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "bifrost",
		}

		if err := container.DB.Ping(); err != nil {
			health["db"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}

		if err := container.Redis.Ping(c.Context()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler converts internal errors to standard HTTP responses.
func globalErrorHandler(c *fiber.Ctx, err error) error {
	logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Get("X-Request-ID"),
	}).Errorf("request error: %v", err)

	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error":      e.Message,
			"code":       "FIBER_ERROR",
			"request_id": c.Get("X-Request-ID"),
		})
	}

	if e, ok := err.(*errx.Error); ok {
		response := fiber.Map{
			"error":      e.Message,
			"code":       e.Code,
			"type":       string(e.Type),
			"request_id": c.Get("X-Request-ID"),
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"code":       "INTERNAL_ERROR",
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Server lifecycle
// ============================================================================

func startServer(app *fiber.App, port string) {
	go func() {
		logx.Infof("server listening on port %s", port)
		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logx.Infof("received signal %v, shutting down", sig)

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("server forced to shutdown: %v", err)
	}
	logx.Info("server exited")
}
