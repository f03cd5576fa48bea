package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashdeck/config"
	"flashdeck/handlers/api"
	"flashdeck/handlers/web"
	"flashdeck/middleware"
	"flashdeck/state"
	"flashdeck/storage"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/websocket/v2"
)

func main() {
	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		utils.Log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	configureLogging(cfg, os.Stdout)
	utils.Log.Info("Initializing flashdeck...")

	// Initialize i18n system
	if err := utils.InitI18n(cfg.Server.Locales); err != nil {
		utils.Log.Error("Failed to initialize i18n: %v", err)
	}

	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = randomSecret()
		utils.Log.Warn("jwt.secret is not set; notification tickets will not survive a restart")
	}
	if cfg.Encryption.Key == "" {
		cfg.Encryption.Key = randomSecret()
		utils.Log.Warn("encryption.key is not set; stored backend sessions will not survive a restart")
	}

	sessionStorage, err := newSessionStorage(cfg)
	if err != nil {
		utils.Log.Error("Failed to initialize session storage: %v", err)
		os.Exit(1)
	}

	store := session.New(session.Config{
		Storage:        sessionStorage,
		Expiration:     cfg.Session.Expiration,
		CookieSecure:   cfg.Session.CookieSecure || cfg.SSL.Enabled,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		KeyLookup:      "cookie:flashdeck_session",
	})

	metrics := api.NewMetrics()
	backend, err := api.NewBackend(cfg.Backend.URL, cfg.Backend.Timeout, metrics)
	if err != nil {
		utils.Log.Error("Invalid backend: %v", err)
		os.Exit(1)
	}

	registry := state.NewRegistry(cfg.Session.ViewTTL)
	defer registry.Close()

	sessions := api.NewSessionManager(store, backend, utils.NewSealer(cfg.Encryption.Key), registry, state.Policy(cfg.Auth.Bootstrap))
	tickets := api.NewTickets(cfg.JWT.Secret, cfg.JWT.TicketTTL)
	hub := api.NewNotificationHub(tickets, metrics)

	// Initialize Fiber with template engine
	app := fiber.New(fiber.Config{
		Views:        web.NewEngine(cfg.Server.Templates, cfg.Server.Environment != "production"),
		ViewsLayout:  "layouts/main", // Default layout
		ErrorHandler: web.ErrorHandler,
	})

	// Add global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool { return c.Path() == "/events" },
	}))
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:;",
		HSTSMaxAge:            hstsMaxAge(cfg),
	}))

	app.Use(middleware.LocaleMiddleware())

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()
	app.Use(limiter.Handler())

	if cfg.Server.CSRF {
		csrfConfig := middleware.DefaultCSRFConfig()
		csrfConfig.CookieSecure = cfg.Session.CookieSecure || cfg.SSL.Enabled
		csrfConfig.Next = func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		}
		app.Use(middleware.CSRFProtection(csrfConfig))
	}

	// Serve static files
	app.Static("/assets", cfg.Server.Assets, fiber.Static{
		Compress:      true,
		CacheDuration: 24 * time.Hour,
	})

	// Operational routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/metrics", metrics.Handler())
	app.Get("/api/i18n/:lang", (&api.I18nHandler{}).GetTranslations)

	// Live notifications
	app.Get("/ws/notifications", hub.UpgradeWebSocket, hub.Authorize, websocket.New(hub.HandleWebSocket))
	app.Get("/events", hub.Authorize, hub.HandleSSE)

	// Site
	pages := web.NewPages(hub, tickets)
	web.NewHandlers(pages, metrics, cfg.Study.TransitionDelay, web.AfterFunc).Register(app, sessions.SessionMiddleware())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		utils.Log.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			utils.Log.Error("Shutdown failed: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if cfg.SSL.Enabled {
		utils.Log.Info("Starting HTTPS server on port %d...", cfg.Server.Port)
		err = app.ListenTLS(addr, cfg.SSL.CertFile, cfg.SSL.KeyFile)
	} else {
		utils.Log.Info("Starting server on port %d...", cfg.Server.Port)
		err = app.Listen(addr)
	}
	if err != nil {
		utils.Log.Error("Error starting server: %v", err)
	}

	if sessionStorage != nil {
		if err := sessionStorage.Close(); err != nil {
			utils.Log.Error("Failed to close session storage: %v", err)
		}
	}
}

func configureLogging(cfg *config.Config, w io.Writer) {
	utils.ConfigureOutput(w, cfg.Server.Environment, utils.ParseLogLevel(cfg.Server.LogLevel))
}

func newSessionStorage(cfg *config.Config) (fiber.Storage, error) {
	switch cfg.Session.Storage {
	case config.StorageRedis:
		return storage.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case config.StorageMemory:
		// nil selects Fiber's built-in in-memory storage
		return nil, nil
	default:
		return storage.NewBoltStorage(cfg.Session.DataDir, 10*time.Minute)
	}
}

func hstsMaxAge(cfg *config.Config) int {
	if cfg.HSTSHeader() == "" {
		return 0
	}
	return cfg.SSL.HSTSMaxAge
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
