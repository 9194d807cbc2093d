package server

import (
	"fmt"
	"time"

	"petintake/config"
	"petintake/internal/app"
	"petintake/internal/handlers"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberLogs "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/helmet/v2"
)

// MaxBodyBytes leaves room for several oversized files so they can be rejected by policy
// instead of by the transport.
const MaxBodyBytes = 64 * 1024 * 1024

const (
	uploadTimeout = 2 * time.Minute
	idleTimeout   = 120 * time.Second
)

type AppServer struct {
	FiberApp *fiber.App
	log      logger.Logger
}

func New(app *app.App) (*AppServer, error) {
	log := logger.New("server").Function("New")
	log.Info("Initializing server", "environment", app.Config.Environment)

	fiberApp := fiber.New(fiberConfig(app.Config))
	fiberApp.Use(cors.New(corsConfig(app.Config.CorsAllowOrigins)))
	fiberApp.Use(fiberLogs.New(fiberLogs.Config{
		Format: "${time} ${status} ${method} ${path} ${latency} trace=${respHeader:X-Trace-ID}\n",
	}))
	fiberApp.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws"
		},
	}))
	fiberApp.Use(helmet.New(securityHeaders()))

	if err := handlers.Router(fiberApp, app); err != nil {
		return nil, log.Err("failed to initialize handlers", err)
	}

	return &AppServer{
		FiberApp: fiberApp,
		log:      log,
	}, nil
}

func fiberConfig(cfg config.Config) fiber.Config {
	fc := fiber.Config{
		ServerHeader:            fmt.Sprintf("PetIntake/%s", cfg.GeneralVersion),
		AppName:                 "petintake",
		BodyLimit:               MaxBodyBytes,
		ReadBufferSize:          16384,
		WriteBufferSize:         16384,
		EnableTrustedProxyCheck: true,
		ReadTimeout:             uploadTimeout,
		WriteTimeout:            30 * time.Second,
		IdleTimeout:             idleTimeout,
		DisableStartupMessage:   true,
	}

	if cfg.Environment == "development" {
		fc.DisableStartupMessage = false
		fc.EnablePrintRoutes = true
	}
	return fc
}

// corsConfig only allows credentials for an explicit origin list. Fiber refuses credentials
// with a wildcard origin.
func corsConfig(origins string) cors.Config {
	if origins == "" {
		origins = "*"
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET, POST, PATCH, DELETE, OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, X-Trace-ID",
		AllowCredentials: origins != "*",
		ExposeHeaders:    "X-Trace-ID",
		MaxAge:           300,
	}
}

// securityHeaders is tuned for a JSON API: nothing it serves is meant to be rendered or framed.
func securityHeaders() helmet.Config {
	return helmet.Config{
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "no-referrer",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-site",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
	}
}

func (s *AppServer) Listen(port int) error {
	log := s.log.Function("Listen")

	if port <= 0 {
		return log.Error("invalid port", "port", port)
	}

	log.Info("Starting server", "port", port)
	return s.FiberApp.Listen(fmt.Sprintf(":%d", port))
}
