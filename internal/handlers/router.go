package handlers

import (
	"petintake/internal/app"
	"petintake/internal/handlers/middleware"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	middleware middleware.Middleware
	log        logger.Logger
	router     fiber.Router
}

func Router(router fiber.Router, app *app.App) (err error) {
	router.Use(app.Middleware.TraceID())
	setupWebSocketRoute(router, app)

	api := router.Group("/api", app.Middleware.CaptureCredential())
	HealthHandler(api, app)
	NewIntakeHandler(*app, api).Register()
	NewWizardHandler(*app, api).Register()

	return nil
}
