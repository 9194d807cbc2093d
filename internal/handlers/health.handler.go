package handlers

import (
	"context"
	"time"

	"petintake/internal/app"

	"github.com/gofiber/fiber/v2"
)

func HealthHandler(router fiber.Router, app *app.App) {
	router.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		backends := app.Database.Ping(ctx)
		status := "ok"
		for _, state := range backends {
			if state != "ok" && state != "disabled" {
				status = "degraded"
			}
		}

		return c.JSON(fiber.Map{
			"status":         status,
			"version":        app.Config.GeneralVersion,
			"service":        "petintake",
			"backends":       backends,
			"activeSessions": app.Sessions.Len(),
			"websockets":     app.Websocket.ClientCount(),
			"scheduler":      app.Services.Scheduler.IsRunning(),
		})
	})
}
