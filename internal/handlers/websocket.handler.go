package handlers

import (
	"petintake/internal/app"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const sessionLocalKey = "wsSessionID"

func setupWebSocketRoute(router fiber.Router, app *app.App) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		sessionID := c.Query("session")
		if _, err := app.Sessions.Get(sessionID); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}

		c.Locals(sessionLocalKey, sessionID)
		return c.Next()
	})

	router.Get("/ws", websocket.New(func(c *websocket.Conn) {
		sessionID, _ := c.Locals(sessionLocalKey).(string)
		app.Websocket.HandleWebSocket(c, sessionID)
	}))
}
