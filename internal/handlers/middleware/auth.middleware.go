package middleware

import (
	"strings"
	"time"

	"petintake/internal/ingestion"
	"petintake/internal/sessions"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CredentialKeyFiber = "Credential"
	SubjectKeyFiber    = "Subject"
	SessionKeyFiber    = "Session"
)

// CaptureCredential reads an optional bearer token. Tokens are issued and verified by the pet
// API; JWTs are only decoded here to reject ones that have visibly expired.
func (m *Middleware) CaptureCredential() fiber.Handler {
	return func(c *fiber.Ctx) error {
		log := m.log.TraceFromContext(c.UserContext()).Function("CaptureCredential")

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Next()
		}

		tokenParts := strings.Fields(authHeader)
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			log.Info("invalid authorization header format")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}
		token := tokenParts[1]

		subject, expired := inspectToken(token, time.Now())
		if expired {
			log.Info("expired bearer token", "subject", subject)
			failure := ingestion.NewFailure(ingestion.AuthExpired, nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": failure.Message,
				"kind":  failure.Kind,
			})
		}

		c.Locals(CredentialKeyFiber, token)
		if subject != "" {
			c.Locals(SubjectKeyFiber, subject)
		}
		return c.Next()
	}
}

// inspectToken decodes a JWT without verifying it. Opaque tokens report no subject and are
// never treated as expired.
func inspectToken(token string, now time.Time) (subject string, expired bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", false
	}

	if sub, err := parsed.Claims.GetSubject(); err == nil {
		subject = sub
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return subject, false
	}
	return subject, !now.Before(exp.Time)
}

// RequireSession resolves the :id route param to a live session and hands it any captured
// credential.
func (m *Middleware) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		log := logger.New("middleware").TraceFromContext(c.UserContext()).Function("RequireSession")

		session, err := m.sessions.Get(c.Params("id"))
		if err != nil {
			log.Debug("session not found", "sessionID", c.Params("id"))
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}

		if token := GetCredential(c); token != "" {
			session.SetCredential(token)
		}

		c.Locals(SessionKeyFiber, session)
		return c.Next()
	}
}

func GetCredential(c *fiber.Ctx) string {
	token, _ := c.Locals(CredentialKeyFiber).(string)
	return token
}

func GetSubject(c *fiber.Ctx) string {
	subject, _ := c.Locals(SubjectKeyFiber).(string)
	return subject
}

func GetSession(c *fiber.Ctx) *sessions.Session {
	session, ok := c.Locals(SessionKeyFiber).(*sessions.Session)
	if !ok {
		return nil
	}
	return session
}
