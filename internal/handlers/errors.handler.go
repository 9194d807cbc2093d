package handlers

import (
	"errors"

	intakeController "petintake/internal/controllers/intake"
	"petintake/internal/ingestion"
	"petintake/internal/services"
	"petintake/internal/sessions"
	"petintake/internal/upload"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain errors onto HTTP statuses. Unknown errors are 500s.
func statusFor(err error) int {
	var fieldErr *wizard.FieldError
	if errors.As(err, &fieldErr) {
		return fiber.StatusBadRequest
	}

	if failure, ok := ingestion.AsFailure(err); ok {
		switch failure.Kind {
		case ingestion.Unauthenticated, ingestion.AuthExpired:
			return fiber.StatusUnauthorized
		case ingestion.ValidationRejected:
			return fiber.StatusBadRequest
		case ingestion.VerificationDataUnavailable:
			return fiber.StatusAccepted
		default:
			return fiber.StatusBadGateway
		}
	}

	switch {
	case sessions.IsConflict(err), errors.Is(err, wizard.ErrAlreadyCompleted):
		return fiber.StatusConflict
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, sessions.ErrNoWizard):
		return fiber.StatusNotFound
	case errors.Is(err, sessions.ErrSessionClosed):
		return fiber.StatusGone
	case errors.Is(err, sessions.ErrEmptyBatch),
		errors.Is(err, upload.ErrIndexOutOfRange),
		errors.Is(err, intakeController.ErrPetIDRequired),
		errors.Is(err, wizard.ErrInvalidFlow),
		errors.Is(err, wizard.ErrStepOutOfRange),
		errors.Is(err, wizard.ErrNotSkippable),
		errors.Is(err, wizard.ErrNotTerminal),
		errors.Is(err, wizard.ErrTerminalStep),
		errors.Is(err, wizard.ErrStepIncomplete),
		errors.Is(err, wizard.ErrNoVerification):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrHistoryUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders err as {"error": ...}. fallback replaces the message of unexpected
// errors so internals never reach the client.
func respondError(c *fiber.Ctx, log logger.Logger, err error, fallback string) error {
	status := statusFor(err)

	body := fiber.Map{"error": err.Error()}
	if failure, ok := ingestion.AsFailure(err); ok {
		body = fiber.Map{"error": failure.Message, "kind": failure.Kind, "retryable": failure.Retryable}
	}

	var fieldErr *wizard.FieldError
	if errors.As(err, &fieldErr) {
		body = fiber.Map{"error": fieldErr.Message, "field": fieldErr.Field}
	}

	if status == fiber.StatusInternalServerError || status == fiber.StatusBadGateway {
		log.Er(fallback, err, "status", status)
		if status == fiber.StatusInternalServerError {
			body = fiber.Map{"error": fallback}
		}
	}

	return c.Status(status).JSON(body)
}
