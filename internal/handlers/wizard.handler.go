package handlers

import (
	"petintake/internal/app"
	wizardController "petintake/internal/controllers/wizard"
	"petintake/internal/handlers/middleware"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

type WizardHandler struct {
	Handler
	wizardController wizardController.WizardControllerInterface
}

func NewWizardHandler(app app.App, router fiber.Router) *WizardHandler {
	log := logger.New("handlers").File("wizard_handler")
	return &WizardHandler{
		wizardController: app.Controllers.Wizard,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *WizardHandler) Register() {
	requireSession := h.middleware.RequireSession()

	steps := h.router.Group("/sessions/:id/wizard")
	steps.Post("", requireSession, h.start)
	steps.Get("", requireSession, h.current)
	steps.Patch("/form", requireSession, h.updateForm)
	steps.Patch("/otp", requireSession, h.setCode)
	steps.Post("/advance", requireSession, h.advance)
	steps.Post("/skip", requireSession, h.skip)
	steps.Post("/back", requireSession, h.back)
	steps.Post("/reset", requireSession, h.reset)
	steps.Post("/complete", requireSession, h.complete)
	steps.Post("/resend", requireSession, h.resend)
	steps.Post("/step/:n", requireSession, h.goToStep)
}

// respond renders the snapshot alongside any error so the UI can show the inline message.
func (h *WizardHandler) respond(c *fiber.Ctx, fn string, snapshot wizard.Snapshot, err error) error {
	if err == nil {
		return c.JSON(fiber.Map{"wizard": snapshot})
	}

	log := h.log.TraceFromContext(c.UserContext()).Function(fn)
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		return respondError(c, log, err, "Wizard action failed")
	}

	body := fiber.Map{"error": err.Error()}
	if snapshot.Flow != "" {
		body["wizard"] = snapshot
		if snapshot.Message != "" {
			body["error"] = snapshot.Message
		}
		if snapshot.FieldError != nil {
			body["error"] = snapshot.FieldError.Message
			body["field"] = snapshot.FieldError.Field
		}
	}
	return c.Status(status).JSON(body)
}

func (h *WizardHandler) start(c *fiber.Ctx) error {
	var req wizardController.StartWizardRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	snapshot, err := h.wizardController.Start(c.UserContext(), middleware.GetSession(c), req.Flow)
	if err != nil {
		return h.respond(c, "start", snapshot, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"wizard": snapshot})
}

func (h *WizardHandler) current(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Current(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "current", snapshot, err)
}

func (h *WizardHandler) updateForm(c *fiber.Ctx) error {
	var patch wizard.FormPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	snapshot, err := h.wizardController.UpdateForm(c.UserContext(), middleware.GetSession(c), patch)
	return h.respond(c, "updateForm", snapshot, err)
}

func (h *WizardHandler) setCode(c *fiber.Ctx) error {
	var req wizardController.CodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	snapshot, err := h.wizardController.SetCode(c.UserContext(), middleware.GetSession(c), req.Code)
	return h.respond(c, "setCode", snapshot, err)
}

func (h *WizardHandler) advance(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Advance(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "advance", snapshot, err)
}

func (h *WizardHandler) skip(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Skip(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "skip", snapshot, err)
}

func (h *WizardHandler) back(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Back(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "back", snapshot, err)
}

func (h *WizardHandler) reset(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Reset(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "reset", snapshot, err)
}

func (h *WizardHandler) complete(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.Complete(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "complete", snapshot, err)
}

func (h *WizardHandler) resend(c *fiber.Ctx) error {
	snapshot, err := h.wizardController.ResendCode(c.UserContext(), middleware.GetSession(c))
	return h.respond(c, "resend", snapshot, err)
}

func (h *WizardHandler) goToStep(c *fiber.Ctx) error {
	step, err := c.ParamsInt("n")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid step number",
		})
	}

	snapshot, err := h.wizardController.GoToStep(c.UserContext(), middleware.GetSession(c), step)
	return h.respond(c, "goToStep", snapshot, err)
}
