package handlers

import (
	"fmt"
	"io"
	"mime/multipart"

	"petintake/internal/app"
	"petintake/internal/constants"
	intakeController "petintake/internal/controllers/intake"
	"petintake/internal/handlers/middleware"
	"petintake/internal/upload"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

const filesField = "files"

type IntakeHandler struct {
	Handler
	intakeController intakeController.IntakeControllerInterface
}

func NewIntakeHandler(app app.App, router fiber.Router) *IntakeHandler {
	log := logger.New("handlers").File("intake_handler")
	return &IntakeHandler{
		intakeController: app.Controllers.Intake,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *IntakeHandler) Register() {
	requireSession := h.middleware.RequireSession()

	sessions := h.router.Group("/sessions")
	sessions.Post("", h.createSession)
	sessions.Get("/:id", requireSession, h.getSession)
	sessions.Delete("/:id", h.closeSession)

	sessions.Post("/:id/files", requireSession, h.addFiles)
	sessions.Delete("/:id/files/:index", requireSession, h.removeFile)

	sessions.Post("/:id/submit", requireSession, h.submit)
	sessions.Post("/:id/pets/:petId/submit", requireSession, h.submitForPet)

	sessions.Get("/:id/runs", h.listRuns)

	h.router.Get("/pets/:petId", h.fetchPet)
}

func (h *IntakeHandler) createSession(c *fiber.Ctx) error {
	view := h.intakeController.CreateSession(middleware.GetCredential(c))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": view,
	})
}

func (h *IntakeHandler) getSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"session": middleware.GetSession(c).View(),
	})
}

func (h *IntakeHandler) closeSession(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("closeSession")

	if err := h.intakeController.CloseSession(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, log, err, "Failed to close session")
	}
	return c.Status(fiber.StatusNoContent).Send(nil)
}

func (h *IntakeHandler) addFiles(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("addFiles")

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Expected a multipart form",
		})
	}

	headers := form.File[filesField]
	if len(headers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files provided",
		})
	}

	files, err := readFiles(headers)
	if err != nil {
		log.Er("failed to read uploaded files", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded files",
		})
	}

	result, err := h.intakeController.AddFiles(middleware.GetSession(c), c.Query("policy"), files)
	if err != nil {
		return respondError(c, log, err, "Failed to add files")
	}

	return c.JSON(result)
}

func readFiles(headers []*multipart.FileHeader) ([]upload.File, error) {
	files := make([]upload.File, 0, len(headers))
	for _, header := range headers {
		content, err := readFile(header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", header.Filename, err)
		}
		files = append(files, upload.File{
			Name:    header.Filename,
			Type:    header.Header.Get(fiber.HeaderContentType),
			Content: content,
		})
	}
	return files, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

func (h *IntakeHandler) removeFile(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("removeFile")

	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid file index",
		})
	}

	removed, err := h.intakeController.RemoveFile(middleware.GetSession(c), index)
	if err != nil {
		return respondError(c, log, err, "Failed to remove file")
	}

	return c.JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *IntakeHandler) submit(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("submit")

	view, err := h.intakeController.Submit(middleware.GetSession(c))
	if err != nil {
		return respondError(c, log, err, "Failed to start submission")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session": view,
	})
}

func (h *IntakeHandler) submitForPet(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("submitForPet")

	view, err := h.intakeController.SubmitForPet(middleware.GetSession(c), c.Params("petId"))
	if err != nil {
		return respondError(c, log, err, "Failed to start submission")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session": view,
	})
}

func (h *IntakeHandler) listRuns(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("listRuns")

	limit := c.QueryInt("limit", constants.DefaultRunHistoryLimit)
	history, err := h.intakeController.History(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return respondError(c, log, err, "Failed to load ingestion history")
	}

	return c.JSON(history)
}

func (h *IntakeHandler) fetchPet(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("fetchPet")

	pet, err := h.intakeController.FetchPet(c.UserContext(), middleware.GetCredential(c), c.Params("petId"))
	if err != nil {
		return respondError(c, log, err, "Failed to load pet")
	}

	return c.JSON(fiber.Map{
		"pet": pet,
	})
}
