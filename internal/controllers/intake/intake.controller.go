package intakeController

import (
	"context"
	"errors"
	"strings"

	"petintake/internal/acceptance"
	"petintake/internal/constants"
	"petintake/internal/ingestion"
	"petintake/internal/services"
	"petintake/internal/sessions"
	"petintake/internal/upload"

	logger "github.com/Bparsons0904/goLogger"
)

var ErrPetIDRequired = errors.New("pet id is required")

type PetFetcher interface {
	FetchPet(ctx context.Context, tokens ingestion.TokenSource, petID string) (*ingestion.Pet, error)
}

type HistoryReader interface {
	ForSession(ctx context.Context, sessionID string, limit int) (*services.RunHistory, error)
}

type IntakeControllerInterface interface {
	CreateSession(token string) sessions.View
	GetSession(id string) (sessions.View, error)
	CloseSession(ctx context.Context, id string) error
	AddFiles(session *sessions.Session, policyName string, files []upload.File) (*sessions.AddResult, error)
	RemoveFile(session *sessions.Session, index int) (upload.EntryView, error)
	Submit(session *sessions.Session) (sessions.View, error)
	SubmitForPet(session *sessions.Session, petID string) (sessions.View, error)
	History(ctx context.Context, sessionID string, limit int) (*services.RunHistory, error)
	FetchPet(ctx context.Context, token string, petID string) (*ingestion.Pet, error)
}

type IntakeController struct {
	sessions  *sessions.Manager
	submitter sessions.Submitter
	pets      PetFetcher
	history   HistoryReader
	log       logger.Logger
}

func New(manager *sessions.Manager, services services.Service) IntakeControllerInterface {
	var history HistoryReader
	if services.RunHistory != nil {
		history = services.RunHistory
	}
	return NewWith(manager, services.Ingestion, services.Ingestion, history)
}

// NewWith builds a controller from explicit collaborators. history may be nil.
func NewWith(
	manager *sessions.Manager,
	submitter sessions.Submitter,
	pets PetFetcher,
	history HistoryReader,
) *IntakeController {
	return &IntakeController{
		sessions:  manager,
		submitter: submitter,
		pets:      pets,
		history:   history,
		log:       logger.New("intakeController"),
	}
}

func (c *IntakeController) CreateSession(token string) sessions.View {
	return c.sessions.Create(token).View()
}

func (c *IntakeController) GetSession(id string) (sessions.View, error) {
	return c.sessions.View(id)
}

func (c *IntakeController) CloseSession(ctx context.Context, id string) error {
	return c.sessions.Close(ctx, id)
}

func (c *IntakeController) AddFiles(
	session *sessions.Session,
	policyName string,
	files []upload.File,
) (*sessions.AddResult, error) {
	return session.AddFiles(acceptance.PolicyByName(policyName), files)
}

func (c *IntakeController) RemoveFile(session *sessions.Session, index int) (upload.EntryView, error) {
	return session.RemoveFile(index)
}

// Submit starts flow A and returns the session state right after the submit began.
func (c *IntakeController) Submit(session *sessions.Session) (sessions.View, error) {
	if err := session.Submit(c.submitter); err != nil {
		return sessions.View{}, err
	}
	return session.View(), nil
}

func (c *IntakeController) SubmitForPet(session *sessions.Session, petID string) (sessions.View, error) {
	petID = strings.TrimSpace(petID)
	if petID == "" {
		return sessions.View{}, ErrPetIDRequired
	}
	if err := session.SubmitForPet(petID, c.submitter); err != nil {
		return sessions.View{}, err
	}
	return session.View(), nil
}

func (c *IntakeController) History(ctx context.Context, sessionID string, limit int) (*services.RunHistory, error) {
	if c.history == nil {
		return nil, services.ErrHistoryUnavailable
	}
	if limit <= 0 {
		limit = constants.DefaultRunHistoryLimit
	}
	return c.history.ForSession(ctx, sessionID, limit)
}

func (c *IntakeController) FetchPet(ctx context.Context, token string, petID string) (*ingestion.Pet, error) {
	log := c.log.TraceFromContext(ctx).Function("FetchPet")

	petID = strings.TrimSpace(petID)
	if petID == "" {
		return nil, ErrPetIDRequired
	}

	pet, err := c.pets.FetchPet(ctx, ingestion.StaticToken(token), petID)
	if err != nil {
		log.Debug("pet fetch failed", "petID", petID, "error", err)
		return nil, err
	}
	return pet, nil
}
