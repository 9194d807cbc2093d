package wizardController

import (
	"context"

	"petintake/internal/services"
	"petintake/internal/sessions"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
)

type StartWizardRequest struct {
	Flow string `json:"flow"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type WizardControllerInterface interface {
	Start(ctx context.Context, session *sessions.Session, flow string) (wizard.Snapshot, error)
	Current(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	UpdateForm(ctx context.Context, session *sessions.Session, patch wizard.FormPatch) (wizard.Snapshot, error)
	Advance(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	Skip(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	Back(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	GoToStep(ctx context.Context, session *sessions.Session, step int) (wizard.Snapshot, error)
	Reset(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	SetCode(ctx context.Context, session *sessions.Session, code string) (wizard.Snapshot, error)
	ResendCode(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
	Complete(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error)
}

type WizardController struct {
	pets     wizard.Pets
	accounts wizard.Accounts
	log      logger.Logger
}

func New(services services.Service) WizardControllerInterface {
	return NewWith(services.PetAPI, services.PetAPI)
}

func NewWith(pets wizard.Pets, accounts wizard.Accounts) *WizardController {
	return &WizardController{
		pets:     pets,
		accounts: accounts,
		log:      logger.New("wizardController"),
	}
}

func (c *WizardController) Start(
	ctx context.Context,
	session *sessions.Session,
	flow string,
) (wizard.Snapshot, error) {
	def, err := wizard.FlowByName(flow, c.pets, c.accounts)
	if err != nil {
		return wizard.Snapshot{}, err
	}
	return session.StartWizard(ctx, def)
}

func (c *WizardController) Current(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	view := session.View()
	if view.Wizard == nil {
		return wizard.Snapshot{}, sessions.ErrNoWizard
	}
	return *view.Wizard, nil
}

func (c *WizardController) UpdateForm(
	ctx context.Context,
	session *sessions.Session,
	patch wizard.FormPatch,
) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		m.Update(patch)
		return nil
	})
}

func (c *WizardController) Advance(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.Advance(ctx)
	})
}

func (c *WizardController) Skip(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.Skip()
	})
}

func (c *WizardController) Back(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.Back()
	})
}

func (c *WizardController) GoToStep(
	ctx context.Context,
	session *sessions.Session,
	step int,
) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.GoToStep(step)
	})
}

func (c *WizardController) Reset(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		m.Reset()
		return nil
	})
}

func (c *WizardController) SetCode(
	ctx context.Context,
	session *sessions.Session,
	code string,
) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.SetCode(code)
	})
}

func (c *WizardController) ResendCode(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		return m.ResendCode(ctx)
	})
}

// Complete runs the terminal action with the session's credential. A credential issued by the
// flow itself replaces it so later uploads in the same session are authenticated.
func (c *WizardController) Complete(ctx context.Context, session *sessions.Session) (wizard.Snapshot, error) {
	log := c.log.TraceFromContext(ctx).Function("Complete")

	token, _ := session.Token()
	return session.Wizard(ctx, func(m *wizard.Machine) error {
		outcome, err := m.Complete(ctx, token)
		if err != nil {
			return err
		}
		if outcome != nil && outcome.Token != "" {
			session.SetCredential(outcome.Token)
			log.Info("Session credential issued by wizard", "sessionID", session.ID, "petID", outcome.PetID)
		}
		return nil
	})
}
