package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"petintake/internal/ingestion"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	FlowPetOnly = "pet"
	FlowFull    = "full"
)

type Pets interface {
	CreatePet(ctx context.Context, token string, draft PetDraft) (string, error)
}

type Accounts interface {
	Register(ctx context.Context, registration Registration) error
	VerifyCode(ctx context.Context, email, code string) (string, error)
	ResendCode(ctx context.Context, email string) error
}

var errNoPetID = errors.New("create pet response has no id")

// PetOnlyFlow is identity, health, safety; safety creates the pet with the caller's token.
func PetOnlyFlow(pets Pets) Definition {
	log := logger.New("wizard").Function("PetOnlyFlow")

	return Definition{
		Name: FlowPetOnly,
		Steps: []StepSpec{
			{Name: "identity", Title: "About your pet", Validate: IdentityStep()},
			{Name: "health", Title: "Health", Validate: HealthStep()},
			{
				Name:     "safety",
				Title:    "Safety & care",
				Validate: SafetyStep(),
				Terminal: func(ctx context.Context, req TerminalRequest) (*Outcome, error) {
					if strings.TrimSpace(req.Token) == "" {
						return nil, ingestion.NewFailure(ingestion.Unauthenticated, nil)
					}
					return createPet(ctx, log, pets, req.Token, req.Form)
				},
			},
		},
	}
}

// FullFlow adds contact and verify steps. Leaving contact registers the account and sends a
// code; verify exchanges the code for a token and creates the pet with it.
func FullFlow(pets Pets, accounts Accounts) Definition {
	log := logger.New("wizard").Function("FullFlow")

	return Definition{
		Name: FlowFull,
		Steps: []StepSpec{
			{Name: "identity", Title: "About your pet", Validate: IdentityStep()},
			{Name: "health", Title: "Health", Validate: HealthStep()},
			{Name: "safety", Title: "Safety & care", Validate: SafetyStep(), Optional: true},
			{
				Name:     "contact",
				Title:    "Your details",
				Validate: ContactStep(),
				BeforeAdvance: func(ctx context.Context, form Form) error {
					if err := accounts.Register(ctx, form.Registration()); err != nil {
						log.Er("account registration failed", err, "email", form.Email)
						return err
					}
					return nil
				},
			},
			{
				Name:         "verify",
				Title:        "Verify your email",
				Validate:     VerificationCode(),
				Verification: true,
				Terminal: func(ctx context.Context, req TerminalRequest) (*Outcome, error) {
					email := strings.TrimSpace(req.Form.Email)
					token, err := accounts.VerifyCode(ctx, email, req.Code)
					if err != nil {
						log.Er("code verification failed", err, "email", email)
						return nil, err
					}

					outcome, err := createPet(ctx, log, pets, token, req.Form)
					if err != nil {
						return nil, err
					}
					outcome.Token = token
					return outcome, nil
				},
			},
		},
		ResendCode: func(ctx context.Context, form Form) error {
			return accounts.ResendCode(ctx, strings.TrimSpace(form.Email))
		},
	}
}

// FlowByName resolves the flow requested by the UI.
func FlowByName(name string, pets Pets, accounts Accounts) (Definition, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FlowPetOnly:
		return PetOnlyFlow(pets), nil
	case FlowFull:
		return FullFlow(pets, accounts), nil
	default:
		return Definition{}, fmt.Errorf("%w: unknown flow %q", ErrInvalidFlow, name)
	}
}

func Exits(petID string) []Exit {
	base := "/pets/" + url.PathEscape(petID)
	return []Exit{
		{Name: "home", Target: base},
		{Name: "upload", Target: base + "/upload"},
	}
}

func createPet(ctx context.Context, log logger.Logger, pets Pets, token string, form Form) (*Outcome, error) {
	petID, err := pets.CreatePet(ctx, token, form.Draft())
	if err != nil {
		log.Er("pet creation failed", err, "name", form.Name)
		return nil, err
	}
	if petID == "" {
		return nil, log.Err("pet creation returned no id", errNoPetID)
	}

	log.Info("Pet created from wizard", "petID", petID)
	return &Outcome{PetID: petID, Exits: Exits(petID)}, nil
}
