package controllers

import (
	"petintake/internal/services"
	"petintake/internal/sessions"

	intakeController "petintake/internal/controllers/intake"
	wizardController "petintake/internal/controllers/wizard"
)

type Controllers struct {
	Intake intakeController.IntakeControllerInterface
	Wizard wizardController.WizardControllerInterface
}

func New(services services.Service, manager *sessions.Manager) Controllers {
	return Controllers{
		Intake: intakeController.New(manager, services),
		Wizard: wizardController.New(services),
	}
}
