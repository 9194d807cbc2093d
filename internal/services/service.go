package services

import (
	"petintake/config"
	"petintake/internal/database"
	"petintake/internal/ingestion"
	"petintake/internal/repositories"
)

type Service struct {
	PetAPI      *PetAPIService
	Ingestion   *ingestion.Orchestrator
	Transaction *TransactionService
	Scheduler   *SchedulerService
	RunHistory  *RunHistoryService
}

func New(db database.DB, config config.Config, repos repositories.Repository) Service {
	petAPI := NewPetAPIService(config)
	transactionService := NewTransactionService(db)

	return Service{
		PetAPI: petAPI,
		Ingestion: ingestion.New(petAPI, ingestion.Config{
			MaxAttempts: config.PollMaxAttempts,
			PollDelay:   config.PollDelay(),
		}),
		Transaction: transactionService,
		Scheduler:   NewSchedulerService(),
		RunHistory:  NewRunHistoryService(repos.IngestionRun, transactionService),
	}
}
