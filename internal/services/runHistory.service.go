package services

import (
	"context"
	"errors"

	"petintake/internal/models"
	"petintake/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
)

var ErrHistoryUnavailable = errors.New("ingestion history is not configured")

type RunHistory struct {
	Runs   []*models.IngestionRun            `json:"runs"`
	Totals map[models.IngestionOutcome]int64 `json:"totals"`
	Total  int64                             `json:"total"`
}

// RunHistoryService reads a session's ingestion runs. The page and the totals come from the
// same read-only transaction so they always agree.
type RunHistoryService struct {
	runs        repositories.IngestionRunRepository
	transaction *TransactionService
	log         logger.Logger
}

func NewRunHistoryService(
	runs repositories.IngestionRunRepository,
	transaction *TransactionService,
) *RunHistoryService {
	return &RunHistoryService{
		runs:        runs,
		transaction: transaction,
		log:         logger.New("RunHistoryService"),
	}
}

func (s *RunHistoryService) ForSession(ctx context.Context, sessionID string, limit int) (*RunHistory, error) {
	if s.runs == nil {
		return nil, ErrHistoryUnavailable
	}

	history := &RunHistory{}
	err := s.transaction.ReadOnly(ctx, func(ctx context.Context) error {
		runs, err := s.runs.ListBySession(ctx, sessionID, limit)
		if err != nil {
			return err
		}
		totals, err := s.runs.CountBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		history.Runs = runs
		history.Totals = totals
		for _, count := range totals {
			history.Total += count
		}
		return nil
	})
	if err != nil {
		return nil, s.log.TraceFromContext(ctx).Function("ForSession").
			Err("failed to load run history", err, "sessionID", sessionID)
	}

	return history, nil
}
