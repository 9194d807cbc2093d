package repositories

import (
	"context"
	"time"

	"petintake/internal/constants"
	contextutil "petintake/internal/context"
	"petintake/internal/database"
	. "petintake/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IngestionRunRepository interface {
	Create(ctx context.Context, run *IngestionRun) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*IngestionRun, error)
	CountBySession(ctx context.Context, sessionID string) (map[IngestionOutcome]int64, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ingestionRunRepository struct {
	db  database.DB
	log logger.Logger
}

func NewIngestionRunRepository(db database.DB) IngestionRunRepository {
	return &ingestionRunRepository{
		db:  db,
		log: logger.New("ingestionRunRepository"),
	}
}

func (r *ingestionRunRepository) getDB(ctx context.Context) *gorm.DB {
	return contextutil.DB(ctx, r.db.SQL)
}

func (r *ingestionRunRepository) Create(ctx context.Context, run *IngestionRun) error {
	log := r.log.Function("Create")

	if err := gorm.G[IngestionRun](r.getDB(ctx)).Create(ctx, run); err != nil {
		return log.Err("failed to create ingestion run", err,
			"sessionID", run.SessionID,
			"flow", run.Flow,
			"outcome", run.Outcome,
		)
	}

	log.Info("Ingestion run recorded", "id", run.ID, "outcome", run.Outcome, "attempts", run.Attempts)
	return nil
}

// ListBySession returns the session's runs, newest first.
func (r *ingestionRunRepository) ListBySession(
	ctx context.Context,
	sessionID string,
	limit int,
) ([]*IngestionRun, error) {
	log := r.log.Function("ListBySession")

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, log.Err("failed to parse session ID", err, "sessionID", sessionID)
	}

	switch {
	case limit <= 0:
		limit = constants.DefaultRunHistoryLimit
	case limit > constants.MaxRunHistoryLimit:
		limit = constants.MaxRunHistoryLimit
	}

	runs, err := gorm.G[*IngestionRun](r.getDB(ctx)).
		Where("session_id = ?", id).
		Order("started_at DESC").
		Limit(limit).
		Find(ctx)
	if err != nil {
		return nil, log.Err("failed to list ingestion runs", err, "sessionID", sessionID)
	}

	return runs, nil
}

func (r *ingestionRunRepository) CountBySession(
	ctx context.Context,
	sessionID string,
) (map[IngestionOutcome]int64, error) {
	log := r.log.Function("CountBySession")

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, log.Err("failed to parse session ID", err, "sessionID", sessionID)
	}

	var rows []struct {
		Outcome IngestionOutcome
		Count   int64
	}
	err = r.getDB(ctx).
		Model(&IngestionRun{}).
		Select("outcome, count(*) AS count").
		Where("session_id = ?", id).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, log.Err("failed to count ingestion runs", err, "sessionID", sessionID)
	}

	counts := make(map[IngestionOutcome]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

// PurgeBefore deletes runs that completed before cutoff.
func (r *ingestionRunRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	log := r.log.Function("PurgeBefore")

	result := r.getDB(ctx).Where("completed_at < ?", cutoff).Delete(&IngestionRun{})
	if result.Error != nil {
		return 0, log.Err("failed to purge ingestion runs", result.Error, "cutoff", cutoff)
	}

	if result.RowsAffected > 0 {
		log.Info("Purged ingestion runs", "count", result.RowsAffected, "cutoff", cutoff)
	}
	return result.RowsAffected, nil
}
