package repositories

import (
	"context"

	"petintake/internal/constants"
	"petintake/internal/database"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
)

// WizardSnapshotRepository keeps wizard progress in valkey so a reconnecting client resumes
// on the same step. Snapshots never carry the password.
type WizardSnapshotRepository interface {
	Save(ctx context.Context, sessionID string, snapshot wizard.Snapshot) error
	Load(ctx context.Context, sessionID string) (*wizard.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type wizardSnapshotRepository struct {
	cache database.CacheClient
	log   logger.Logger
}

func NewWizardSnapshotRepository(cache database.CacheClient) WizardSnapshotRepository {
	return &wizardSnapshotRepository{
		cache: cache,
		log:   logger.New("wizardSnapshotRepository"),
	}
}

func (r *wizardSnapshotRepository) Save(ctx context.Context, sessionID string, snapshot wizard.Snapshot) error {
	log := r.log.Function("Save")

	snapshot.Form = snapshot.Form.Redacted()
	err := database.NewCacheBuilder(r.cache, sessionID).
		WithContext(ctx).
		WithHash(constants.WizardSnapshotCachePrefix).
		WithStruct(snapshot).
		WithTTL(constants.WizardSnapshotCacheExpiry).
		Set()
	if err != nil {
		return log.Err("failed to cache wizard snapshot", err, "sessionID", sessionID)
	}
	return nil
}

func (r *wizardSnapshotRepository) Load(ctx context.Context, sessionID string) (*wizard.Snapshot, error) {
	log := r.log.Function("Load")

	var snapshot wizard.Snapshot
	found, err := database.NewCacheBuilder(r.cache, sessionID).
		WithContext(ctx).
		WithHash(constants.WizardSnapshotCachePrefix).
		Get(&snapshot)
	if err != nil {
		return nil, log.Err("failed to read wizard snapshot", err, "sessionID", sessionID)
	}
	if !found {
		return nil, nil
	}

	// a resumed wizard gets a fresh expiry window
	if _, err := database.NewCacheBuilder(r.cache, sessionID).
		WithContext(ctx).
		WithHash(constants.WizardSnapshotCachePrefix).
		WithTTL(constants.WizardSnapshotCacheExpiry).
		Touch(); err != nil {
		log.Warn("Failed to refresh wizard snapshot expiry", "sessionID", sessionID, "error", err)
	}
	return &snapshot, nil
}

func (r *wizardSnapshotRepository) Delete(ctx context.Context, sessionID string) error {
	log := r.log.Function("Delete")

	err := database.NewCacheBuilder(r.cache, sessionID).
		WithContext(ctx).
		WithHash(constants.WizardSnapshotCachePrefix).
		Delete()
	if err != nil {
		return log.Err("failed to delete wizard snapshot", err, "sessionID", sessionID)
	}
	return nil
}
