package repositories

import (
	"petintake/internal/database"
)

type Repository struct {
	IngestionRun   IngestionRunRepository
	WizardSnapshot WizardSnapshotRepository
}

// New wires the repositories whose backends are configured. Unset fields mean the
// corresponding store is disabled.
func New(db database.DB) Repository {
	var repos Repository
	if db.HasSQL() {
		repos.IngestionRun = NewIngestionRunRepository(db)
	}
	if db.HasCache() {
		repos.WizardSnapshot = NewWizardSnapshotRepository(db.Cache.Session)
	}
	return repos
}
