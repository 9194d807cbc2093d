package initialize

import (
	"petintake/internal/database"

	logger "github.com/Bparsons0904/goLogger"
)

// InitializeTables creates the indexes the models cannot express through struct tags.
func InitializeTables(db database.DB, log logger.Logger) error {
	log = log.Function("InitializeTables")
	log.Info("Initializing ingestion run indexes")

	if err := db.CreateIndexes(); err != nil {
		return log.Err("failed to create indexes", err)
	}

	log.Info("Table initialization complete")
	return nil
}
