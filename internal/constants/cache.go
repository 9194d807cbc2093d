package constants

import "time"

const (
	WizardSnapshotCachePrefix = "wizard_snapshot" // CacheBuilder adds the colon
	WizardSnapshotCacheExpiry = 24 * time.Hour
)

const (
	DefaultRunHistoryLimit = 20
	MaxRunHistoryLimit     = 100
)
