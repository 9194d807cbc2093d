package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditModel is embedded by append-only records. Rows are never updated and retention deletes
// them outright, so there is no UpdatedAt or soft delete column.
type AuditModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null"                       json:"createdAt"`
}
