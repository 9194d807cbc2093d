package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IngestionOutcome string

const (
	IngestionOutcomeSucceeded           IngestionOutcome = "succeeded"
	IngestionOutcomePendingVerification IngestionOutcome = "pending_verification"
	IngestionOutcomeFailed              IngestionOutcome = "failed"
)

// IngestionRun is the audit record written once per resolved submit.
type IngestionRun struct {
	AuditModel
	SessionID   uuid.UUID        `gorm:"type:uuid;not null;index:idx_ingestion_runs_session" json:"sessionId"`
	Flow        string           `gorm:"type:text;not null"                                 json:"flow"`
	PetID       *string          `gorm:"type:text;index:idx_ingestion_runs_pet"             json:"petId,omitempty"`
	DocumentIDs datatypes.JSON   `gorm:"type:jsonb"                                         json:"documentIds,omitempty"`
	VaccineIDs  datatypes.JSON   `gorm:"type:jsonb"                                         json:"vaccineIds,omitempty"`
	Outcome     IngestionOutcome `gorm:"type:text;not null;index:idx_ingestion_runs_outcome" json:"outcome"`
	FailureKind *string          `gorm:"type:text"                                          json:"failureKind,omitempty"`
	Message     *string          `gorm:"type:text"                                          json:"message,omitempty"`
	Attempts    int              `gorm:"type:int;default:0"                                 json:"attempts"`
	FileCount   int              `gorm:"type:int;default:0"                                 json:"fileCount"`
	StartedAt   time.Time        `gorm:"type:timestamp;not null"                            json:"startedAt"`
	CompletedAt time.Time        `gorm:"type:timestamp;not null"                            json:"completedAt"`
}

func (r *IngestionRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.SessionID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	if r.Flow == "" || r.Outcome == "" {
		return gorm.ErrInvalidValue
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.CompletedAt
	}
	return nil
}

func (r *IngestionRun) SetArtifacts(documentIDs, vaccineIDs []string) error {
	documents, err := marshalIDs(documentIDs)
	if err != nil {
		return err
	}
	vaccines, err := marshalIDs(vaccineIDs)
	if err != nil {
		return err
	}
	r.DocumentIDs = documents
	r.VaccineIDs = vaccines
	return nil
}

func (r *IngestionRun) Documents() []string {
	return unmarshalIDs(r.DocumentIDs)
}

func (r *IngestionRun) Vaccines() []string {
	return unmarshalIDs(r.VaccineIDs)
}

func (r *IngestionRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

func marshalIDs(ids []string) (datatypes.JSON, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func unmarshalIDs(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil
	}
	return ids
}
