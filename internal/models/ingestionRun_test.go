package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIngestionRun_BeforeCreate(t *testing.T) {
	tests := []struct {
		name    string
		run     IngestionRun
		wantErr bool
	}{
		{
			name:    "Missing session",
			run:     IngestionRun{Flow: "documents", Outcome: IngestionOutcomeSucceeded},
			wantErr: true,
		},
		{
			name:    "Missing outcome",
			run:     IngestionRun{SessionID: uuid.New(), Flow: "documents"},
			wantErr: true,
		},
		{
			name: "Valid run",
			run:  IngestionRun{SessionID: uuid.New(), Flow: "known_pet", Outcome: IngestionOutcomeFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run.BeforeCreate(nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, gorm.ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.False(t, tt.run.CompletedAt.IsZero())
			assert.Equal(t, tt.run.CompletedAt, tt.run.StartedAt)
		})
	}
}

func TestIngestionRun_Artifacts(t *testing.T) {
	run := &IngestionRun{}
	require.NoError(t, run.SetArtifacts([]string{"d1", "d2"}, nil))

	assert.JSONEq(t, `["d1","d2"]`, string(run.DocumentIDs))
	assert.Nil(t, run.VaccineIDs)
	assert.Equal(t, []string{"d1", "d2"}, run.Documents())
	assert.Nil(t, run.Vaccines())
}

func TestIngestionRun_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	run := &IngestionRun{StartedAt: start, CompletedAt: start.Add(30 * time.Second)}
	assert.Equal(t, 30*time.Second, run.Duration())
}
