package sessions

import (
	"context"
	"errors"
	"time"

	"petintake/internal/events"
	"petintake/internal/ingestion"
	"petintake/internal/models"
	"petintake/internal/upload"
	"petintake/internal/wizard"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrSubmitInFlight  = errors.New("a submission is already in progress")
	ErrEmptyBatch      = errors.New("add at least one file before submitting")
	ErrNoWizard        = errors.New("no wizard started for this session")
)

// Publisher delivers session events to whoever is listening.
type Publisher interface {
	Publish(channel events.Channel, event events.Event) error
}

// Submitter runs the two ingestion flows.
type Submitter interface {
	FromDocuments(ctx context.Context, tokens ingestion.TokenSource, files []upload.File) (*ingestion.Result, error)
	ForPet(ctx context.Context, tokens ingestion.TokenSource, petID string, files []upload.File) (*ingestion.Result, error)
	Recheck(ctx context.Context, tokens ingestion.TokenSource, petID string) (*ingestion.Result, error)
}

// SnapshotStore persists wizard progress so a reconnecting UI resumes where it left off.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, snapshot wizard.Snapshot) error
	// Load returns nil without error when nothing is stored.
	Load(ctx context.Context, sessionID string) (*wizard.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// RunRecorder writes the audit record for every resolved submit.
type RunRecorder interface {
	Create(ctx context.Context, run *models.IngestionRun) error
}

type Config struct {
	TickInterval  time.Duration
	DismissDelay  time.Duration
	RecordTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = upload.DefaultTickInterval
	}
	if c.DismissDelay <= 0 {
		c.DismissDelay = upload.DefaultDismissDelay
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = 5 * time.Second
	}
	return c
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Channel, events.Event) error { return nil }

type nopSnapshots struct{}

func (nopSnapshots) Save(context.Context, string, wizard.Snapshot) error { return nil }

func (nopSnapshots) Load(context.Context, string) (*wizard.Snapshot, error) { return nil, nil }

func (nopSnapshots) Delete(context.Context, string) error { return nil }

type nopRecorder struct{}

func (nopRecorder) Create(context.Context, *models.IngestionRun) error { return nil }
