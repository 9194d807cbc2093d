package ingestion

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"petintake/internal/upload"
)

type ArtifactKind string

const (
	ArtifactDocument ArtifactKind = "document"
	ArtifactVaccine  ArtifactKind = "vaccine"
	ArtifactUnknown  ArtifactKind = "unknown"
)

func ParseArtifactKind(value string) ArtifactKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "document", "documents", "medical_record":
		return ArtifactDocument
	case "vaccine", "vaccines", "vaccination":
		return ArtifactVaccine
	default:
		return ArtifactUnknown
	}
}

// ArtifactRef is a document or vaccine record derived server-side from uploaded files.
type ArtifactRef struct {
	ID   string       `json:"id"`
	Kind ArtifactKind `json:"kind"`
}

func (a *ArtifactRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   FlexibleID `json:"id"`
		Type string     `json:"type"`
		Kind string     `json:"kind"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	discriminant := raw.Type
	if discriminant == "" {
		discriminant = raw.Kind
	}

	a.ID = raw.ID.String()
	a.Kind = ParseArtifactKind(discriminant)
	return nil
}

// Pet is the normalized entity returned by the fetch collaborator.
type Pet struct {
	ID          FlexibleID `json:"id"`
	Name        string     `json:"name"`
	Species     string     `json:"species"`
	Breed       string     `json:"breed"`
	Sex         string     `json:"sex"`
	Color       string     `json:"color"`
	DateOfBirth string     `json:"dateOfBirth,omitempty"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
}

type Flow string

const (
	FlowDocuments Flow = "documents"
	FlowKnownPet  Flow = "known_pet"
)

// Result is produced once per successful run and never mutated afterwards.
type Result struct {
	Flow        Flow          `json:"flow"`
	PetID       string        `json:"petId"`
	DocumentIDs []string      `json:"documentIds"`
	VaccineIDs  []string      `json:"vaccineIds"`
	Artifacts   []ArtifactRef `json:"artifacts"`
	Target      string        `json:"target"`
	Attempts    int           `json:"attempts"`
	CompletedAt time.Time     `json:"completedAt"`
}

// TokenSource supplies the caller's credential. ok is false when no credential exists.
type TokenSource interface {
	Token() (token string, ok bool)
}

type StaticToken string

func (t StaticToken) Token() (string, bool) {
	return string(t), strings.TrimSpace(string(t)) != ""
}

type DocumentCreator interface {
	CreateFromDocuments(ctx context.Context, token string, files []upload.File) (json.RawMessage, error)
}

type ArtifactLister interface {
	ListArtifacts(ctx context.Context, token string, petID string) (json.RawMessage, error)
}

type DocumentUploader interface {
	UploadMany(ctx context.Context, token string, petID string, files []upload.File) error
}

type DocumentLister interface {
	ListDocuments(ctx context.Context, token string, petID string) (json.RawMessage, error)
}

type PetFetcher interface {
	GetPet(ctx context.Context, token string, petID string) (json.RawMessage, error)
}

// Transport is everything the orchestrator needs from the remote pet API.
type Transport interface {
	DocumentCreator
	ArtifactLister
	DocumentUploader
	DocumentLister
	PetFetcher
}
