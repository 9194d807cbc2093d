package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"petintake/internal/upload"

	logger "github.com/Bparsons0904/goLogger"
)

type Config struct {
	MaxAttempts int
	PollDelay   time.Duration
	Sleep       SleepFunc
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollDelay <= 0 {
		c.PollDelay = DefaultPollDelay
	}
	if c.Sleep == nil {
		c.Sleep = SleepContext
	}
	return c
}

// Orchestrator runs submit-then-poll against the remote pet API and resolves every run to a
// Result or a classified *Failure.
type Orchestrator struct {
	transport Transport
	config    Config
	log       logger.Logger
}

func New(transport Transport, config Config) *Orchestrator {
	return &Orchestrator{
		transport: transport,
		config:    config.withDefaults(),
		log:       logger.New("ingestion"),
	}
}

type createResponse struct {
	ID        FlexibleID    `json:"id"`
	PetID     FlexibleID    `json:"petId"`
	Pet       *Pet          `json:"pet"`
	Artifacts []ArtifactRef `json:"artifacts"`
}

func (c createResponse) petID() string {
	switch {
	case c.PetID != "":
		return c.PetID.String()
	case c.Pet != nil && c.Pet.ID != "":
		return c.Pet.ID.String()
	default:
		return c.ID.String()
	}
}

// FromDocuments creates a new pet from uploaded documents. Artifacts embedded in the create
// response are treated as final; otherwise the artifact list is polled.
func (o *Orchestrator) FromDocuments(
	ctx context.Context,
	tokens TokenSource,
	files []upload.File,
) (*Result, error) {
	log := o.log.Function("FromDocuments")

	token, failure := o.requireToken(tokens, files)
	if failure != nil {
		return nil, failure
	}

	raw, err := o.transport.CreateFromDocuments(ctx, token, files)
	if err != nil {
		failure := Classify(err)
		log.Er("document submission failed", err, "kind", failure.Kind, "fileCount", len(files))
		return nil, failure
	}

	created, err := NormalizeToOne[createResponse](raw)
	if err != nil || created.petID() == "" {
		if err == nil {
			err = errors.New("create response has no pet id")
		}
		log.Er("unreadable create response", err)
		return nil, NewFailure(SubmissionFailed, err)
	}

	petID := created.petID()
	if len(created.Artifacts) > 0 {
		return o.documentsResult(log, petID, created.Artifacts, 0), nil
	}

	log.Info("No artifacts in create response, polling", "petID", petID)
	return o.awaitArtifacts(ctx, log, token, petID)
}

// Recheck polls the artifacts of a pet whose earlier document submission ended without
// verification data. Nothing is uploaded or created.
func (o *Orchestrator) Recheck(ctx context.Context, tokens TokenSource, petID string) (*Result, error) {
	log := o.log.Function("Recheck")

	token, ok := tokenFrom(tokens)
	if !ok {
		return nil, NewFailure(Unauthenticated, nil)
	}
	if strings.TrimSpace(petID) == "" {
		return nil, &Failure{Kind: ValidationRejected, Message: "A pet id is required."}
	}

	log.Info("Rechecking artifacts", "petID", petID)
	return o.awaitArtifacts(ctx, log, token, petID)
}

func (o *Orchestrator) awaitArtifacts(
	ctx context.Context,
	log logger.Logger,
	token string,
	petID string,
) (*Result, error) {
	polled, err := o.pollPolicy(log, "ListArtifacts").Poll(
		ctx,
		func(ctx context.Context, attempt int) ([]ArtifactRef, error) {
			raw, err := o.transport.ListArtifacts(ctx, token, petID)
			if err != nil {
				return nil, err
			}
			return NormalizeToList[ArtifactRef](raw)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("polling artifacts for pet %s: %w", petID, err)
	}

	if !polled.Satisfied {
		log.Warn("Artifacts not available after polling", "petID", petID, "attempts", polled.Attempts)
		return nil, unavailable(petID, polled.Attempts)
	}
	return o.documentsResult(log, petID, polled.Value, polled.Attempts), nil
}

func (o *Orchestrator) documentsResult(log logger.Logger, petID string, artifacts []ArtifactRef, attempts int) *Result {
	documentIDs, vaccineIDs := PartitionArtifacts(artifacts)

	log.Info("Document ingestion resolved",
		"petID", petID,
		"documents", len(documentIDs),
		"vaccines", len(vaccineIDs),
		"attempts", attempts)

	return &Result{
		Flow:        FlowDocuments,
		PetID:       petID,
		DocumentIDs: documentIDs,
		VaccineIDs:  vaccineIDs,
		Artifacts:   artifacts,
		Target:      BuildTarget(petID, documentIDs, vaccineIDs),
		Attempts:    attempts,
		CompletedAt: time.Now(),
	}
}

// ForPet uploads files against an existing pet and waits until at least one document is listed.
func (o *Orchestrator) ForPet(
	ctx context.Context,
	tokens TokenSource,
	petID string,
	files []upload.File,
) (*Result, error) {
	log := o.log.Function("ForPet")

	if strings.TrimSpace(petID) == "" {
		return nil, &Failure{
			Kind:    ValidationRejected,
			Message: "A pet must be selected before uploading documents.",
		}
	}

	token, failure := o.requireToken(tokens, files)
	if failure != nil {
		return nil, failure
	}

	if err := o.transport.UploadMany(ctx, token, petID, files); err != nil {
		failure := Classify(err)
		log.Er("document upload failed", err, "kind", failure.Kind, "petID", petID)
		return nil, failure
	}

	polled, err := o.pollPolicy(log, "ListDocuments").Poll(
		ctx,
		func(ctx context.Context, attempt int) ([]ArtifactRef, error) {
			raw, err := o.transport.ListDocuments(ctx, token, petID)
			if err != nil {
				return nil, err
			}
			return NormalizeToList[ArtifactRef](raw)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("polling documents for pet %s: %w", petID, err)
	}
	if !polled.Satisfied {
		log.Warn("Documents not available after polling", "petID", petID, "attempts", polled.Attempts)
		return nil, unavailable(petID, polled.Attempts)
	}

	artifacts := make([]ArtifactRef, len(polled.Value))
	for i, artifact := range polled.Value {
		if artifact.Kind == ArtifactUnknown {
			artifact.Kind = ArtifactDocument
		}
		artifacts[i] = artifact
	}
	documentIDs, vaccineIDs := PartitionArtifacts(artifacts)

	log.Info("Pet document upload resolved",
		"petID", petID,
		"documents", len(documentIDs),
		"attempts", polled.Attempts)

	return &Result{
		Flow:        FlowKnownPet,
		PetID:       petID,
		DocumentIDs: documentIDs,
		VaccineIDs:  vaccineIDs,
		Artifacts:   artifacts,
		Target:      BuildTarget(petID, documentIDs, vaccineIDs),
		Attempts:    polled.Attempts,
		CompletedAt: time.Now(),
	}, nil
}

// FetchPet loads a pet and normalizes whichever response shape the API chose.
func (o *Orchestrator) FetchPet(ctx context.Context, tokens TokenSource, petID string) (*Pet, error) {
	log := o.log.Function("FetchPet")

	token, ok := tokenFrom(tokens)
	if !ok {
		return nil, NewFailure(Unauthenticated, nil)
	}

	raw, err := o.transport.GetPet(ctx, token, petID)
	if err != nil {
		failure := Classify(err)
		log.Er("failed to fetch pet", err, "petID", petID, "kind", failure.Kind)
		return nil, failure
	}

	pet, err := NormalizeToOne[Pet](raw)
	if err != nil {
		return nil, log.Err("failed to normalize pet response", err, "petID", petID)
	}
	return &pet, nil
}

func (o *Orchestrator) requireToken(tokens TokenSource, files []upload.File) (string, *Failure) {
	token, ok := tokenFrom(tokens)
	if !ok {
		return "", NewFailure(Unauthenticated, nil)
	}
	if len(files) == 0 {
		return "", &Failure{
			Kind:    ValidationRejected,
			Message: "Add at least one file before submitting.",
		}
	}
	return token, nil
}

func (o *Orchestrator) pollPolicy(log logger.Logger, query string) RetryPolicy[[]ArtifactRef] {
	return RetryPolicy[[]ArtifactRef]{
		MaxAttempts: o.config.MaxAttempts,
		Delay:       o.config.PollDelay,
		Sleep:       o.config.Sleep,
		Done: func(artifacts []ArtifactRef) bool {
			return len(artifacts) > 0
		},
		OnError: func(attempt int, err error) {
			log.Warn("Poll attempt failed", "query", query, "attempt", attempt, "error", err)
		},
	}
}

func tokenFrom(tokens TokenSource) (string, bool) {
	if tokens == nil {
		return "", false
	}
	return tokens.Token()
}

func unavailable(petID string, attempts int) *Failure {
	failure := NewFailure(VerificationDataUnavailable, nil)
	failure.PetID = petID
	failure.Attempts = attempts
	return failure
}
