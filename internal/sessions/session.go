package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"petintake/internal/acceptance"
	"petintake/internal/events"
	"petintake/internal/ingestion"
	"petintake/internal/models"
	"petintake/internal/upload"
	"petintake/internal/utils"
	"petintake/internal/wizard"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle                Status = "idle"
	StatusSubmitting          Status = "submitting"
	StatusSucceeded           Status = "succeeded"
	StatusPendingVerification Status = "pending_verification"
	StatusFailed              Status = "failed"
)

// View is the read-only state handed to the UI.
type View struct {
	ID         string             `json:"id"`
	Status     Status             `json:"status"`
	Busy       bool               `json:"busy"`
	Entries    []upload.EntryView `json:"entries"`
	Rejection  *upload.Notice     `json:"rejection,omitempty"`
	Result     *ingestion.Result  `json:"result,omitempty"`
	Failure    *ingestion.Failure `json:"failure,omitempty"`
	Wizard     *wizard.Snapshot   `json:"wizard,omitempty"`
	PendingPet string             `json:"pendingPetId,omitempty"`
	HasToken   bool               `json:"authenticated"`
	CreatedAt  time.Time          `json:"createdAt"`
	LastActive time.Time          `json:"lastActive"`
}

type AddResult struct {
	Accepted []upload.EntryView      `json:"accepted"`
	Rejected []*acceptance.Rejection `json:"rejected,omitempty"`
	Notice   *upload.Notice          `json:"notice,omitempty"`
}

// Session exclusively owns one batch, its simulator and rejection board, an optional wizard,
// and the single in-flight submit.
type Session struct {
	ID string

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	batch      *upload.Batch
	simulator  *upload.Simulator
	rejections *upload.RejectionBoard
	wizard     *wizard.Machine
	token      string
	inFlight   bool
	status     Status
	result     *ingestion.Result
	failure    *ingestion.Failure
	createdAt  time.Time

	// set when a document submission created a pet but verification data never arrived
	pendingPetID string
	pendingIDs   map[string]bool

	lastActive time.Time
	closed     bool
	submits    sync.WaitGroup

	config    Config
	publisher Publisher
	snapshots SnapshotStore
	recorder  RunRecorder
	log       logger.Logger
	now       func() time.Time
}

func newSession(id string, token string, config Config, publisher Publisher, snapshots SnapshotStore, recorder RunRecorder) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	s := &Session{
		ID:         id,
		ctx:        ctx,
		cancel:     cancel,
		batch:      upload.NewBatch(),
		token:      token,
		status:     StatusIdle,
		createdAt:  now,
		lastActive: now,
		config:     config,
		publisher:  publisher,
		snapshots:  snapshots,
		recorder:   recorder,
		log:        logger.New("sessions").File("session").With("sessionID", id),
		now:        time.Now,
	}

	s.simulator = upload.NewSimulator(s.batch, config.TickInterval, func(entryID string, progress int) {
		s.publish(events.INTAKE_PROGRESS, map[string]any{"entryId": entryID, "progress": progress})
	})
	s.rejections = upload.NewRejectionBoard(config.DismissDelay, func() {
		s.publish(events.INTAKE_REJECTION, map[string]any{"notice": nil})
	})

	return s
}

// Token implements ingestion.TokenSource.
func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, strings.TrimSpace(s.token) != ""
}

// SetCredential replaces the session's bearer token. Empty values are ignored.
func (s *Session) SetCredential(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AddFiles validates files against policy, appends the accepted ones and starts their
// progress timers. Rejections are aggregated into one auto-dismissing notice.
func (s *Session) AddFiles(policy acceptance.Policy, files []upload.File) (*AddResult, error) {
	log := s.log.Function("AddFiles")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.touch()

	candidates := make([]acceptance.Candidate, len(files))
	for i, file := range files {
		candidates[i] = acceptance.Candidate{
			Name: utils.CleanFilename(file.Name),
			Size: int64(len(file.Content)),
			Type: file.Type,
		}
	}

	accepted, rejected := acceptance.Partition(policy, candidates)

	acceptedFiles := make([]upload.File, 0, len(accepted))
	next := 0
	for i, candidate := range candidates {
		if next < len(accepted) && accepted[next] == candidate {
			file := files[i]
			file.Name = candidate.Name
			file.Type = acceptance.ResolveType(candidate)
			acceptedFiles = append(acceptedFiles, file)
			next++
		}
	}

	ids := s.batch.Add(acceptedFiles...)
	s.simulator.Track(ids...)

	added := make(map[string]bool, len(ids))
	for _, id := range ids {
		added[id] = true
	}
	entries := s.batch.Entries()

	result := &AddResult{Rejected: rejected}
	for _, entry := range entries {
		if added[entry.ID] {
			result.Accepted = append(result.Accepted, entry)
		}
	}

	if len(rejected) > 0 {
		names := make([]string, len(rejected))
		for i, r := range rejected {
			names[i] = r.Name
		}
		notice := s.rejections.Show(acceptance.AggregateMessage(rejected), names)
		result.Notice = &notice
	}
	s.mu.Unlock()

	log.Info("Files added", "policy", policy.Name, "accepted", len(accepted), "rejected", len(rejected))

	s.publish(events.INTAKE_BATCH, map[string]any{"entries": entries})
	if result.Notice != nil {
		s.publish(events.INTAKE_REJECTION, map[string]any{"notice": result.Notice})
	}
	return result, nil
}

// RemoveFile drops the entry currently at index and stops its timer.
func (s *Session) RemoveFile(index int) (upload.EntryView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return upload.EntryView{}, ErrSessionClosed
	}
	s.touch()

	removed, err := s.batch.RemoveAt(index)
	if err != nil {
		s.mu.Unlock()
		return upload.EntryView{}, err
	}
	s.simulator.Cancel(removed.ID)
	entries := s.batch.Entries()
	s.mu.Unlock()

	s.publish(events.INTAKE_BATCH, map[string]any{"entries": entries})
	return removed, nil
}

// Submit starts flow A in the background. It is gated only by batch non-emptiness and the
// in-flight flag. After a submission that created a pet but ended pending verification, the
// retry rechecks that pet instead of creating another; files added since are uploaded to it.
func (s *Session) Submit(submitter Submitter) error {
	return s.start(func() submission {
		petID := s.pendingPetID
		if petID == "" {
			return submission{
				flow: ingestion.FlowDocuments,
				run: func(ctx context.Context, files []upload.File) (*ingestion.Result, error) {
					return submitter.FromDocuments(ctx, s, files)
				},
			}
		}

		var added []upload.File
		files := s.batch.Files()
		for i, id := range s.batch.IDs() {
			if !s.pendingIDs[id] {
				added = append(added, files[i])
			}
		}
		if len(added) > 0 {
			return submission{
				flow:  ingestion.FlowKnownPet,
				petID: petID,
				run: func(ctx context.Context, _ []upload.File) (*ingestion.Result, error) {
					return submitter.ForPet(ctx, s, petID, added)
				},
			}
		}
		return submission{
			flow:  ingestion.FlowDocuments,
			petID: petID,
			run: func(ctx context.Context, _ []upload.File) (*ingestion.Result, error) {
				return submitter.Recheck(ctx, s, petID)
			},
		}
	})
}

// SubmitForPet starts flow B for an existing pet in the background.
func (s *Session) SubmitForPet(petID string, submitter Submitter) error {
	return s.start(func() submission {
		return submission{
			flow:  ingestion.FlowKnownPet,
			petID: petID,
			run: func(ctx context.Context, files []upload.File) (*ingestion.Result, error) {
				return submitter.ForPet(ctx, s, petID, files)
			},
		}
	})
}

type runFunc func(ctx context.Context, files []upload.File) (*ingestion.Result, error)

type submission struct {
	flow  ingestion.Flow
	petID string
	run   runFunc
}

// start runs plan under the session lock once every gate has passed.
func (s *Session) start(plan func() submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrSessionClosed
	case s.inFlight:
		return ErrSubmitInFlight
	case s.batch.Len() == 0:
		return ErrEmptyBatch
	case strings.TrimSpace(s.token) == "":
		return ingestion.NewFailure(ingestion.Unauthenticated, nil)
	}
	s.touch()

	next := plan()
	s.inFlight = true
	s.status = StatusSubmitting
	s.failure = nil
	s.batch.ResetErrors()

	files := s.batch.Files()
	ids := s.batch.IDs()
	startedAt := s.now()

	s.submits.Add(1)
	go s.resolve(next.flow, next.petID, ids, files, startedAt, next.run)

	s.log.Function("start").Info("Submission started",
		"flow", next.flow,
		"fileCount", len(files),
		"pendingPetID", s.pendingPetID)
	return nil
}

func (s *Session) resolve(
	flow ingestion.Flow,
	petID string,
	ids []string,
	files []upload.File,
	startedAt time.Time,
	run runFunc,
) {
	defer s.submits.Done()
	log := s.log.Function("resolve")

	result, err := run(s.ctx, files)

	s.mu.Lock()
	s.inFlight = false
	if s.closed {
		s.mu.Unlock()
		log.Info("Session closed before submission resolved", "flow", flow)
		return
	}

	var failure *ingestion.Failure
	if err != nil {
		failure = ingestion.Classify(err)
		s.failure = failure
		if failure.Soft() {
			s.status = StatusPendingVerification
			if failure.PetID != "" {
				s.pendingPetID = failure.PetID
				s.pendingIDs = make(map[string]bool, len(ids))
				for _, id := range ids {
					s.pendingIDs[id] = true
				}
			}
		} else {
			s.status = StatusFailed
			s.batch.MarkErrored()
		}
	} else {
		s.batch.RemoveIDs(ids...)
		s.simulator.Cancel(ids...)
		s.result = result
		s.status = StatusSucceeded
		s.pendingPetID = ""
		s.pendingIDs = nil
	}
	entries := s.batch.Entries()
	s.mu.Unlock()

	s.record(flow, petID, len(files), startedAt, result, failure)

	s.publish(events.INTAKE_BATCH, map[string]any{"entries": entries})
	if failure != nil {
		log.Info("Submission failed", "flow", flow, "kind", failure.Kind)
		s.publish(events.INTAKE_FAILURE, map[string]any{"failure": failure})
		return
	}
	log.Info("Submission succeeded", "flow", flow, "petID", result.PetID)
	s.publish(events.INTAKE_RESULT, map[string]any{"result": result})
}

func (s *Session) record(
	flow ingestion.Flow,
	petID string,
	fileCount int,
	startedAt time.Time,
	result *ingestion.Result,
	failure *ingestion.Failure,
) {
	log := s.log.Function("record")

	sessionID, err := uuid.Parse(s.ID)
	if err != nil {
		log.Er("session id is not a uuid, skipping run record", err)
		return
	}

	run := &models.IngestionRun{
		SessionID:   sessionID,
		Flow:        string(flow),
		FileCount:   fileCount,
		StartedAt:   startedAt,
		CompletedAt: s.now(),
	}

	switch {
	case failure == nil:
		run.Outcome = models.IngestionOutcomeSucceeded
		run.Attempts = result.Attempts
		petID = result.PetID
		if err := run.SetArtifacts(result.DocumentIDs, result.VaccineIDs); err != nil {
			log.Er("failed to encode artifact ids", err)
		}
	case failure.Soft():
		run.Outcome = models.IngestionOutcomePendingVerification
		run.Attempts = failure.Attempts
		if failure.PetID != "" {
			petID = failure.PetID
		}
	default:
		run.Outcome = models.IngestionOutcomeFailed
	}

	if failure != nil {
		kind := string(failure.Kind)
		message := failure.Message
		run.FailureKind = &kind
		run.Message = &message
	}
	if petID != "" {
		run.PetID = &petID
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RecordTimeout)
	defer cancel()
	if err := s.recorder.Create(ctx, run); err != nil {
		log.Er("failed to record ingestion run", err, "flow", flow)
	}
}

// StartWizard attaches a machine for def, resuming a stored snapshot of the same flow.
func (s *Session) StartWizard(ctx context.Context, def wizard.Definition) (wizard.Snapshot, error) {
	log := s.log.Function("StartWizard")

	machine, err := wizard.NewMachine(def)
	if err != nil {
		return wizard.Snapshot{}, err
	}

	stored, err := s.snapshots.Load(ctx, s.ID)
	if err != nil {
		log.Warn("Failed to load wizard snapshot", "error", err)
	}
	if stored != nil && stored.Flow == def.Name {
		if err := machine.Restore(*stored); err != nil {
			log.Warn("Discarding incompatible wizard snapshot", "error", err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wizard.Snapshot{}, ErrSessionClosed
	}
	s.wizard = machine
	s.touch()
	s.mu.Unlock()

	return s.wizardChanged(ctx, machine), nil
}

// Wizard runs fn against the session's machine, then persists and publishes the new state.
// fn runs without the session lock held.
func (s *Session) Wizard(ctx context.Context, fn func(m *wizard.Machine) error) (wizard.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wizard.Snapshot{}, ErrSessionClosed
	}
	machine := s.wizard
	s.touch()
	s.mu.Unlock()

	if machine == nil {
		return wizard.Snapshot{}, ErrNoWizard
	}

	err := fn(machine)
	return s.wizardChanged(ctx, machine), err
}

func (s *Session) wizardChanged(ctx context.Context, machine *wizard.Machine) wizard.Snapshot {
	snapshot := machine.Snapshot()

	if err := s.snapshots.Save(ctx, s.ID, snapshot); err != nil {
		s.log.Function("wizardChanged").Warn("Failed to persist wizard snapshot", "error", err)
	}
	s.publish(events.WIZARD_STEP, map[string]any{"wizard": snapshot})
	return snapshot
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		ID:         s.ID,
		Status:     s.status,
		Busy:       s.inFlight,
		Entries:    s.batch.Entries(),
		Rejection:  s.rejections.Current(),
		Result:     s.result,
		Failure:    s.failure,
		PendingPet: s.pendingPetID,
		HasToken:   strings.TrimSpace(s.token) != "",
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
	if s.wizard != nil {
		snapshot := s.wizard.Snapshot()
		view.Wizard = &snapshot
	}
	return view
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close cancels any in-flight poll, stops every timer and waits for the submit goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.simulator.Close()
	s.rejections.Close()
	s.submits.Wait()

	s.publish(events.SESSION_CLOSED, nil)
	s.log.Function("Close").Info("Session closed")
}

func (s *Session) touch() {
	s.lastActive = s.now()
}

func (s *Session) publish(eventType events.MessageType, data map[string]any) {
	err := s.publisher.Publish(events.INTAKE_CHANNEL, events.Event{
		Type:      eventType,
		SessionID: s.ID,
		Data:      data,
	})
	if err != nil {
		s.log.Function("publish").Warn("Failed to publish session event", "type", eventType, "error", err)
	}
}

// IsConflict reports whether err means the request collided with session state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSubmitInFlight) || errors.Is(err, wizard.ErrBusy)
}
