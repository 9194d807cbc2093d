package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"petintake/internal/acceptance"
	"petintake/internal/events"
	"petintake/internal/ingestion"
	"petintake/internal/models"
	"petintake/internal/upload"
	"petintake/internal/wizard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(channel events.Channel, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType events.MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, event := range p.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

type recordingRecorder struct {
	mu   sync.Mutex
	runs []*models.IngestionRun
}

func (r *recordingRecorder) Create(ctx context.Context, run *models.IngestionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordingRecorder) all() []*models.IngestionRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.IngestionRun(nil), r.runs...)
}

type memorySnapshots struct {
	mu     sync.Mutex
	stored map[string]wizard.Snapshot
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{stored: make(map[string]wizard.Snapshot)}
}

func (m *memorySnapshots) Save(ctx context.Context, sessionID string, snapshot wizard.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[sessionID] = snapshot
	return nil
}

func (m *memorySnapshots) Load(ctx context.Context, sessionID string) (*wizard.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.stored[sessionID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (m *memorySnapshots) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, sessionID)
	return nil
}

// fakeSubmitter resolves submissions with whatever the test pushes into results.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	methods []string
	petIDs  []string
	files   [][]upload.File
	started chan struct{}
	results chan submitOutcome
}

type submitOutcome struct {
	result *ingestion.Result
	err    error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{started: make(chan struct{}, 8), results: make(chan submitOutcome, 8)}
}

func (f *fakeSubmitter) wait(ctx context.Context, method, petID string, files []upload.File) (*ingestion.Result, error) {
	f.mu.Lock()
	f.calls++
	f.methods = append(f.methods, method)
	f.petIDs = append(f.petIDs, petID)
	f.files = append(f.files, files)
	f.mu.Unlock()

	f.started <- struct{}{}
	select {
	case outcome := <-f.results:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSubmitter) FromDocuments(ctx context.Context, tokens ingestion.TokenSource, files []upload.File) (*ingestion.Result, error) {
	return f.wait(ctx, "FromDocuments", "", files)
}

func (f *fakeSubmitter) ForPet(ctx context.Context, tokens ingestion.TokenSource, petID string, files []upload.File) (*ingestion.Result, error) {
	return f.wait(ctx, "ForPet", petID, files)
}

func (f *fakeSubmitter) Recheck(ctx context.Context, tokens ingestion.TokenSource, petID string) (*ingestion.Result, error) {
	return f.wait(ctx, "Recheck", petID, nil)
}

func (f *fakeSubmitter) calledMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	manager   *Manager
	publisher *recordingPublisher
	recorder  *recordingRecorder
	snapshots *memorySnapshots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		publisher: &recordingPublisher{},
		recorder:  &recordingRecorder{},
		snapshots: newMemorySnapshots(),
	}
	f.manager = NewManager(
		Config{TickInterval: 5 * time.Millisecond, DismissDelay: 50 * time.Millisecond},
		f.publisher,
		f.snapshots,
		f.recorder,
	)
	t.Cleanup(f.manager.Shutdown)
	return f
}

func sizedFile(name, mimeType string, size int) upload.File {
	return upload.File{Name: name, Type: mimeType, Content: make([]byte, size)}
}

func smallFiles(names ...string) []upload.File {
	files := make([]upload.File, len(names))
	for i, name := range names {
		files[i] = upload.File{Name: name, Type: acceptance.MimePDF, Content: []byte("%PDF-" + name)}
	}
	return files
}

func TestSession_MixedBatchRejectionDismisses(t *testing.T) {
	f := newFixture(t)
	session := f.manager.Create("token")

	result, err := session.AddFiles(acceptance.DocumentPolicy, []upload.File{
		sizedFile("vaccines.pdf", acceptance.MimePDF, 3*acceptance.MB),
		sizedFile("rex.png", acceptance.MimePNG, 2*acceptance.MB),
		sizedFile("history.doc", acceptance.MimeDOC, 12*acceptance.MB),
	})
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	assert.Equal(t, "vaccines.pdf", result.Accepted[0].Name)
	assert.Equal(t, "rex.png", result.Accepted[1].Name)
	require.Len(t, result.Rejected, 1)
	require.NotNil(t, result.Notice)
	assert.Contains(t, result.Notice.Message, "history.doc")
	assert.Contains(t, result.Notice.Message, "12.0MB")

	view := session.View()
	assert.Len(t, view.Entries, 2)
	require.NotNil(t, view.Rejection)

	assert.Eventually(t, func() bool {
		return session.View().Rejection == nil
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, session.View().Entries, 2)
	assert.GreaterOrEqual(t, f.publisher.count(events.INTAKE_REJECTION), 2)
}

func TestSession_AddFilesCleansNamesAndResolvesType(t *testing.T) {
	f := newFixture(t)
	session := f.manager.Create("token")

	files := []upload.File{
		{Name: "../scans/card.pdf", Type: "application/octet-stream", Content: []byte("%PDF")},
	}
	result, err := session.AddFiles(acceptance.DocumentPolicy, files)
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "card.pdf", result.Accepted[0].Name)
	assert.Equal(t, acceptance.MimePDF, result.Accepted[0].Type)
	assert.Nil(t, result.Notice)

	assert.Equal(t, "../scans/card.pdf", files[0].Name)
	assert.Equal(t, "application/octet-stream", files[0].Type)
}

func TestSession_ProfilePolicyRejectsDocuments(t *testing.T) {
	f := newFixture(t)
	session := f.manager.Create("token")

	result, err := session.AddFiles(acceptance.ProfilePicturePolicy, []upload.File{
		sizedFile("face.jpg", acceptance.MimeJPEG, acceptance.MB),
		sizedFile("notes.pdf", acceptance.MimePDF, acceptance.MB),
		sizedFile("huge.png", acceptance.MimePNG, 6*acceptance.MB),
	})
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 1)
	assert.Len(t, result.Rejected, 2)
	assert.Contains(t, result.Notice.Message, "2 files were rejected")
}

func TestSession_RemoveFileStopsOnlyThatTimer(t *testing.T) {
	f := newFixture(t)
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf", "b.pdf", "c.pdf"))
	require.NoError(t, err)

	removed, err := session.RemoveFile(1)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", removed.Name)

	entries := session.View().Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "a.pdf", entries[0].Name)
	assert.Equal(t, "c.pdf", entries[1].Name)

	assert.Eventually(t, func() bool {
		for _, entry := range session.View().Entries {
			if entry.Progress < upload.MaxProgress {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	_, err = session.RemoveFile(5)
	assert.Error(t, err)
}

func TestSession_SubmitSuccessClearsSubmittedEntries(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf", "b.pdf"))
	require.NoError(t, err)

	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	assert.True(t, session.View().Busy)
	assert.Equal(t, StatusSubmitting, session.View().Status)

	assert.ErrorIs(t, session.Submit(submitter), ErrSubmitInFlight)
	assert.True(t, IsConflict(session.Submit(submitter)))

	_, err = session.AddFiles(acceptance.DocumentPolicy, smallFiles("late.pdf"))
	require.NoError(t, err)

	submitter.results <- submitOutcome{result: &ingestion.Result{
		Flow:        ingestion.FlowDocuments,
		PetID:       "pet-1",
		DocumentIDs: []string{"d1"},
		Attempts:    2,
	}}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)

	view := session.View()
	assert.False(t, view.Busy)
	require.NotNil(t, view.Result)
	assert.Equal(t, "pet-1", view.Result.PetID)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "late.pdf", view.Entries[0].Name)
	assert.Equal(t, 1, submitter.callCount())
	assert.Len(t, submitter.files[0], 2)

	assert.Eventually(t, func() bool { return len(f.recorder.all()) == 1 }, time.Second, 5*time.Millisecond)
	run := f.recorder.all()[0]
	assert.Equal(t, models.IngestionOutcomeSucceeded, run.Outcome)
	assert.Equal(t, "pet-1", *run.PetID)
	assert.Equal(t, []string{"d1"}, run.Documents())
	assert.Equal(t, 2, run.FileCount)
	assert.Equal(t, 1, f.publisher.count(events.INTAKE_RESULT))
}

func TestSession_SubmitFailureKeepsBatch(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf", "b.pdf"))
	require.NoError(t, err)

	require.NoError(t, session.SubmitForPet("pet-4", submitter))
	<-submitter.started
	submitter.results <- submitOutcome{err: ingestion.NewFailure(ingestion.ServerFault, errors.New("502"))}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	view := session.View()
	require.NotNil(t, view.Failure)
	assert.Equal(t, ingestion.ServerFault, view.Failure.Kind)
	require.Len(t, view.Entries, 2)
	for _, entry := range view.Entries {
		assert.True(t, entry.Errored)
	}

	require.NoError(t, session.SubmitForPet("pet-4", submitter))
	<-submitter.started
	view = session.View()
	assert.Nil(t, view.Failure)
	for _, entry := range view.Entries {
		assert.False(t, entry.Errored)
	}
	submitter.results <- submitOutcome{result: &ingestion.Result{Flow: ingestion.FlowKnownPet, PetID: "pet-4"}}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, session.View().Entries)
}

func TestSession_SoftFailureIsPendingVerification(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started

	failure := ingestion.NewFailure(ingestion.VerificationDataUnavailable, nil)
	failure.PetID = "pet-9"
	failure.Attempts = 15
	submitter.results <- submitOutcome{err: failure}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusPendingVerification
	}, time.Second, 5*time.Millisecond)

	view := session.View()
	assert.Contains(t, view.Failure.Message, "contact support")
	require.Len(t, view.Entries, 1)
	assert.False(t, view.Entries[0].Errored)

	assert.Eventually(t, func() bool { return len(f.recorder.all()) == 1 }, time.Second, 5*time.Millisecond)
	run := f.recorder.all()[0]
	assert.Equal(t, models.IngestionOutcomePendingVerification, run.Outcome)
	assert.Equal(t, "pet-9", *run.PetID)
	assert.Equal(t, 15, run.Attempts)
	assert.Equal(t, "pet-9", view.PendingPet)
}

func softFailure(petID string) error {
	failure := ingestion.NewFailure(ingestion.VerificationDataUnavailable, nil)
	failure.PetID = petID
	return failure
}

func TestSession_RetryAfterSoftFailureRechecksSamePet(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf", "b.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{err: softFailure("pet-1")}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusPendingVerification
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{err: softFailure("pet-1")}
	assert.Eventually(t, func() bool { return !session.Busy() }, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{result: &ingestion.Result{Flow: ingestion.FlowDocuments, PetID: "pet-1", DocumentIDs: []string{"d1"}}}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"FromDocuments", "Recheck", "Recheck"}, submitter.calledMethods())
	submitter.mu.Lock()
	assert.Equal(t, []string{"", "pet-1", "pet-1"}, submitter.petIDs)
	submitter.mu.Unlock()

	view := session.View()
	assert.Empty(t, view.Entries)
	assert.Empty(t, view.PendingPet)

	assert.Eventually(t, func() bool { return len(f.recorder.all()) == 3 }, time.Second, 5*time.Millisecond)
	for _, run := range f.recorder.all()[1:] {
		require.NotNil(t, run.PetID)
		assert.Equal(t, "pet-1", *run.PetID)
	}
}

func TestSession_FilesAddedAfterSoftFailureGoToKnownPet(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{err: softFailure("pet-1")}
	assert.Eventually(t, func() bool {
		return session.View().Status == StatusPendingVerification
	}, time.Second, 5*time.Millisecond)

	_, err = session.AddFiles(acceptance.DocumentPolicy, smallFiles("late.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{result: &ingestion.Result{Flow: ingestion.FlowKnownPet, PetID: "pet-1", DocumentIDs: []string{"d1"}}}

	assert.Eventually(t, func() bool {
		return session.View().Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"FromDocuments", "ForPet"}, submitter.calledMethods())
	submitter.mu.Lock()
	require.Len(t, submitter.files[1], 1)
	assert.Equal(t, "late.pdf", submitter.files[1][0].Name)
	submitter.mu.Unlock()
	assert.Empty(t, session.View().Entries)
}

func TestSession_HardFailureDoesNotRememberPet(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{err: ingestion.NewFailure(ingestion.ServerFault, nil)}
	assert.Eventually(t, func() bool {
		return session.View().Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Submit(submitter))
	<-submitter.started
	submitter.results <- submitOutcome{result: &ingestion.Result{PetID: "pet-2"}}
	assert.Eventually(t, func() bool { return !session.Busy() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"FromDocuments", "FromDocuments"}, submitter.calledMethods())
}

func TestSession_SubmitPreconditions(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()

	session := f.manager.Create("token")
	assert.ErrorIs(t, session.Submit(submitter), ErrEmptyBatch)

	anonymous := f.manager.Create("")
	_, err := anonymous.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf"))
	require.NoError(t, err)

	err = anonymous.Submit(submitter)
	failure, ok := ingestion.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ingestion.Unauthenticated, failure.Kind)
	assert.Equal(t, 0, submitter.callCount())

	anonymous.SetCredential("  ")
	_, ok = anonymous.Token()
	assert.False(t, ok)

	anonymous.SetCredential("fresh")
	token, ok := anonymous.Token()
	assert.True(t, ok)
	assert.Equal(t, "fresh", token)
}

func TestSession_CloseCancelsInFlightSubmit(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()
	session := f.manager.Create("token")

	_, err := session.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf", "b.pdf"))
	require.NoError(t, err)
	require.NoError(t, session.Submit(submitter))
	<-submitter.started

	require.NoError(t, f.manager.Close(context.Background(), session.ID))

	assert.Empty(t, f.recorder.all())
	assert.Equal(t, 0, f.publisher.count(events.INTAKE_RESULT))
	assert.Equal(t, 1, f.publisher.count(events.SESSION_CLOSED))

	_, err = session.AddFiles(acceptance.DocumentPolicy, smallFiles("c.pdf"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, session.Submit(submitter), ErrSessionClosed)

	_, err = f.manager.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_CloseIdle(t *testing.T) {
	f := newFixture(t)
	submitter := newFakeSubmitter()

	idle := f.manager.Create("token")
	busy := f.manager.Create("token")
	_, err := busy.AddFiles(acceptance.DocumentPolicy, smallFiles("a.pdf"))
	require.NoError(t, err)
	require.NoError(t, busy.Submit(submitter))
	<-submitter.started

	assert.Equal(t, 0, f.manager.CloseIdle(time.Hour))
	assert.Equal(t, 1, f.manager.CloseIdle(0))

	_, err = f.manager.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.manager.Get(busy.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.manager.Len())

	assert.ErrorIs(t, f.manager.Close(context.Background(), "missing"), ErrSessionNotFound)
}

type stubPets struct{}

func (stubPets) CreatePet(ctx context.Context, token string, draft wizard.PetDraft) (string, error) {
	return "pet-1", nil
}

func TestSession_WizardPersistsAndResumes(t *testing.T) {
	f := newFixture(t)
	session := f.manager.Create("token")

	_, err := session.Wizard(context.Background(), func(m *wizard.Machine) error { return nil })
	assert.ErrorIs(t, err, ErrNoWizard)

	_, err = session.StartWizard(context.Background(), wizard.PetOnlyFlow(stubPets{}))
	require.NoError(t, err)

	name := "Milo"
	snapshot, err := session.Wizard(context.Background(), func(m *wizard.Machine) error {
		m.Update(wizard.FormPatch{Name: &name})
		return m.GoToStep(2)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Step.Number)
	assert.GreaterOrEqual(t, f.publisher.count(events.WIZARD_STEP), 2)

	stored, err := f.snapshots.Load(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Milo", stored.Form.Name)

	resumed, err := session.StartWizard(context.Background(), wizard.PetOnlyFlow(stubPets{}))
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.Step.Number)
	assert.Equal(t, "Milo", resumed.Form.Name)

	other, err := session.StartWizard(context.Background(), wizard.FullFlow(stubPets{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Step.Number)
	assert.Empty(t, other.Form.Name)

	require.NotNil(t, session.View().Wizard)
}
