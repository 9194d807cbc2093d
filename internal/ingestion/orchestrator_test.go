package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"petintake/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) CreateFromDocuments(ctx context.Context, token string, files []upload.File) (json.RawMessage, error) {
	args := m.Called(ctx, token, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockTransport) ListArtifacts(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	args := m.Called(ctx, token, petID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockTransport) UploadMany(ctx context.Context, token string, petID string, files []upload.File) error {
	args := m.Called(ctx, token, petID, files)
	return args.Error(0)
}

func (m *MockTransport) ListDocuments(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	args := m.Called(ctx, token, petID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockTransport) GetPet(ctx context.Context, token string, petID string) (json.RawMessage, error) {
	args := m.Called(ctx, token, petID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string         { return fmt.Sprintf("status %d: %s", e.status, e.message) }
func (e *apiError) StatusCode() int       { return e.status }
func (e *apiError) ServerMessage() string { return e.message }

var (
	testFiles = []upload.File{
		{Name: "vaccines.pdf", Type: "application/pdf", Content: []byte("pdf")},
		{Name: "rex.png", Type: "image/png", Content: []byte("png")},
	}
	emptyList = json.RawMessage(`[]`)
)

func newTestOrchestrator(transport Transport) (*Orchestrator, *sleepRecorder) {
	recorder := &sleepRecorder{}
	return New(transport, Config{Sleep: recorder.sleep}), recorder
}

func TestFromDocuments_ArtifactsInCreateResponseSkipPolling(t *testing.T) {
	transport := &MockTransport{}
	transport.On("CreateFromDocuments", mock.Anything, "token", testFiles).
		Return(json.RawMessage(`{"id": 42, "artifacts": [{"id": 7, "type": "document"}, {"id": "v1", "type": "vaccine"}]}`), nil).
		Once()

	orchestrator, sleeps := newTestOrchestrator(transport)
	result, err := orchestrator.FromDocuments(context.Background(), StaticToken("token"), testFiles)

	require.NoError(t, err)
	assert.Equal(t, "42", result.PetID)
	assert.Equal(t, []string{"7"}, result.DocumentIDs)
	assert.Equal(t, []string{"v1"}, result.VaccineIDs)
	assert.Equal(t, "/pets/42/verify?documents=7&vaccines=v1", result.Target)
	assert.Equal(t, 0, result.Attempts)
	assert.Empty(t, sleeps.delays)
	transport.AssertNotCalled(t, "ListArtifacts", mock.Anything, mock.Anything, mock.Anything)
	transport.AssertExpectations(t)
}

func TestFromDocuments_PollsWhenArtifactsMissing(t *testing.T) {
	transport := &MockTransport{}
	transport.On("CreateFromDocuments", mock.Anything, "token", testFiles).
		Return(json.RawMessage(`{"data": {"id": "pet-1", "artifacts": []}}`), nil).
		Once()
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").Return(emptyList, nil).Times(2)
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").
		Return(json.RawMessage(`{"data": [{"id": "d1", "type": "document"}, {"id": "d2", "type": "document"}]}`), nil).
		Once()

	orchestrator, sleeps := newTestOrchestrator(transport)
	result, err := orchestrator.FromDocuments(context.Background(), StaticToken("token"), testFiles)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []string{"d1", "d2"}, result.DocumentIDs)
	assert.Empty(t, result.VaccineIDs)
	assert.Equal(t, "/pets/pet-1/verify?documents=d1,d2", result.Target)
	assert.Equal(t, []time.Duration{DefaultPollDelay, DefaultPollDelay}, sleeps.delays)
	transport.AssertExpectations(t)
}

func TestFromDocuments_PollErrorsAreSwallowed(t *testing.T) {
	transport := &MockTransport{}
	transport.On("CreateFromDocuments", mock.Anything, "token", testFiles).
		Return(json.RawMessage(`{"petId": "pet-1"}`), nil).Once()
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").
		Return(nil, errors.New("boom")).Once()
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").
		Return(json.RawMessage(`[{"id": "v9", "type": "vaccine"}]`), nil).Once()

	orchestrator, _ := newTestOrchestrator(transport)
	result, err := orchestrator.FromDocuments(context.Background(), StaticToken("token"), testFiles)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, []string{"v9"}, result.VaccineIDs)
	assert.Equal(t, "/pets/pet-1/verify?vaccines=v9", result.Target)
}

func TestFromDocuments_ExhaustedPollingIsSoftFailure(t *testing.T) {
	transport := &MockTransport{}
	transport.On("CreateFromDocuments", mock.Anything, "token", testFiles).
		Return(json.RawMessage(`{"id": "pet-1"}`), nil).Once()
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").Return(emptyList, nil).Times(DefaultMaxAttempts)

	orchestrator, sleeps := newTestOrchestrator(transport)
	result, err := orchestrator.FromDocuments(context.Background(), StaticToken("token"), testFiles)

	assert.Nil(t, result)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, VerificationDataUnavailable, failure.Kind)
	assert.True(t, failure.Soft())
	assert.Equal(t, "pet-1", failure.PetID)
	assert.Equal(t, DefaultMaxAttempts, failure.Attempts)
	assert.Contains(t, failure.Message, "contact support")
	assert.Len(t, sleeps.delays, DefaultMaxAttempts-1)
	transport.AssertNumberOfCalls(t, "ListArtifacts", DefaultMaxAttempts)
}

func TestFromDocuments_MissingTokenNeverCallsNetwork(t *testing.T) {
	transport := &MockTransport{}
	orchestrator, _ := newTestOrchestrator(transport)

	_, err := orchestrator.FromDocuments(context.Background(), StaticToken(""), testFiles)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, Unauthenticated, failure.Kind)
	transport.AssertNotCalled(t, "CreateFromDocuments", mock.Anything, mock.Anything, mock.Anything)

	_, err = orchestrator.FromDocuments(context.Background(), nil, testFiles)
	failure, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, Unauthenticated, failure.Kind)
}

func TestFromDocuments_SubmitFailuresAreClassified(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantKind Kind
		wantMsg  string
	}{
		{name: "expired credential", err: &apiError{status: 401, message: "jwt expired"}, wantKind: AuthExpired},
		{name: "server fault", err: &apiError{status: 503, message: "maintenance"}, wantKind: ServerFault},
		{name: "structured message", err: &apiError{status: 422, message: "File is corrupted"}, wantKind: SubmissionFailed, wantMsg: "File is corrupted"},
		{name: "no response", err: fmt.Errorf("%w: dial tcp: refused", ErrNoResponse), wantKind: NetworkUnreachable},
		{name: "anything else", err: errors.New("weird"), wantKind: SubmissionFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &MockTransport{}
			transport.On("CreateFromDocuments", mock.Anything, "token", testFiles).Return(nil, tc.err).Once()

			orchestrator, _ := newTestOrchestrator(transport)
			_, err := orchestrator.FromDocuments(context.Background(), StaticToken("token"), testFiles)

			failure, ok := AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantKind, failure.Kind)
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, failure.Message)
			}
			transport.AssertNotCalled(t, "ListArtifacts", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestForPet_SucceedsAfterKEmptyPolls(t *testing.T) {
	for _, k := range []int{0, 1, 5, DefaultMaxAttempts - 1} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			transport := &MockTransport{}
			transport.On("UploadMany", mock.Anything, "token", "pet-9", testFiles).Return(nil).Once()
			if k > 0 {
				transport.On("ListDocuments", mock.Anything, "token", "pet-9").Return(emptyList, nil).Times(k)
			}
			transport.On("ListDocuments", mock.Anything, "token", "pet-9").
				Return(json.RawMessage(`[{"id": "doc-1"}]`), nil).Once()

			orchestrator, sleeps := newTestOrchestrator(transport)
			result, err := orchestrator.ForPet(context.Background(), StaticToken("token"), "pet-9", testFiles)

			require.NoError(t, err)
			assert.Equal(t, k+1, result.Attempts)
			assert.Equal(t, []string{"doc-1"}, result.DocumentIDs)
			assert.Equal(t, FlowKnownPet, result.Flow)
			transport.AssertNumberOfCalls(t, "ListDocuments", k+1)
			require.Len(t, sleeps.delays, k)
			for _, d := range sleeps.delays {
				assert.GreaterOrEqual(t, d, 2000*time.Millisecond)
			}
		})
	}
}

func TestForPet_AlwaysEmptyReportsUnavailable(t *testing.T) {
	transport := &MockTransport{}
	transport.On("UploadMany", mock.Anything, "token", "pet-9", testFiles).Return(nil).Once()
	transport.On("ListDocuments", mock.Anything, "token", "pet-9").
		Return(json.RawMessage(`{"data": []}`), nil).Times(DefaultMaxAttempts)

	orchestrator, _ := newTestOrchestrator(transport)
	result, err := orchestrator.ForPet(context.Background(), StaticToken("token"), "pet-9", testFiles)

	assert.Nil(t, result)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, VerificationDataUnavailable, failure.Kind)
	assert.Equal(t, DefaultMaxAttempts, failure.Attempts)
	transport.AssertNumberOfCalls(t, "ListDocuments", DefaultMaxAttempts)
}

func TestForPet_UploadFailureSkipsPolling(t *testing.T) {
	transport := &MockTransport{}
	transport.On("UploadMany", mock.Anything, "token", "pet-9", testFiles).
		Return(&apiError{status: 401}).Once()

	orchestrator, _ := newTestOrchestrator(transport)
	_, err := orchestrator.ForPet(context.Background(), StaticToken("token"), "pet-9", testFiles)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, AuthExpired, failure.Kind)
	assert.False(t, failure.Retryable)
	transport.AssertNotCalled(t, "ListDocuments", mock.Anything, mock.Anything, mock.Anything)
}

func TestForPet_RequiresPetAndFiles(t *testing.T) {
	transport := &MockTransport{}
	orchestrator, _ := newTestOrchestrator(transport)

	_, err := orchestrator.ForPet(context.Background(), StaticToken("token"), " ", testFiles)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ValidationRejected, failure.Kind)

	_, err = orchestrator.ForPet(context.Background(), StaticToken("token"), "pet-9", nil)
	failure, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ValidationRejected, failure.Kind)
	transport.AssertNotCalled(t, "UploadMany", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestForPet_CancelledContextStopsPolling(t *testing.T) {
	transport := &MockTransport{}
	transport.On("UploadMany", mock.Anything, "token", "pet-9", testFiles).Return(nil).Once()
	transport.On("ListDocuments", mock.Anything, "token", "pet-9").Return(emptyList, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	orchestrator := New(transport, Config{Sleep: func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return ctx.Err()
	}})

	_, err := orchestrator.ForPet(ctx, StaticToken("token"), "pet-9", testFiles)

	assert.ErrorIs(t, err, context.Canceled)
	transport.AssertNumberOfCalls(t, "ListDocuments", 3)
}

func TestFetchPet_NormalizesEveryShape(t *testing.T) {
	shapes := map[string]json.RawMessage{
		"bare":    json.RawMessage(`{"id": 5, "name": "Rex", "species": "dog"}`),
		"wrapped": json.RawMessage(`{"data": {"id": 5, "name": "Rex", "species": "dog"}}`),
		"list":    json.RawMessage(`[{"id": "5", "name": "Rex", "species": "dog"}]`),
	}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			transport := &MockTransport{}
			transport.On("GetPet", mock.Anything, "token", "5").Return(raw, nil).Once()

			orchestrator, _ := newTestOrchestrator(transport)
			pet, err := orchestrator.FetchPet(context.Background(), StaticToken("token"), "5")

			require.NoError(t, err)
			assert.Equal(t, FlexibleID("5"), pet.ID)
			assert.Equal(t, "Rex", pet.Name)
			assert.Equal(t, "dog", pet.Species)
		})
	}
}

func TestRecheck_PollsArtifactsWithoutCreating(t *testing.T) {
	transport := &MockTransport{}
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").Return(emptyList, nil).Once()
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").
		Return(json.RawMessage(`[{"id": "d1", "type": "document"}]`), nil).Once()

	orchestrator, _ := newTestOrchestrator(transport)
	result, err := orchestrator.Recheck(context.Background(), StaticToken("token"), "pet-1")

	require.NoError(t, err)
	assert.Equal(t, FlowDocuments, result.Flow)
	assert.Equal(t, "pet-1", result.PetID)
	assert.Equal(t, []string{"d1"}, result.DocumentIDs)
	assert.Equal(t, 2, result.Attempts)
	transport.AssertNotCalled(t, "CreateFromDocuments", mock.Anything, mock.Anything, mock.Anything)
	transport.AssertNotCalled(t, "UploadMany", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecheck_StillEmptyIsSoftFailure(t *testing.T) {
	transport := &MockTransport{}
	transport.On("ListArtifacts", mock.Anything, "token", "pet-1").Return(emptyList, nil).Times(DefaultMaxAttempts)

	orchestrator, _ := newTestOrchestrator(transport)
	_, err := orchestrator.Recheck(context.Background(), StaticToken("token"), "pet-1")

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, VerificationDataUnavailable, failure.Kind)
	assert.Equal(t, "pet-1", failure.PetID)
}

func TestRecheck_RequiresTokenAndPet(t *testing.T) {
	transport := &MockTransport{}
	orchestrator, _ := newTestOrchestrator(transport)

	_, err := orchestrator.Recheck(context.Background(), nil, "pet-1")
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, Unauthenticated, failure.Kind)

	_, err = orchestrator.Recheck(context.Background(), StaticToken("token"), " ")
	failure, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, ValidationRejected, failure.Kind)

	transport.AssertNotCalled(t, "ListArtifacts", mock.Anything, mock.Anything, mock.Anything)
}
