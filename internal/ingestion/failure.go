package ingestion

import (
	"errors"
	"net/http"
)

type Kind string

const (
	ValidationRejected          Kind = "validation_rejected"
	Unauthenticated             Kind = "unauthenticated"
	AuthExpired                 Kind = "auth_expired"
	ServerFault                 Kind = "server_fault"
	NetworkUnreachable          Kind = "network_unreachable"
	SubmissionFailed            Kind = "submission_failed"
	VerificationDataUnavailable Kind = "verification_data_unavailable"
)

var defaultMessages = map[Kind]string{
	ValidationRejected:          "Some files could not be accepted.",
	Unauthenticated:             "You must be logged in to upload documents.",
	AuthExpired:                 "Your session has expired. Please log in again.",
	ServerFault:                 "The server encountered an error. Please try again later.",
	NetworkUnreachable:          "Unable to reach the server. Check your connection and try again.",
	SubmissionFailed:            "Failed to upload documents. Please try again.",
	VerificationDataUnavailable: "Your documents were uploaded but are still being processed. Please try again in a few minutes or contact support if this continues.",
}

// ErrNoResponse marks transport failures where the server never answered.
var ErrNoResponse = errors.New("no response from server")

// ResponseError is implemented by transport errors that carry an HTTP response.
type ResponseError interface {
	error
	StatusCode() int
	ServerMessage() string
}

// Failure is a classified, user-presentable outcome of an ingestion attempt.
type Failure struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	PetID     string `json:"petId,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Err       error  `json:"-"`
}

func NewFailure(kind Kind, err error) *Failure {
	return &Failure{
		Kind:      kind,
		Message:   defaultMessages[kind],
		Retryable: retryable(kind),
		Err:       err,
	}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind) + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Soft reports whether the failure leaves a created entity behind that may still succeed.
func (f *Failure) Soft() bool {
	return f.Kind == VerificationDataUnavailable
}

func retryable(kind Kind) bool {
	switch kind {
	case ServerFault, NetworkUnreachable, SubmissionFailed, VerificationDataUnavailable:
		return true
	default:
		return false
	}
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// Classify maps a submit error to the failure taxonomy. Order matters: credential rejection,
// server fault, structured message, missing response, then the generic fallback.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	if failure, ok := AsFailure(err); ok {
		return failure
	}

	var respErr ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode() == http.StatusUnauthorized:
			return NewFailure(AuthExpired, err)
		case respErr.StatusCode() >= http.StatusInternalServerError:
			return NewFailure(ServerFault, err)
		case respErr.ServerMessage() != "":
			failure := NewFailure(SubmissionFailed, err)
			failure.Message = respErr.ServerMessage()
			return failure
		}
	}

	if errors.Is(err, ErrNoResponse) {
		return NewFailure(NetworkUnreachable, err)
	}

	return NewFailure(SubmissionFailed, err)
}
