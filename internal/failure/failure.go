// Package failure defines the typed failures that cross the prediction
// pipeline boundary and the HTTP status each of them maps to.
package failure

import (
	"errors"
	"net/http"
)

// Kind discriminates the failure taxonomy.
type Kind int

const (
	// Unexpected covers everything that was not classified at its source.
	Unexpected Kind = iota
	// Validation means the caller-supplied input is absent, unreadable or too large.
	Validation
	// Decode is reserved for image decoding failures. The pipeline currently
	// reports them as Inference.
	Decode
	// Inference means the image could not be decoded or the model could not run.
	Inference
	// Storage means the document store rejected or could not serve a request.
	Storage
)

// Public messages shared by the pipeline and the error mapper.
const (
	MessageNoImage    = "No image file uploaded or file is invalid"
	MessageInference  = "An error occurred while making the prediction"
	MessageStore      = "Failed to store the prediction result"
	MessageHistories  = "Failed to load prediction histories"
	MessageUnexpected = "An unexpected error occurred"
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case Decode:
		return "DecodeError"
	case Inference:
		return "InferenceError"
	case Storage:
		return "StorageError"
	default:
		return "UnexpectedError"
	}
}

// StatusCode is the HTTP status a failure of this kind is reported with.
func (k Kind) StatusCode() int {
	if k == Validation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Failure is a classified error. Message is safe to show to callers; Err is
// the underlying cause and only ever goes to logs.
type Failure struct {
	Kind    Kind
	Message string
	// Status overrides Kind.StatusCode when non-zero.
	Status int
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Kind.String() + ": " + f.Message + ": " + f.Err.Error()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusCode returns the HTTP status for the failure.
func (f *Failure) StatusCode() int {
	if f.Status != 0 {
		return f.Status
	}
	return f.Kind.StatusCode()
}

// PublicMessage returns the message to put in a response body.
func (f *Failure) PublicMessage() string {
	if f.Message == "" {
		if f.Status != 0 {
			return http.StatusText(f.Status)
		}
		return MessageUnexpected
	}
	return f.Message
}

func newFailure(kind Kind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

// NewValidation reports unusable caller input.
func NewValidation(message string, err error) *Failure {
	return newFailure(Validation, message, err)
}

// NewInference reports a decode or model execution failure.
func NewInference(err error) *Failure {
	return newFailure(Inference, MessageInference, err)
}

// NewStorage reports a document store failure.
func NewStorage(message string, err error) *Failure {
	return newFailure(Storage, message, err)
}

// NewUnexpected reports an unclassified failure with a generic message.
func NewUnexpected(err error) *Failure {
	return newFailure(Unexpected, MessageUnexpected, err)
}

// NewHTTP reports a framework-level failure (unknown route, wrong method)
// with its own status code.
func NewHTTP(status int) *Failure {
	return &Failure{Kind: Unexpected, Message: http.StatusText(status), Status: status}
}

// From classifies err. Failures pass through untouched; anything else
// becomes Unexpected so no internal detail reaches a response.
func From(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return NewUnexpected(err)
}
