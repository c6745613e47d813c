package pipeline

import (
	"errors"

	"github.com/manash/stitchgen/internal/provider"
)

const (
	ActionGenerate = "generate the image"
	ActionEdit     = "edit the image"
)

var (
	ErrEmptyInstruction   = errors.New("edit instruction cannot be empty")
	ErrInstructionTooLong = errors.New("edit instruction is too long")
)

// FlowError is what a failed flow surfaces to the user. Err keeps the
// underlying provider error kind for errors.Is.
type FlowError struct {
	Action string
	Err    error
}

func (e *FlowError) Error() string {
	return "failed to " + e.Action
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Kind names the failure category for logs and API responses.
func (e *FlowError) Kind() string {
	switch {
	case errors.Is(e.Err, provider.ErrSourceUnreadable):
		return "source_unreadable"
	case errors.Is(e.Err, provider.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(e.Err, provider.ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// Detail returns the full cause chain, for verbose output.
func (e *FlowError) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return e.Error() + ": " + e.Err.Error()
}
