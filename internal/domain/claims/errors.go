package claims

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the requested claim header does not exist.
	ErrNotFound = errors.New("claim not found")
	// ErrConflict means a concurrent ingestion created the same provider or
	// patient first. The whole ingestion attempt can be retried.
	ErrConflict = errors.New("concurrent provider/patient creation")
	// ErrUnresolved means a detail line has no provider or patient id after
	// reconciliation. It indicates a bug, not bad input.
	ErrUnresolved = errors.New("unresolved claim reference")
)

// ValidationError describes one rejected field. Line is 1-based; 0 refers to
// the batch as a whole.
type ValidationError struct {
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("line %d: %s %s", e.Line, e.Field, e.Reason)
}

// ValidationErrors collects every problem found in a batch.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return "invalid claim batch: " + strings.Join(msgs, "; ")
}
