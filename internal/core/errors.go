package core

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both "does not exist" and "exists in another
// organization". Callers cannot tell the two apart; distinguishing them
// would leak existence across tenants.
var ErrNotFound = errors.New("not found")

// ErrIsolationViolation is returned when a query would run without an
// organization scope. It indicates a programming error in the caller,
// never a user-input problem, and must not be downgraded to an empty
// result.
var ErrIsolationViolation = errors.New("query missing organization scope")

// ErrInvalidTransition is returned when a document state change is not
// allowed from its current processing status.
var ErrInvalidTransition = errors.New("invalid processing transition")

// ExtractionReason classifies why text extraction failed.
type ExtractionReason string

const (
	ExtractionUnsupported      ExtractionReason = "unsupported_media_type"
	ExtractionEmptyOrImageOnly ExtractionReason = "empty_or_image_only"
	ExtractionCorrupt          ExtractionReason = "corrupt_file"
)

// ExtractionError is terminal for its input: reprocessing the same bytes
// fails the same way, so the pipeline surfaces it instead of retrying.
type ExtractionError struct {
	Reason    ExtractionReason
	MediaType string
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed (%s) for %q", e.Reason, e.MediaType)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure of the external embedding service
// (timeout, rate limit, auth). Retryable in principle; the pipeline maps
// it to the failed state and relies on explicit reprocess.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
