package stage

import (
	"errors"
	"fmt"
)

// ErrExtractorRequired indicates a Chain has no Extractor.
var ErrExtractorRequired = errors.New("entity extractor is required")

// ExtractionError reports a failed stage call.
type ExtractionError struct {
	Stage string
	Err   error
}

// NewExtractionError wraps err as a failure of the named stage.
func NewExtractionError(stage string, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Err: err}
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
