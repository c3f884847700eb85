package pipeline

import "errors"

var (
	// ErrPersisterRequired indicates no persistence sink was provided outside dry-run mode.
	ErrPersisterRequired = errors.New("persister is required unless dry run is enabled")

	// ErrTrackerRequired indicates no checkpoint tracker was provided.
	ErrTrackerRequired = errors.New("checkpoint tracker is required")

	// ErrCheckpoint indicates a commit could not be flushed to the checkpoint store.
	ErrCheckpoint = errors.New("checkpoint write failed")

	// ErrEmptyText indicates a document had no text to extract from.
	ErrEmptyText = errors.New("document text is empty")

	// ErrPanic indicates a stage panicked while processing a document.
	ErrPanic = errors.New("stage panicked")
)
