package chunker

import "errors"

var (
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap that is negative or not below the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be between 0 and chunk size")

	// ErrReadRecords indicates the raw record file could not be read.
	ErrReadRecords = errors.New("cannot read records")
)
