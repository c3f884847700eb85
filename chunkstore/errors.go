package chunkstore

import "errors"

var (
	// ErrArchiveUnreadable indicates the archive is missing or cannot be decoded.
	// It is fatal for the whole reconstruction pass.
	ErrArchiveUnreadable = errors.New("chunk archive unreadable")

	// ErrInvalidChunk indicates a single chunk record was rejected.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrBadDocumentID indicates the document id is missing or not an integer.
	ErrBadDocumentID = errors.New("document id is not an integer")

	// ErrBadPosition indicates the position is missing, not an integer or negative.
	ErrBadPosition = errors.New("position is not a non-negative integer")

	// ErrBadText indicates the text field is present but not a string.
	ErrBadText = errors.New("text is not a string")

	// ErrTextTooShort indicates the chunk text is absent or below the minimum length.
	ErrTextTooShort = errors.New("chunk text too short or missing")

	// ErrTextTooLong indicates the chunk text exceeds the maximum length.
	ErrTextTooLong = errors.New("chunk text too long")
)

// ErrInvalidBounds indicates the configured text length bounds are unusable.
var ErrInvalidBounds = errors.New("invalid text length bounds")
