package checkpoint

import "errors"

var (
	// ErrCorrupt indicates the checkpoint file exists but cannot be decoded.
	// A run must not start from a checkpoint it cannot read.
	ErrCorrupt = errors.New("checkpoint file is corrupt")

	// ErrStoreRequired indicates a Tracker was created without a Store.
	ErrStoreRequired = errors.New("checkpoint store is required")
)
