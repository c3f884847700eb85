package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/threatgraph/core"
)

const (
	// DefaultMinTextLength is the minimum chunk text length in characters.
	DefaultMinTextLength = 10
	// DefaultMaxTextLength is the maximum chunk text length in characters.
	DefaultMaxTextLength = 2048
)

// DuplicatePolicy decides what happens to chunks sharing a (document, position) pair.
type DuplicatePolicy int

const (
	// KeepAll keeps every duplicate and concatenates them in read order.
	KeepAll DuplicatePolicy = iota
	// KeepFirst keeps only the first chunk read for each position.
	KeepFirst
)

// String returns the config name of the policy.
func (p DuplicatePolicy) String() string {
	switch p {
	case KeepFirst:
		return "keep_first"
	default:
		return "keep_all"
	}
}

// ParseDuplicatePolicy parses a config name into a DuplicatePolicy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep_all":
		return KeepAll, nil
	case "keep_first":
		return KeepFirst, nil
	default:
		return KeepAll, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// ReconstructStats summarizes one reconstruction pass.
type ReconstructStats struct {
	TotalChunks        int
	ValidChunks        int
	SkippedChunks      int // TooShort + TooLong + Malformed + dropped duplicates
	TooShort           int
	TooLong            int
	Malformed          int
	DuplicatePositions int
	Inconsistencies    int
	Documents          int
	DroppedDocuments   int
}

// LogValue implements slog.LogValuer.
func (s ReconstructStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total_chunks", s.TotalChunks),
		slog.Int("valid_chunks", s.ValidChunks),
		slog.Int("skipped_chunks", s.SkippedChunks),
		slog.Int("duplicate_positions", s.DuplicatePositions),
		slog.Int("inconsistencies", s.Inconsistencies),
		slog.Int("documents", s.Documents),
		slog.Int("dropped_documents", s.DroppedDocuments),
	)
}

// Reconstructor reassembles documents from chunks.
type Reconstructor struct {
	minTextLength int
	maxTextLength int
	duplicates    DuplicatePolicy
	logger        *slog.Logger
}

// Option configures a Reconstructor.
type Option func(*Reconstructor) error

// WithMinTextLength sets the minimum chunk text length in characters.
func WithMinTextLength(n int) Option {
	return func(r *Reconstructor) error {
		if n < 1 {
			return fmt.Errorf("%w: minimum %d", ErrInvalidBounds, n)
		}
		r.minTextLength = n
		return nil
	}
}

// WithMaxTextLength sets the maximum chunk text length in characters.
func WithMaxTextLength(n int) Option {
	return func(r *Reconstructor) error {
		if n < 1 {
			return fmt.Errorf("%w: maximum %d", ErrInvalidBounds, n)
		}
		r.maxTextLength = n
		return nil
	}
}

// WithDuplicatePolicy sets how duplicate positions are handled.
// Default is KeepAll.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Reconstructor) error {
		r.duplicates = p
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconstructor) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReconstructor creates a Reconstructor with default bounds 10..2048.
func NewReconstructor(opts ...Option) (*Reconstructor, error) {
	r := &Reconstructor{
		minTextLength: DefaultMinTextLength,
		maxTextLength: DefaultMaxTextLength,
		duplicates:    KeepAll,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.minTextLength > r.maxTextLength {
		return nil, fmt.Errorf("%w: minimum %d exceeds maximum %d", ErrInvalidBounds, r.minTextLength, r.maxTextLength)
	}
	r.logger = r.logger.With("component", "reconstructor")
	return r, nil
}

type part struct {
	position int
	text     string
}

type accumulator struct {
	doc       core.Document
	parts     []part
	positions map[int]struct{}
}

// Reconstruct consumes chunks and returns one Document per document id with
// at least one retained chunk, in first-seen order.
//
// Rejected chunks are logged and counted. The only error returned is a fatal
// one from the sequence: anything wrapping ErrArchiveUnreadable or a context
// error.
func (r *Reconstructor) Reconstruct(chunks iter.Seq2[core.Chunk, error]) ([]*core.Document, ReconstructStats, error) {
	var stats ReconstructStats
	buffers := make(map[int64]*accumulator)
	var order []int64
	seen := make(map[int64]struct{})

	for chunk, err := range chunks {
		if err != nil {
			if !errors.Is(err, ErrInvalidChunk) {
				return nil, stats, err
			}
			stats.TotalChunks++
			stats.Malformed++
			stats.SkippedChunks++
			if errors.Is(err, ErrBadPosition) || errors.Is(err, ErrBadText) {
				// The document id decoded, so the document still counts as seen.
				seen[chunk.DocumentID] = struct{}{}
			}
			r.logger.Error("skipping malformed chunk", "err", err)
			continue
		}
		stats.TotalChunks++
		seen[chunk.DocumentID] = struct{}{}

		if err := r.validateText(chunk.Text); err != nil {
			if errors.Is(err, ErrTextTooLong) {
				stats.TooLong++
			} else {
				stats.TooShort++
			}
			stats.SkippedChunks++
			r.logger.Warn("skipping chunk",
				"document_id", chunk.DocumentID,
				"position", chunk.Position,
				"err", err)
			continue
		}

		acc, ok := buffers[chunk.DocumentID]
		if !ok {
			acc = &accumulator{
				doc: core.Document{
					ID:        chunk.DocumentID,
					Source:    chunk.Source,
					Category:  chunk.Category,
					Indicator: chunk.Indicator,
					Timestamp: chunk.Timestamp,
				},
				positions: make(map[int]struct{}),
			}
			buffers[chunk.DocumentID] = acc
			order = append(order, chunk.DocumentID)
		} else if !sameMetadata(&acc.doc, &chunk) {
			stats.Inconsistencies++
			r.logger.Warn("inconsistent metadata",
				"document_id", chunk.DocumentID,
				"position", chunk.Position)
		}

		if _, dup := acc.positions[chunk.Position]; dup {
			stats.DuplicatePositions++
			if r.duplicates == KeepFirst {
				stats.SkippedChunks++
				r.logger.Debug("dropping duplicate position",
					"document_id", chunk.DocumentID,
					"position", chunk.Position)
				continue
			}
			r.logger.Debug("duplicate position kept in read order",
				"document_id", chunk.DocumentID,
				"position", chunk.Position)
		}
		acc.positions[chunk.Position] = struct{}{}
		acc.parts = append(acc.parts, part{position: chunk.Position, text: chunk.Text})
		stats.ValidChunks++
	}

	r.logger.Info("processed chunks",
		"total", stats.TotalChunks,
		"valid", stats.ValidChunks,
		"skipped", stats.SkippedChunks)

	docs := make([]*core.Document, 0, len(order))
	for _, id := range order {
		docs = append(docs, assemble(buffers[id]))
	}

	stats.Documents = len(docs)
	stats.DroppedDocuments = len(seen) - len(docs)
	if stats.DroppedDocuments > 0 {
		r.logger.Warn("dropped documents with no valid chunks", "count", stats.DroppedDocuments)
	}
	r.logger.Info("reconstructed documents", "count", stats.Documents)

	return docs, stats, nil
}

func (r *Reconstructor) validateText(text string) error {
	n := utf8.RuneCountInString(text)
	if n < r.minTextLength {
		return fmt.Errorf("%w: %d < %d", ErrTextTooShort, n, r.minTextLength)
	}
	if n > r.maxTextLength {
		return fmt.Errorf("%w: %d > %d", ErrTextTooLong, n, r.maxTextLength)
	}
	return nil
}

func assemble(acc *accumulator) *core.Document {
	slices.SortStableFunc(acc.parts, func(a, b part) int {
		return a.position - b.position
	})

	texts := make([]string, len(acc.parts))
	for i, p := range acc.parts {
		texts[i] = p.text
	}

	doc := acc.doc
	doc.Text = strings.TrimSpace(strings.Join(texts, " "))
	doc.Chunks = len(acc.parts)
	return &doc
}

func sameMetadata(doc *core.Document, chunk *core.Chunk) bool {
	return doc.Source == chunk.Source &&
		doc.Category == chunk.Category &&
		doc.Indicator == chunk.Indicator &&
		doc.Timestamp == chunk.Timestamp
}

// LoadDocuments opens the archive at path and reconstructs its documents.
func LoadDocuments(ctx context.Context, path string, opts ...Option) ([]*core.Document, ReconstructStats, error) {
	r, err := NewReconstructor(opts...)
	if err != nil {
		return nil, ReconstructStats{}, err
	}

	archive, err := Open(path)
	if err != nil {
		return nil, ReconstructStats{}, err
	}
	defer archive.Close()

	r.logger.Info("loading chunks", "path", path)
	return r.Reconstruct(archive.Chunks(ctx))
}

// FromSlice adapts an in-memory slice of chunks to the sequence Reconstruct consumes.
func FromSlice(chunks []core.Chunk) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
