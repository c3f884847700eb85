package chunker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/threatgraph/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Record is one raw threat report.
type Record struct {
	Description string `json:"description"`
	Source      string `json:"source"`
	Type        string `json:"type"`
	Indicator   string `json:"indicator"`
	Date        string `json:"date"`
}

// Stats counts what Split did.
type Stats struct {
	Records        int
	EmptyRecords   int // Descriptions with no text after cleaning
	Chunks         int
	ShortFragments int // Chunks dropped for being under the minimum length
}

// Chunker splits record descriptions into chunks.
type Chunker struct {
	chunkSize int
	overlap   int
	minLength int
	splitter  textsplitter.TextSplitter
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters. Default is 1000.
func WithChunkSize(n int) Option {
	return func(c *Chunker) error {
		if n <= 0 {
			return ErrInvalidChunkSize
		}
		c.chunkSize = n
		return nil
	}
}

// WithChunkOverlap sets the characters shared by adjacent chunks. Default is 200.
func WithChunkOverlap(n int) Option {
	return func(c *Chunker) error {
		c.overlap = n
		return nil
	}
}

// WithMinLength sets the shortest chunk kept. Default is 50.
func WithMinLength(n int) Option {
	return func(c *Chunker) error {
		c.minLength = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize: 1000,
		overlap:   200,
		minLength: 50,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap < 0 || c.overlap >= c.chunkSize {
		return nil, ErrInvalidOverlap
	}

	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "! ", "? ", ", ", " ", ""}),
	)
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Split chunks every record. A record's index becomes its document id and
// a chunk's index within the record becomes its position; positions of
// dropped fragments are left as gaps.
func (c *Chunker) Split(records []Record) ([]core.Chunk, Stats, error) {
	var chunks []core.Chunk
	stats := Stats{Records: len(records)}

	for id, rec := range records {
		text := CleanHTML(rec.Description)
		if text == "" {
			stats.EmptyRecords++
			c.logger.Debug("skipping record with empty description", "document_id", id)
			continue
		}

		pieces, err := c.splitter.SplitText(text)
		if err != nil {
			return nil, stats, fmt.Errorf("splitting record %d: %w", id, err)
		}

		for pos, piece := range pieces {
			piece = strings.TrimSpace(piece)
			if utf8.RuneCountInString(piece) < c.minLength {
				stats.ShortFragments++
				continue
			}
			chunks = append(chunks, core.Chunk{
				DocumentID: int64(id),
				Position:   pos,
				Text:       MarkCVEs(piece),
				Source:     rec.Source,
				Category:   rec.Type,
				Indicator:  rec.Indicator,
				Timestamp:  rec.Date,
			})
			stats.Chunks++
		}
	}

	c.logger.Info("split records",
		"records", stats.Records,
		"empty", stats.EmptyRecords,
		"chunks", stats.Chunks,
		"short_fragments", stats.ShortFragments)
	return chunks, stats, nil
}

// ReadRecords loads a JSON array of records.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadRecords, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadRecords, path, err)
	}
	return records, nil
}
