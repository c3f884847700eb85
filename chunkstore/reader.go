package chunkstore

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/poiesic/threatgraph/core"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Field aliases accepted for each chunk attribute, in lookup order.
var (
	documentIDFields = []string{"documentId", "record_id", "document_id"}
	positionFields   = []string{"position", "chunk_index"}
	categoryFields   = []string{"category", "type"}
	timestampFields  = []string{"timestamp", "date"}
)

// Reader streams chunk records from a JSON array archive.
// A Reader yields its chunks once; it is not safe for concurrent use.
type Reader struct {
	path string
	file *os.File
	gz   *gzip.Reader
	src  io.Reader
}

// Open opens the archive at path. Gzip compression is detected from a ".gz"
// suffix or the gzip magic bytes.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveUnreadable, err)
	}

	buffered := bufio.NewReader(f)
	r := &Reader{path: path, file: f, src: buffered}

	magic, _ := buffered.Peek(len(gzipMagic))
	if strings.HasSuffix(path, ".gz") || bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrArchiveUnreadable, path, err)
		}
		r.gz = gz
		r.src = gz
	}

	return r, nil
}

// Path returns the archive path.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	var gzErr error
	if r.gz != nil {
		gzErr = r.gz.Close()
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// Chunks returns a lazy sequence of chunks.
//
// A record that cannot be coerced yields an error wrapping ErrInvalidChunk and
// the sequence continues; the Chunk carries whatever fields decoded before the
// failure, so its DocumentID is set unless the error is ErrBadDocumentID. A structural failure yields an
// error wrapping ErrArchiveUnreadable and the sequence ends. Context
// cancellation ends the sequence with the context error.
func (r *Reader) Chunks(ctx context.Context) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		dec := json.NewDecoder(r.src)

		tok, err := dec.Token()
		if err != nil {
			yield(core.Chunk{}, fmt.Errorf("%w: %s: %w", ErrArchiveUnreadable, r.path, err))
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			yield(core.Chunk{}, fmt.Errorf("%w: %s: expected JSON array", ErrArchiveUnreadable, r.path))
			return
		}

		for index := 0; dec.More(); index++ {
			if err := ctx.Err(); err != nil {
				yield(core.Chunk{}, err)
				return
			}

			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield(core.Chunk{}, fmt.Errorf("%w: %s: record %d: %w", ErrArchiveUnreadable, r.path, index, err))
				return
			}

			chunk, err := decodeChunk(raw)
			if err != nil {
				err = fmt.Errorf("%w: record %d: %w", ErrInvalidChunk, index, err)
			}
			if !yield(chunk, err) {
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			yield(core.Chunk{}, fmt.Errorf("%w: %s: %w", ErrArchiveUnreadable, r.path, err))
		}
	}
}

// decodeChunk coerces one raw record into a Chunk.
func decodeChunk(raw json.RawMessage) (core.Chunk, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return core.Chunk{}, fmt.Errorf("record is not an object: %w", err)
	}

	docID, ok := coerceInt(lookup(fields, documentIDFields))
	if !ok {
		return core.Chunk{}, ErrBadDocumentID
	}

	position, ok := coerceInt(lookup(fields, positionFields))
	if !ok || position < 0 {
		return core.Chunk{DocumentID: docID}, ErrBadPosition
	}

	var text string
	switch v := fields["text"].(type) {
	case nil:
	case string:
		text = v
	default:
		return core.Chunk{DocumentID: docID, Position: int(position)}, ErrBadText
	}

	return core.Chunk{
		DocumentID: docID,
		Position:   int(position),
		Text:       text,
		Source:     metadata(fields["source"]),
		Category:   metadata(lookup(fields, categoryFields)),
		Indicator:  metadata(fields["indicator"]),
		Timestamp:  metadata(lookup(fields, timestampFields)),
	}, nil
}

func lookup(fields map[string]any, names []string) any {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// coerceInt accepts JSON integers, integral floats and numeric strings.
func coerceInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		return numberToInt(string(n))
	case string:
		return numberToInt(strings.TrimSpace(n))
	default:
		return 0, false
	}
}

func numberToInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n := json.Number(s)
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// metadata renders a metadata value verbatim; metadata is never validated.
func metadata(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return m
	default:
		return fmt.Sprint(m)
	}
}
