package chunkstore

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/poiesic/threatgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconstructor(t *testing.T, opts ...Option) *Reconstructor {
	t.Helper()
	r, err := NewReconstructor(append([]Option{WithMinTextLength(1)}, opts...)...)
	require.NoError(t, err)
	return r
}

func TestReconstruct_OrdersByPosition(t *testing.T) {
	r := newTestReconstructor(t)

	docs, stats, err := r.Reconstruct(FromSlice([]core.Chunk{
		{DocumentID: 1, Position: 2, Text: "c"},
		{DocumentID: 1, Position: 0, Text: "a"},
		{DocumentID: 1, Position: 1, Text: "b"},
	}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a b c", docs[0].Text)
	assert.Equal(t, 3, docs[0].Chunks)
	assert.Equal(t, 3, stats.ValidChunks)
}

func TestReconstruct_IndependentOfInterleaving(t *testing.T) {
	r := newTestReconstructor(t)

	first := []core.Chunk{
		{DocumentID: 1, Position: 0, Text: "alpha"},
		{DocumentID: 2, Position: 1, Text: "two"},
		{DocumentID: 1, Position: 1, Text: "beta"},
		{DocumentID: 2, Position: 0, Text: "one"},
	}
	second := []core.Chunk{first[3], first[2], first[1], first[0]}

	docsA, _, err := r.Reconstruct(FromSlice(first))
	require.NoError(t, err)
	docsB, _, err := r.Reconstruct(FromSlice(second))
	require.NoError(t, err)

	text := func(docs []*core.Document) map[int64]string {
		out := make(map[int64]string)
		for _, d := range docs {
			out[d.ID] = d.Text
		}
		return out
	}
	assert.Equal(t, text(docsA), text(docsB))
	assert.Equal(t, "alpha beta", text(docsA)[1])
	assert.Equal(t, "one two", text(docsA)[2])
}

func TestReconstruct_LengthValidation(t *testing.T) {
	r, err := NewReconstructor()
	require.NoError(t, err)

	docs, stats, err := r.Reconstruct(FromSlice([]core.Chunk{
		{DocumentID: 1, Position: 0, Text: "long enough text"},
		{DocumentID: 1, Position: 1, Text: "short"},
		{DocumentID: 1, Position: 2, Text: strings.Repeat("x", DefaultMaxTextLength+1)},
		{DocumentID: 2, Position: 0, Text: ""},
		{DocumentID: 2, Position: 1, Text: "tiny"},
	}))
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, int64(1), docs[0].ID)
	assert.Equal(t, "long enough text", docs[0].Text)
	assert.Equal(t, 5, stats.TotalChunks)
	assert.Equal(t, 1, stats.ValidChunks)
	assert.Equal(t, 4, stats.SkippedChunks)
	assert.Equal(t, 3, stats.TooShort)
	assert.Equal(t, 1, stats.TooLong)
	assert.Equal(t, 1, stats.DroppedDocuments)
}

func TestReconstruct_MetadataFromFirstChunk(t *testing.T) {
	r := newTestReconstructor(t)

	docs, stats, err := r.Reconstruct(FromSlice([]core.Chunk{
		{DocumentID: 1, Position: 1, Text: "later", Source: "feed-a", Category: "report"},
		{DocumentID: 1, Position: 0, Text: "earlier", Source: "feed-b", Category: "report"},
	}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "feed-a", docs[0].Source)
	assert.Equal(t, "earlier later", docs[0].Text)
	assert.Equal(t, 1, stats.Inconsistencies)
}

func TestReconstruct_DuplicatePositions(t *testing.T) {
	chunks := []core.Chunk{
		{DocumentID: 1, Position: 1, Text: "dup-one"},
		{DocumentID: 1, Position: 0, Text: "head"},
		{DocumentID: 1, Position: 1, Text: "dup-two"},
	}

	t.Run("keep all preserves read order", func(t *testing.T) {
		docs, stats, err := newTestReconstructor(t).Reconstruct(FromSlice(chunks))
		require.NoError(t, err)
		assert.Equal(t, "head dup-one dup-two", docs[0].Text)
		assert.Equal(t, 1, stats.DuplicatePositions)
		assert.Equal(t, 3, stats.ValidChunks)
	})

	t.Run("keep first", func(t *testing.T) {
		docs, stats, err := newTestReconstructor(t, WithDuplicatePolicy(KeepFirst)).Reconstruct(FromSlice(chunks))
		require.NoError(t, err)
		assert.Equal(t, "head dup-one", docs[0].Text)
		assert.Equal(t, 1, stats.DuplicatePositions)
		assert.Equal(t, 1, stats.SkippedChunks)
	})
}

func TestReconstruct_MalformedChunkIsCounted(t *testing.T) {
	r := newTestReconstructor(t)
	seq := func(yield func(core.Chunk, error) bool) {
		if !yield(core.Chunk{}, errors.Join(ErrInvalidChunk, ErrBadDocumentID)) {
			return
		}
		yield(core.Chunk{DocumentID: 4, Text: "fine"}, nil)
	}

	docs, stats, err := r.Reconstruct(seq)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.SkippedChunks)
}

func TestReconstruct_DocumentsWithOnlyRejectedChunksAreDropped(t *testing.T) {
	path := writeArchive(t, "chunks.json", `[
		{"documentId": 1, "position": -1, "text": "position is negative here"},
		{"documentId": 2, "position": 0, "text": "tiny"},
		{"documentId": 3, "position": 0, "text": "a perfectly valid chunk"},
		{"documentId": 4, "position": 0, "text": 42}
	]`, false)

	docs, stats, err := LoadDocuments(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(3), docs[0].ID)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 1, stats.TooShort)
	assert.Equal(t, 3, stats.DroppedDocuments)
}

func TestReconstruct_FatalErrorStops(t *testing.T) {
	r := newTestReconstructor(t)
	var seq iter.Seq2[core.Chunk, error] = func(yield func(core.Chunk, error) bool) {
		if !yield(core.Chunk{DocumentID: 1, Text: "fine"}, nil) {
			return
		}
		yield(core.Chunk{}, ErrArchiveUnreadable)
	}

	docs, _, err := r.Reconstruct(seq)
	assert.ErrorIs(t, err, ErrArchiveUnreadable)
	assert.Nil(t, docs)
}

func TestNewReconstructor_Bounds(t *testing.T) {
	_, err := NewReconstructor(WithMinTextLength(100), WithMaxTextLength(10))
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = NewReconstructor(WithMaxTextLength(0))
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("keep_first")
	require.NoError(t, err)
	assert.Equal(t, KeepFirst, p)

	p, err = ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeepAll, p)

	_, err = ParseDuplicatePolicy("newest")
	assert.Error(t, err)
}

func TestLoadDocuments(t *testing.T) {
	path := writeArchive(t, "chunks.json.gz", `[
		{"record_id": 9, "chunk_index": 1, "text": "dropped the payload", "source": "otx"},
		{"record_id": 9, "chunk_index": 0, "text": "The loader fetched", "source": "otx"},
		{"record_id": "x", "chunk_index": 0, "text": "malformed identifier"}
	]`, true)

	docs, stats, err := LoadDocuments(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The loader fetched dropped the payload", docs[0].Text)
	assert.Equal(t, "otx", docs[0].Source)
	assert.Equal(t, 1, stats.Malformed)

	_, _, err = LoadDocuments(context.Background(), path+".missing")
	assert.ErrorIs(t, err, ErrArchiveUnreadable)
}
