package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/store"
)

func writableChunk(uid string) *store.Chunk {
	return &store.Chunk{
		UID:               uid,
		Source:            "journal/2024-06-01.txt",
		Timestamp:         time.Now().Unix(),
		Text:              "I walked past the old station again.",
		Emotion:           "nostalgia",
		TimeScope:         "past",
		Intensity:         3,
		VoiceMode:         "reflective",
		AuthenticityScore: 4,
		SpecificityScore:  4,
		ClicheScore:       2,
		WordCount:         7,
	}
}

func TestWriterWrite(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	embedder := newFakeEmbedder([]float32{0.1, 0.2, 0.3})
	writer := NewWriter(newTestStore(driver), embedder, nil)

	created, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.VectorStatusReady, created.VectorStatus)
	assert.Equal(t, 1, embedder.callCount())

	// Both sides of the store were written together.
	embedding, ok := driver.embeddings["c-1"]
	require.True(t, ok)
	assert.Equal(t, embedder.Model(), embedding.Model)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding.Embedding)
}

func TestWriterWriteIdempotent(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	embedder := newFakeEmbedder([]float32{0.1, 0.2})
	writer := NewWriter(newTestStore(driver), embedder, nil)

	_, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
	require.NoError(t, err)

	// Re-writing identical content is a no-op and skips the embedding call.
	again, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "c-1", again.UID)
	assert.Equal(t, 1, embedder.callCount())
}

func TestWriterWriteConflict(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	writer := NewWriter(newTestStore(driver), newFakeEmbedder([]float32{0.1}), nil)

	_, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
	require.NoError(t, err)

	changed := writableChunk("c-1")
	changed.Text = "different content under the same uid"
	_, err = writer.Write(ctx, changed, WriteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConstraintViolation))
}

func TestWriterWriteInvalidChunk(t *testing.T) {
	ctx := context.Background()
	writer := NewWriter(newTestStore(newFakeDriver()), newFakeEmbedder([]float32{0.1}), nil)

	chunk := writableChunk("c-1")
	chunk.Intensity = 0
	_, err := writer.Write(ctx, chunk, WriteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConstraintViolation))
}

func TestWriterWriteEmbeddingFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("default fails the write", func(t *testing.T) {
		driver := newFakeDriver()
		embedder := newFakeEmbedder(nil)
		embedder.err = errors.Wrap(ai.ErrEmbeddingUnavailable, "backend down")
		writer := NewWriter(newTestStore(driver), embedder, nil)

		_, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ai.ErrEmbeddingUnavailable))
		assert.Empty(t, driver.chunks)
	})

	t.Run("allow pending defers the vector", func(t *testing.T) {
		driver := newFakeDriver()
		embedder := newFakeEmbedder(nil)
		embedder.err = errors.Wrap(ai.ErrEmbeddingUnavailable, "backend down")
		writer := NewWriter(newTestStore(driver), embedder, nil)

		created, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{AllowPending: true})
		require.NoError(t, err)
		assert.Equal(t, store.VectorStatusPending, created.VectorStatus)
		assert.Empty(t, driver.embeddings)
	})
}

func TestWriterBackfill(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	s := newTestStore(driver)

	broken := newFakeEmbedder(nil)
	broken.err = errors.Wrap(ai.ErrEmbeddingUnavailable, "backend down")
	_, err := NewWriter(s, broken, nil).Write(ctx, writableChunk("c-1"), WriteOptions{AllowPending: true})
	require.NoError(t, err)

	// The backend recovers; backfill flips the chunk back into retrieval.
	writer := NewWriter(s, newFakeEmbedder([]float32{0.4, 0.5}), nil)
	repaired, err := writer.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	assert.Equal(t, store.VectorStatusReady, driver.chunks["c-1"].VectorStatus)
	_, ok := driver.embeddings["c-1"]
	assert.True(t, ok)
}

func TestWriterBackfillNothingPending(t *testing.T) {
	ctx := context.Background()
	writer := NewWriter(newTestStore(newFakeDriver()), newFakeEmbedder([]float32{0.1}), nil)

	repaired, err := writer.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

func TestWriterVerifyIntegrity(t *testing.T) {
	ctx := context.Background()

	t.Run("clean store", func(t *testing.T) {
		driver := newFakeDriver()
		writer := NewWriter(newTestStore(driver), newFakeEmbedder([]float32{0.1}), nil)
		_, err := writer.Write(ctx, writableChunk("c-1"), WriteOptions{})
		require.NoError(t, err)

		report, err := writer.VerifyIntegrity(ctx)
		require.NoError(t, err)
		assert.False(t, report.Faulty())
	})

	t.Run("ready chunk without vector is demoted", func(t *testing.T) {
		driver := newFakeDriver()
		s := newTestStore(driver)
		writer := NewWriter(s, newFakeEmbedder([]float32{0.1}), nil)

		// Simulate a lost vector row behind a ready-marked chunk.
		chunk := writableChunk("c-lost")
		chunk.VectorStatus = store.VectorStatusReady
		_, err := driver.CreateChunk(ctx, chunk)
		require.NoError(t, err)

		report, err := writer.VerifyIntegrity(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrIntegrity))
		assert.Equal(t, []string{"c-lost"}, report.MissingVectorUIDs)
		assert.Equal(t, store.VectorStatusPending, driver.chunks["c-lost"].VectorStatus)
	})

	t.Run("orphan embedding is reported", func(t *testing.T) {
		driver := newFakeDriver()
		writer := NewWriter(newTestStore(driver), newFakeEmbedder([]float32{0.1}), nil)

		_, err := driver.UpsertChunkEmbedding(ctx, &store.ChunkEmbedding{
			ChunkUID:  "ghost",
			Embedding: []float32{0.1},
			Model:     "fake-embedder",
		})
		require.NoError(t, err)

		report, err := writer.VerifyIntegrity(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrIntegrity))
		assert.Equal(t, []string{"ghost"}, report.OrphanEmbeddingUIDs)
	})
}
