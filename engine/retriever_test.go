package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versecraft/lyricmem/store"
)

func seedChunk(t *testing.T, driver *fakeDriver, uid, emotion string, vector []float32) {
	t.Helper()
	chunk := writableChunk(uid)
	chunk.Emotion = emotion
	_, err := driver.CreateChunkWithEmbedding(context.Background(), chunk, &store.ChunkEmbedding{
		ChunkUID:  uid,
		Embedding: vector,
		Model:     "fake-embedder",
	})
	require.NoError(t, err)
}

func TestRetrieveEmptyStore(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder([]float32{1, 0})
	retriever := NewRetriever(newTestStore(newFakeDriver()), embedder, nil, DefaultRetrieverConfig())

	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{Query: "rainy platforms"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Degraded)

	// An empty candidate pool short-circuits before the embedding stage.
	assert.Equal(t, 0, embedder.callCount())
}

func TestRetrieveOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "aligned", "nostalgia", []float32{1, 0})
	seedChunk(t, driver, "diagonal", "nostalgia", []float32{1, 1})
	seedChunk(t, driver, "orthogonal", "nostalgia", []float32{0, 1})

	retriever := NewRetriever(newTestStore(driver), newFakeEmbedder([]float32{1, 0}), nil, DefaultRetrieverConfig())

	vectorOnly := RankWeights{Vector: 1}
	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{
		Query:   "rainy platforms",
		Weights: &vectorOnly,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.CandidateCount)

	assert.Equal(t, "aligned", resp.Results[0].Chunk.UID)
	assert.Equal(t, "diagonal", resp.Results[1].Chunk.UID)
	assert.Equal(t, "orthogonal", resp.Results[2].Chunk.UID)
	assert.InDelta(t, 1.0, resp.Results[0].Score.Vector, 0.001)
}

func TestRetrievePrefilterRestrictsVectorStage(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	// The joy chunk is a perfect vector match but fails the prefilter, so it
	// must never surface.
	seedChunk(t, driver, "on-topic", "sadness", []float32{0.5, 0.5})
	seedChunk(t, driver, "off-topic", "joy", []float32{1, 0})

	retriever := NewRetriever(newTestStore(driver), newFakeEmbedder([]float32{1, 0}), nil, DefaultRetrieverConfig())

	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{
		Query:  "rainy platforms",
		Filter: Filter{Emotion: strPtr("sadness")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "on-topic", resp.Results[0].Chunk.UID)
	assert.Equal(t, 1, resp.CandidateCount)
}

func TestRetrieveExcludesPendingChunks(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "ready", "nostalgia", []float32{1, 0})

	pending := writableChunk("pending")
	pending.VectorStatus = store.VectorStatusPending
	_, err := driver.CreateChunk(ctx, pending)
	require.NoError(t, err)

	retriever := NewRetriever(newTestStore(driver), newFakeEmbedder([]float32{1, 0}), nil, DefaultRetrieverConfig())

	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{Query: "rainy platforms"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ready", resp.Results[0].Chunk.UID)
	assert.Equal(t, 1, resp.CandidateCount)
}

func TestRetrieveTopKTruncation(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "a", "nostalgia", []float32{1, 0})
	seedChunk(t, driver, "b", "nostalgia", []float32{1, 1})
	seedChunk(t, driver, "c", "nostalgia", []float32{0, 1})

	retriever := NewRetriever(newTestStore(driver), newFakeEmbedder([]float32{1, 0}), nil, DefaultRetrieverConfig())

	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{Query: "rainy platforms", TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].Chunk.UID)
	assert.Equal(t, 3, resp.CandidateCount)
}

func TestRetrieveMetadataOnly(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "a", "sadness", []float32{1, 0})
	seedChunk(t, driver, "b", "joy", []float32{0, 1})

	embedder := newFakeEmbedder([]float32{1, 0})
	retriever := NewRetriever(newTestStore(driver), embedder, nil, DefaultRetrieverConfig())

	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{
		Filter:       Filter{Emotion: strPtr("sadness")},
		MetadataOnly: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].Chunk.UID)

	// The vector term contributes nothing and the backend is never reached.
	assert.Zero(t, resp.Results[0].Score.Vector)
	assert.Equal(t, 0, embedder.callCount())
}

func TestRetrieveInvalidWeights(t *testing.T) {
	ctx := context.Background()
	retriever := NewRetriever(newTestStore(newFakeDriver()), newFakeEmbedder([]float32{1}), nil, DefaultRetrieverConfig())

	bad := RankWeights{Vector: 1.5}
	_, err := retriever.Retrieve(ctx, &RetrieveRequest{Query: "q", Weights: &bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConstraintViolation))
}

func TestRetrieveEmbeddingTimeout(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "a", "nostalgia", []float32{1, 0})

	embedder := newFakeEmbedder([]float32{1, 0})
	embedder.block = true

	config := DefaultRetrieverConfig()
	config.Timeout = 20 * time.Millisecond
	retriever := NewRetriever(newTestStore(driver), embedder, nil, config)

	_, err := retriever.Retrieve(ctx, &RetrieveRequest{Query: "rainy platforms"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetrievalTimeout))
}

func TestRetrieveTimeRangeExcludesUnknownTimestamps(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	seedChunk(t, driver, "dated", "nostalgia", []float32{1, 0})

	undated := writableChunk("undated")
	undated.Timestamp = 0
	_, err := driver.CreateChunkWithEmbedding(ctx, undated, &store.ChunkEmbedding{
		ChunkUID:  "undated",
		Embedding: []float32{1, 0},
		Model:     "fake-embedder",
	})
	require.NoError(t, err)

	retriever := NewRetriever(newTestStore(driver), newFakeEmbedder([]float32{1, 0}), nil, DefaultRetrieverConfig())

	after := time.Now().Add(-time.Hour).Unix()
	resp, err := retriever.Retrieve(ctx, &RetrieveRequest{
		Query:     "rainy platforms",
		TimeRange: TimeRange{After: &after},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "dated", resp.Results[0].Chunk.UID)
}
