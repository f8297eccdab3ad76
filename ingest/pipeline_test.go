package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/engine"
	"github.com/versecraft/lyricmem/internal/profile"
	"github.com/versecraft/lyricmem/store"
	"github.com/versecraft/lyricmem/store/db/sqlite"
)

// staticEmbedder returns a fixed vector for every text.
type staticEmbedder struct {
	vector []float32
	err    error
}

func (e *staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *staticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for range texts {
		v, err := e.Embed(ctx, "")
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (e *staticEmbedder) Dimensions() int { return len(e.vector) }
func (e *staticEmbedder) Model() string   { return "static-embedder" }

func newPipelineStore(t *testing.T) *store.Store {
	t.Helper()
	testProfile := &profile.Profile{
		Mode:                "dev",
		Driver:              "sqlite",
		DSN:                 filepath.Join(t.TempDir(), "lyricmem_test.db"),
		EmbeddingDimensions: 3,
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)

	s := store.New(driver, testProfile)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "journal_2024-06-01.txt",
		"I remember the kitchen on Fulton Street, back then we had nothing.\n\nNow the block is quiet and I am still writing it all down.")

	s := newPipelineStore(t)
	writer := engine.NewWriter(s, &staticEmbedder{vector: []float32{1, 0, 0}}, nil)
	pipeline := NewPipeline(NewIngestor(), NewChunker(DefaultChunkerConfig()), ai.NewHeuristicLabeler(), writer, nil)

	result, err := pipeline.Run(ctx, []string{dir}, PipelineOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.Documents)
	require.Greater(t, result.Chunks, 0)
	assert.Equal(t, result.Chunks, result.Written)
	assert.Zero(t, result.Skipped)

	// Every written chunk is fully labeled, retrievable, and vector-backed.
	chunks, err := s.ListChunks(ctx, &store.FindChunk{})
	require.NoError(t, err)
	require.Len(t, chunks, result.Written)
	for _, chunk := range chunks {
		assert.Equal(t, store.VectorStatusReady, chunk.VectorStatus)
		assert.Contains(t, ai.AllowedEmotions, chunk.Emotion)
		assert.Contains(t, ai.AllowedTimeScopes, chunk.TimeScope)
		require.NoError(t, chunk.Validate())

		_, err := s.GetChunkEmbedding(ctx, chunk.UID, "static-embedder")
		assert.NoError(t, err)
	}
}

func TestPipelineRunEmbeddingDown(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "I remember the kitchen on Fulton Street.")

	broken := &staticEmbedder{err: errors.Wrap(ai.ErrEmbeddingUnavailable, "backend down")}

	t.Run("fails by default", func(t *testing.T) {
		s := newPipelineStore(t)
		writer := engine.NewWriter(s, broken, nil)
		pipeline := NewPipeline(NewIngestor(), NewChunker(DefaultChunkerConfig()), ai.NewHeuristicLabeler(), writer, nil)

		_, err := pipeline.Run(ctx, []string{dir}, PipelineOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ai.ErrEmbeddingUnavailable))
	})

	t.Run("allow pending defers vectors", func(t *testing.T) {
		s := newPipelineStore(t)
		writer := engine.NewWriter(s, broken, nil)
		pipeline := NewPipeline(NewIngestor(), NewChunker(DefaultChunkerConfig()), ai.NewHeuristicLabeler(), writer, nil)

		result, err := pipeline.Run(ctx, []string{dir}, PipelineOptions{AllowPending: true})
		require.NoError(t, err)
		assert.Equal(t, result.Chunks, result.Written)

		chunks, err := s.ListChunks(ctx, &store.FindChunk{})
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.Equal(t, store.VectorStatusPending, chunk.VectorStatus)
		}
	})
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"journal/2024-06-01.txt", "txt"},
		{"draft.md", "md"},
		{"export.json#3", "json"},
		{"no-extension", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatOf(tt.source), tt.source)
	}
}
