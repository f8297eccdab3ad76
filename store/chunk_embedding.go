package store

import (
	"context"

	"github.com/pkg/errors"
)

// ChunkEmbedding represents the vector side of a chunk, joined to the
// metadata side by ChunkUID.
type ChunkEmbedding struct {
	ID        int32
	ChunkUID  string
	Embedding []float32
	Model     string
	CreatedTs int64
	UpdatedTs int64
}

// FindChunkEmbedding is the find condition for chunk embeddings.
type FindChunkEmbedding struct {
	ChunkUID *string
	Model    *string
}

// ChunkWithScore is a vector search hit: the chunk's metadata plus its
// cosine similarity to the query vector, in [-1, 1].
type ChunkWithScore struct {
	Chunk      *Chunk
	Similarity float64
}

// VectorSearchOptions restricts a similarity search to a candidate set.
// The engine never issues an unrestricted full-index scan: an empty
// CandidateUIDs set short-circuits before the driver is reached.
type VectorSearchOptions struct {
	Vector        []float32
	CandidateUIDs []string
	Model         string
	Limit         int
}

// Validate checks the search options before they reach a driver.
func (o *VectorSearchOptions) Validate() error {
	if len(o.Vector) == 0 {
		return errors.New("query vector cannot be empty")
	}
	if len(o.CandidateUIDs) == 0 {
		return errors.New("candidate set cannot be empty")
	}
	if o.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if o.Limit == 0 {
		o.Limit = 10
	}
	return nil
}

// UpsertChunkEmbedding inserts or updates a chunk embedding.
func (s *Store) UpsertChunkEmbedding(ctx context.Context, embedding *ChunkEmbedding) (*ChunkEmbedding, error) {
	return s.driver.UpsertChunkEmbedding(ctx, embedding)
}

// GetChunkEmbedding gets the embedding of a specific chunk.
func (s *Store) GetChunkEmbedding(ctx context.Context, chunkUID string, model string) (*ChunkEmbedding, error) {
	list, err := s.driver.ListChunkEmbeddings(ctx, &FindChunkEmbedding{
		ChunkUID: &chunkUID,
		Model:    &model,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "embedding for chunk %s", chunkUID)
	}
	return list[0], nil
}

// ListChunkEmbeddings lists chunk embeddings.
func (s *Store) ListChunkEmbeddings(ctx context.Context, find *FindChunkEmbedding) ([]*ChunkEmbedding, error) {
	return s.driver.ListChunkEmbeddings(ctx, find)
}

// VectorSearch performs similarity search restricted to a candidate set.
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ChunkWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.VectorSearch(ctx, opts)
}
