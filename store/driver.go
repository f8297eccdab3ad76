package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Chunk metadata model related methods.
	CreateChunk(ctx context.Context, create *Chunk) (*Chunk, error)
	ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error)
	UpdateChunkVectorStatus(ctx context.Context, uid string, status VectorStatus) error
	DeleteChunk(ctx context.Context, delete *DeleteChunk) error

	// CreateChunkWithEmbedding writes the metadata row and the vector row
	// in one transaction. Both succeed or neither does.
	CreateChunkWithEmbedding(ctx context.Context, create *Chunk, embedding *ChunkEmbedding) (*Chunk, error)

	// ChunkEmbedding model related methods.
	UpsertChunkEmbedding(ctx context.Context, embedding *ChunkEmbedding) (*ChunkEmbedding, error)
	ListChunkEmbeddings(ctx context.Context, find *FindChunkEmbedding) ([]*ChunkEmbedding, error)
	DeleteChunkEmbedding(ctx context.Context, chunkUID string) error

	// VectorSearch performs similarity search restricted to a candidate
	// UID set. Options are validated by the Store facade.
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ChunkWithScore, error)

	// FindChunksPendingEmbedding finds chunks without a vector row for the
	// given model, for the backfill procedure.
	FindChunksPendingEmbedding(ctx context.Context, find *FindChunksPendingEmbedding) ([]*Chunk, error)

	// ListOrphanEmbeddingUIDs returns chunk UIDs that have a vector row but
	// no metadata row. Such UIDs are integrity faults.
	ListOrphanEmbeddingUIDs(ctx context.Context) ([]string, error)
}
