package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/internal/profile"
	"github.com/versecraft/lyricmem/store/cache"
)

// CacheMetrics receives cache hit and miss counts. Satisfied by the
// Prometheus exporter.
type CacheMetrics interface {
	CountCacheHit(cache string)
	CountCacheMiss(cache string)
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// chunkCache caches chunk metadata by UID. Chunks are immutable once
	// written, so the cache never serves stale content; entries are only
	// invalidated on delete or vector-status change.
	chunkCache   *cache.Cache
	cacheMetrics CacheMetrics
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:      driver,
		profile:     profile,
		cacheConfig: cacheConfig,
		chunkCache:  cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// SetCacheMetrics attaches a metrics sink for cache hit/miss counts. The
// exporter is constructed after the store, so this is wired late.
func (s *Store) SetCacheMetrics(m CacheMetrics) {
	s.cacheMetrics = m
}

func (s *Store) Close() error {
	s.chunkCache.Close()
	return s.driver.Close()
}

// CreateChunk persists a chunk's metadata row only, with the supplied
// vector status. Most callers should go through the engine's writer, which
// pairs the metadata write with the vector write.
func (s *Store) CreateChunk(ctx context.Context, create *Chunk) (*Chunk, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateChunk(ctx, create)
}

// CreateChunkWithEmbedding writes metadata and vector as one logical unit.
func (s *Store) CreateChunkWithEmbedding(ctx context.Context, create *Chunk, embedding *ChunkEmbedding) (*Chunk, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateChunkWithEmbedding(ctx, create, embedding)
}

// GetChunk returns a single chunk or ErrNotFound.
func (s *Store) GetChunk(ctx context.Context, find *FindChunk) (*Chunk, error) {
	list, err := s.ListChunks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrap(ErrNotFound, "chunk")
	}
	return list[0], nil
}

// GetChunkByUID returns a single chunk by its UID, served from cache when
// possible.
func (s *Store) GetChunkByUID(ctx context.Context, uid string) (*Chunk, error) {
	if v, ok := s.chunkCache.Get(ctx, uid); ok {
		if chunk, ok := v.(*Chunk); ok {
			if s.cacheMetrics != nil {
				s.cacheMetrics.CountCacheHit("chunk")
			}
			return chunk, nil
		}
	}
	if s.cacheMetrics != nil {
		s.cacheMetrics.CountCacheMiss("chunk")
	}
	chunk, err := s.GetChunk(ctx, &FindChunk{UID: &uid})
	if err != nil {
		return nil, err
	}
	s.chunkCache.Set(ctx, uid, chunk)
	return chunk, nil
}

// ListChunks lists chunks matching the find conditions, newest first.
func (s *Store) ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error) {
	return s.driver.ListChunks(ctx, find)
}

// UpdateChunkVectorStatus flips a chunk's vector status. The only mutable
// chunk field; content itself is immutable.
func (s *Store) UpdateChunkVectorStatus(ctx context.Context, uid string, status VectorStatus) error {
	if err := s.driver.UpdateChunkVectorStatus(ctx, uid, status); err != nil {
		return err
	}
	s.chunkCache.Delete(ctx, uid)
	return nil
}

// DeleteChunk removes the metadata row and the vector row atomically.
func (s *Store) DeleteChunk(ctx context.Context, delete *DeleteChunk) error {
	if delete.UID != nil {
		s.chunkCache.Delete(ctx, *delete.UID)
	}
	return s.driver.DeleteChunk(ctx, delete)
}

// DeleteChunkEmbedding removes the vector row only. Exposed for repair
// tooling; normal deletion goes through DeleteChunk.
func (s *Store) DeleteChunkEmbedding(ctx context.Context, chunkUID string) error {
	return s.driver.DeleteChunkEmbedding(ctx, chunkUID)
}

// FindChunksPendingEmbedding lists chunks awaiting a vector backfill.
func (s *Store) FindChunksPendingEmbedding(ctx context.Context, find *FindChunksPendingEmbedding) ([]*Chunk, error) {
	return s.driver.FindChunksPendingEmbedding(ctx, find)
}

// ListOrphanEmbeddingUIDs returns vector-side UIDs without metadata rows.
func (s *Store) ListOrphanEmbeddingUIDs(ctx context.Context) ([]string, error) {
	return s.driver.ListOrphanEmbeddingUIDs(ctx)
}
