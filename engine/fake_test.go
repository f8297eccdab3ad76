package engine

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/internal/profile"
	"github.com/versecraft/lyricmem/store"
)

// fakeDriver is an in-memory store.Driver for engine tests. It mirrors the
// SQL drivers' filtering and ordering semantics closely enough for the
// pipeline logic to be exercised without a database.
type fakeDriver struct {
	mu         sync.Mutex
	chunks     map[string]*store.Chunk
	embeddings map[string]*store.ChunkEmbedding
	nextID     int32

	listErr   error
	searchErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		chunks:     map[string]*store.Chunk{},
		embeddings: map[string]*store.ChunkEmbedding{},
	}
}

func newTestStore(driver *fakeDriver) *store.Store {
	return store.New(driver, &profile.Profile{Mode: "dev"})
}

func (d *fakeDriver) GetDB() *sql.DB { return nil }
func (d *fakeDriver) Close() error   { return nil }

func (d *fakeDriver) IsInitialized(_ context.Context) (bool, error) { return true, nil }

func (d *fakeDriver) CreateChunk(_ context.Context, create *store.Chunk) (*store.Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.chunks[create.UID]; ok {
		return nil, errors.Wrap(store.ErrConstraintViolation, "uid already exists")
	}
	chunk := *create
	d.nextID++
	chunk.ID = d.nextID
	if chunk.VectorStatus == "" {
		chunk.VectorStatus = store.VectorStatusPending
	}
	if chunk.CreatedTs == 0 {
		chunk.CreatedTs = int64(d.nextID)
	}
	d.chunks[chunk.UID] = &chunk
	return &chunk, nil
}

func (d *fakeDriver) CreateChunkWithEmbedding(ctx context.Context, create *store.Chunk, embedding *store.ChunkEmbedding) (*store.Chunk, error) {
	create.VectorStatus = store.VectorStatusReady
	chunk, err := d.CreateChunk(ctx, create)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e := *embedding
	d.embeddings[embedding.ChunkUID] = &e
	return chunk, nil
}

func (d *fakeDriver) ListChunks(_ context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := []*store.Chunk{}
	for _, chunk := range d.chunks {
		if !matchChunk(chunk, find) {
			continue
		}
		c := *chunk
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp > list[j].Timestamp
		}
		return list[i].ID > list[j].ID
	})
	if find.Offset > 0 {
		if find.Offset >= len(list) {
			return []*store.Chunk{}, nil
		}
		list = list[find.Offset:]
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func matchChunk(c *store.Chunk, f *store.FindChunk) bool {
	if f.ID != nil && c.ID != *f.ID {
		return false
	}
	if f.UID != nil && c.UID != *f.UID {
		return false
	}
	if f.Source != nil && c.Source != *f.Source {
		return false
	}
	if f.Emotion != nil && c.Emotion != *f.Emotion {
		return false
	}
	if f.TimeScope != nil && c.TimeScope != *f.TimeScope {
		return false
	}
	if f.VoiceMode != nil && c.VoiceMode != *f.VoiceMode {
		return false
	}
	if f.MinIntensity != nil && c.Intensity < *f.MinIntensity {
		return false
	}
	if f.MaxIntensity != nil && c.Intensity > *f.MaxIntensity {
		return false
	}
	if f.MinAuthenticity != nil && c.AuthenticityScore < *f.MinAuthenticity {
		return false
	}
	if f.MinSpecificity != nil && c.SpecificityScore < *f.MinSpecificity {
		return false
	}
	if f.MaxCliche != nil && c.ClicheScore > *f.MaxCliche {
		return false
	}
	if f.TimestampAfter != nil && (c.Timestamp == 0 || c.Timestamp < *f.TimestampAfter) {
		return false
	}
	if f.TimestampBefore != nil && (c.Timestamp == 0 || c.Timestamp > *f.TimestampBefore) {
		return false
	}
	if f.VectorStatus != nil && c.VectorStatus != *f.VectorStatus {
		return false
	}
	return true
}

func (d *fakeDriver) UpdateChunkVectorStatus(_ context.Context, uid string, status store.VectorStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	chunk, ok := d.chunks[uid]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "chunk %s", uid)
	}
	chunk.VectorStatus = status
	return nil
}

func (d *fakeDriver) DeleteChunk(_ context.Context, del *store.DeleteChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for uid, chunk := range d.chunks {
		if del.UID != nil && uid != *del.UID {
			continue
		}
		if del.ID != nil && chunk.ID != *del.ID {
			continue
		}
		delete(d.chunks, uid)
		delete(d.embeddings, uid)
	}
	return nil
}

func (d *fakeDriver) UpsertChunkEmbedding(_ context.Context, embedding *store.ChunkEmbedding) (*store.ChunkEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := *embedding
	d.embeddings[embedding.ChunkUID] = &e
	return &e, nil
}

func (d *fakeDriver) ListChunkEmbeddings(_ context.Context, find *store.FindChunkEmbedding) ([]*store.ChunkEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.ChunkEmbedding{}
	for _, e := range d.embeddings {
		if find.ChunkUID != nil && e.ChunkUID != *find.ChunkUID {
			continue
		}
		if find.Model != nil && e.Model != *find.Model {
			continue
		}
		copied := *e
		list = append(list, &copied)
	}
	return list, nil
}

func (d *fakeDriver) DeleteChunkEmbedding(_ context.Context, chunkUID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.embeddings, chunkUID)
	return nil
}

func (d *fakeDriver) VectorSearch(_ context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	hits := []*store.ChunkWithScore{}
	for _, uid := range opts.CandidateUIDs {
		chunk, ok := d.chunks[uid]
		if !ok || chunk.VectorStatus != store.VectorStatusReady {
			continue
		}
		embedding, ok := d.embeddings[uid]
		if !ok || (opts.Model != "" && embedding.Model != opts.Model) {
			continue
		}
		c := *chunk
		hits = append(hits, &store.ChunkWithScore{
			Chunk:      &c,
			Similarity: cosine(opts.Vector, embedding.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (d *fakeDriver) FindChunksPendingEmbedding(_ context.Context, find *store.FindChunksPendingEmbedding) ([]*store.Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.Chunk{}
	for uid, chunk := range d.chunks {
		embedding, ok := d.embeddings[uid]
		hasVector := ok && embedding.Model == find.Model
		if chunk.VectorStatus == store.VectorStatusPending || !hasVector {
			c := *chunk
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UID < list[j].UID })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *fakeDriver) ListOrphanEmbeddingUIDs(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	orphans := []string{}
	for uid := range d.embeddings {
		if _, ok := d.chunks[uid]; !ok {
			orphans = append(orphans, uid)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// fakeEmbedder is a deterministic ai.EmbeddingService. It counts calls so
// tests can assert the short-circuit paths never reach the embedding stage.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	err    error

	// block makes Embed wait for context cancellation, for timeout tests.
	block bool
}

func newFakeEmbedder(vector []float32) *fakeEmbedder {
	return &fakeEmbedder{vector: vector}
}

func (e *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	blocked, err, vector := e.block, e.err, e.vector
	e.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *fakeEmbedder) Dimensions() int { return len(e.vector) }
func (e *fakeEmbedder) Model() string   { return "fake-embedder" }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
