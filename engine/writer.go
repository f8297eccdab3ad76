package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/ai/metrics"
	"github.com/versecraft/lyricmem/store"
)

// Writer populates both sides of the store for each ingested chunk. The
// metadata row and the embedding vector are committed in a single database
// transaction, so neither can exist without the other.
//
// When the embedding backend is unavailable, callers can opt into the
// pending-vector path: the metadata row is written with
// vector_status='pending' and stays out of retrieval until Backfill flips
// it, so a chunk can never be retrievable through the metadata prefilter
// while absent from the vector stage.
type Writer struct {
	store    *store.Store
	embedder ai.EmbeddingService
	exporter *metrics.Exporter

	// locks serializes concurrent writes to the same UID, so the
	// idempotence check and the insert cannot interleave.
	locks sync.Map // uid -> *sync.Mutex
}

// WriteOptions controls the write policy for one chunk.
type WriteOptions struct {
	// AllowPending permits the metadata row to be written without its
	// vector when the embedding backend fails. Default is to fail the
	// whole write.
	AllowPending bool
}

func NewWriter(s *store.Store, embedder ai.EmbeddingService, exporter *metrics.Exporter) *Writer {
	return &Writer{store: s, embedder: embedder, exporter: exporter}
}

// Write persists one chunk. Re-writing an identical chunk under the same
// UID is a no-op; re-writing different content is a constraint violation,
// since chunks are immutable.
func (w *Writer) Write(ctx context.Context, chunk *store.Chunk, opts WriteOptions) (*store.Chunk, error) {
	if err := chunk.Validate(); err != nil {
		w.countWrite("", "invalid")
		return nil, err
	}

	mu := w.uidLock(chunk.UID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := w.store.GetChunkByUID(ctx, chunk.UID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, "failed to check for existing chunk")
	}
	if existing != nil {
		if existing.ContentEqual(chunk) {
			return existing, nil
		}
		w.countWrite("", "conflict")
		return nil, errors.Wrapf(store.ErrConstraintViolation,
			"chunk %s already exists with different content", chunk.UID)
	}

	vector, err := w.embed(ctx, chunk.Text)
	if err != nil {
		if !opts.AllowPending {
			w.countWrite("", "error")
			return nil, err
		}
		slog.Warn("embedding unavailable, deferring vector write",
			"uid", chunk.UID, "error", err)
		chunk.VectorStatus = store.VectorStatusPending
		created, err := w.store.CreateChunk(ctx, chunk)
		if err != nil {
			w.countWrite(string(store.VectorStatusPending), "error")
			return nil, err
		}
		w.countWrite(string(store.VectorStatusPending), "ok")
		return created, nil
	}

	now := time.Now().Unix()
	created, err := w.store.CreateChunkWithEmbedding(ctx, chunk, &store.ChunkEmbedding{
		ChunkUID:  chunk.UID,
		Embedding: vector,
		Model:     w.embedder.Model(),
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		w.countWrite(string(store.VectorStatusReady), "error")
		return nil, err
	}
	w.countWrite(string(store.VectorStatusReady), "ok")
	return created, nil
}

// Backfill embeds and indexes chunks whose vector write was deferred,
// flipping them back into retrieval. Returns the number of repaired chunks.
func (w *Writer) Backfill(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.FindChunksPendingEmbedding(ctx, &store.FindChunksPendingEmbedding{
		Model: w.embedder.Model(),
		Limit: limit,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to find pending chunks")
	}
	if len(pending) == 0 {
		return 0, nil
	}

	repaired := 0
	for _, chunk := range pending {
		vector, err := w.embed(ctx, chunk.Text)
		if err != nil {
			// The backend is down again; keep what we repaired so far.
			return repaired, err
		}
		now := time.Now().Unix()
		if _, err := w.store.UpsertChunkEmbedding(ctx, &store.ChunkEmbedding{
			ChunkUID:  chunk.UID,
			Embedding: vector,
			Model:     w.embedder.Model(),
			CreatedTs: now,
			UpdatedTs: now,
		}); err != nil {
			return repaired, errors.Wrapf(err, "failed to backfill vector for %s", chunk.UID)
		}
		if err := w.store.UpdateChunkVectorStatus(ctx, chunk.UID, store.VectorStatusReady); err != nil {
			return repaired, errors.Wrapf(err, "failed to mark %s ready", chunk.UID)
		}
		repaired++
	}

	slog.Info("backfilled pending vectors", "count", repaired)
	return repaired, nil
}

// IntegrityReport lists the cross-store faults found by VerifyIntegrity.
type IntegrityReport struct {
	// OrphanEmbeddingUIDs are vector rows without a metadata row.
	OrphanEmbeddingUIDs []string
	// MissingVectorUIDs are ready-marked chunks without a vector row; they
	// were demoted to pending so the prefilter excludes them.
	MissingVectorUIDs []string
}

// Faulty reports whether any inconsistency was found.
func (r *IntegrityReport) Faulty() bool {
	return len(r.OrphanEmbeddingUIDs) > 0 || len(r.MissingVectorUIDs) > 0
}

// VerifyIntegrity checks the shared-identifier correspondence between the
// metadata store and the vector index. Ready chunks missing their vector
// are demoted to pending (repairable via Backfill); orphan vectors are
// reported for manual cleanup. Any fault yields ErrIntegrity alongside the
// report.
func (w *Writer) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	orphans, err := w.store.ListOrphanEmbeddingUIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orphan embeddings")
	}
	report.OrphanEmbeddingUIDs = orphans

	ready := store.VectorStatusReady
	chunks, err := w.store.ListChunks(ctx, &store.FindChunk{VectorStatus: &ready})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ready chunks")
	}
	for _, chunk := range chunks {
		_, err := w.store.GetChunkEmbedding(ctx, chunk.UID, w.embedder.Model())
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrapf(err, "failed to check embedding for %s", chunk.UID)
		}
		if err := w.store.UpdateChunkVectorStatus(ctx, chunk.UID, store.VectorStatusPending); err != nil {
			return nil, errors.Wrapf(err, "failed to demote %s", chunk.UID)
		}
		report.MissingVectorUIDs = append(report.MissingVectorUIDs, chunk.UID)
	}

	if report.Faulty() {
		slog.Warn("cross-store integrity faults found",
			"orphan_embeddings", len(report.OrphanEmbeddingUIDs),
			"missing_vectors", len(report.MissingVectorUIDs))
		return report, errors.Wrapf(store.ErrIntegrity,
			"%d orphan embeddings, %d missing vectors",
			len(report.OrphanEmbeddingUIDs), len(report.MissingVectorUIDs))
	}
	return report, nil
}

func (w *Writer) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if w.exporter != nil {
		w.exporter.ObserveEmbedding(time.Since(start))
	}
	return vector, nil
}

func (w *Writer) uidLock(uid string) *sync.Mutex {
	mu, _ := w.locks.LoadOrStore(uid, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (w *Writer) countWrite(vectorStatus, status string) {
	if w.exporter != nil {
		w.exporter.CountChunkWrite(vectorStatus, status)
	}
}
