package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/store"
)

func (d *DB) UpsertChunkEmbedding(ctx context.Context, upsert *store.ChunkEmbedding) (*store.ChunkEmbedding, error) {
	if err := d.checkDimension(upsert.Embedding); err != nil {
		return nil, err
	}
	blob, err := float32ArrayToBLOB(upsert.Embedding)
	if err != nil {
		return nil, err
	}

	stmt := `INSERT INTO chunk_embedding (chunk_uid, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chunk_uid, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts`
	err = d.db.QueryRowContext(ctx, stmt,
		upsert.ChunkUID,
		blob,
		upsert.Model,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.ID, &upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(mapConstraintErr(err), "failed to upsert chunk embedding")
	}

	return upsert, nil
}

func (d *DB) ListChunkEmbeddings(ctx context.Context, find *store.FindChunkEmbedding) ([]*store.ChunkEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ChunkUID != nil {
		where, args = append(where, "chunk_uid = ?"), append(args, *find.ChunkUID)
	}
	if find.Model != nil {
		where, args = append(where, "model = ?"), append(args, *find.Model)
	}

	query := `SELECT id, chunk_uid, embedding, model, created_ts, updated_ts
		FROM chunk_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunk embeddings")
	}
	defer rows.Close()

	list := []*store.ChunkEmbedding{}
	for rows.Next() {
		embedding := &store.ChunkEmbedding{}
		var blob []byte
		if err := rows.Scan(
			&embedding.ID,
			&embedding.ChunkUID,
			&blob,
			&embedding.Model,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk embedding")
		}
		embedding.Embedding, err = blobToFloat32Array(blob)
		if err != nil {
			return nil, err
		}
		list = append(list, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteChunkEmbedding(ctx context.Context, chunkUID string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM chunk_embedding WHERE chunk_uid = ?", chunkUID)
	if err != nil {
		return errors.Wrap(err, "failed to delete chunk embedding")
	}
	return nil
}

// VectorSearch scans the candidate embeddings and ranks them by cosine
// similarity in Go. SQLite has no native vector type, and the candidate set
// coming out of the metadata prefilter is small enough (a few hundred rows)
// that a brute-force scan stays well under a millisecond.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	if err := d.checkDimension(opts.Vector); err != nil {
		return nil, err
	}

	where, args := []string{"c.vector_status = 'ready'"}, []any{}
	if opts.Model != "" {
		where, args = append(where, "e.model = ?"), append(args, opts.Model)
	}
	where = append(where, "c.uid IN ("+placeholders(len(opts.CandidateUIDs))+")")
	for _, uid := range opts.CandidateUIDs {
		args = append(args, uid)
	}

	query := `SELECT c.id, c.uid, c.source, c.timestamp, c.text, c.emotion, c.time_scope,
			c.intensity, c.voice_mode, c.authenticity_score, c.specificity_score,
			c.cliche_score, c.word_count, c.vector_status, c.created_ts, e.embedding
		FROM chunk_embedding e
		JOIN chunk c ON c.uid = e.chunk_uid
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query embeddings for vector search")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var ts sql.NullInt64
		var status string
		var blob []byte
		if err := rows.Scan(
			&chunk.ID,
			&chunk.UID,
			&chunk.Source,
			&ts,
			&chunk.Text,
			&chunk.Emotion,
			&chunk.TimeScope,
			&chunk.Intensity,
			&chunk.VoiceMode,
			&chunk.AuthenticityScore,
			&chunk.SpecificityScore,
			&chunk.ClicheScore,
			&chunk.WordCount,
			&status,
			&chunk.CreatedTs,
			&blob,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding row")
		}
		if ts.Valid {
			chunk.Timestamp = ts.Int64
		}
		chunk.VectorStatus = store.VectorStatus(status)

		embedding, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, err
		}
		if len(embedding) != len(opts.Vector) {
			return nil, errors.Wrapf(store.ErrDimensionMismatch,
				"stored vector for %s has %d dimensions, query has %d",
				chunk.UID, len(embedding), len(opts.Vector))
		}

		results = append(results, &store.ChunkWithScore{
			Chunk:      &chunk,
			Similarity: cosineSimilarity(opts.Vector, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

func (d *DB) ListOrphanEmbeddingUIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT e.chunk_uid
		FROM chunk_embedding e
		LEFT JOIN chunk c ON c.uid = e.chunk_uid
		WHERE c.uid IS NULL
		ORDER BY e.chunk_uid`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orphan embedding uids")
	}
	defer rows.Close()

	uids := []string{}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, errors.Wrap(err, "failed to scan orphan uid")
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return uids, nil
}

func (d *DB) checkDimension(vector []float32) error {
	want := d.profile.EmbeddingDimensions
	if want > 0 && len(vector) != want {
		return errors.Wrapf(store.ErrDimensionMismatch,
			"vector has %d dimensions, index is configured for %d", len(vector), want)
	}
	return nil
}

// float32ArrayToBLOB serializes a vector as little-endian float32 bytes.
func float32ArrayToBLOB(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, errors.Wrap(err, "failed to encode embedding vector")
	}
	return buf.Bytes(), nil
}

func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length: %d", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, errors.Wrap(err, "failed to decode embedding vector")
	}
	return vector, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// mapped from [-1, 1] as-is. Zero vectors yield zero similarity.
func cosineSimilarity(a, b []float32) float64 {
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
