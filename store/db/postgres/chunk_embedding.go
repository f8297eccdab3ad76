package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/store"
)

func (d *DB) UpsertChunkEmbedding(ctx context.Context, upsert *store.ChunkEmbedding) (*store.ChunkEmbedding, error) {
	if err := d.checkDimension(upsert.Embedding); err != nil {
		return nil, err
	}

	stmt := `INSERT INTO chunk_embedding (chunk_uid, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (chunk_uid, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts`
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.ChunkUID,
		pgvector.NewVector(upsert.Embedding),
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
		where, args = append(where, "chunk_uid = "+placeholder(len(args)+1)), append(args, *find.ChunkUID)
	}
	if find.Model != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *find.Model)
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
		var vector pgvector.Vector
		if err := rows.Scan(
			&embedding.ID,
			&embedding.ChunkUID,
			&vector,
			&embedding.Model,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk embedding")
		}
		embedding.Embedding = vector.Slice()
		list = append(list, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteChunkEmbedding(ctx context.Context, chunkUID string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM chunk_embedding WHERE chunk_uid = $1", chunkUID)
	if err != nil {
		return errors.Wrap(err, "failed to delete chunk embedding")
	}
	return nil
}

// VectorSearch ranks the candidate set by cosine similarity using pgvector.
// The <=> operator returns cosine distance; similarity is 1 - distance.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ChunkWithScore, error) {
	if err := d.checkDimension(opts.Vector); err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(opts.Vector)}
	where := []string{"c.vector_status = 'ready'"}
	if opts.Model != "" {
		where, args = append(where, "e.model = "+placeholder(len(args)+1)), append(args, opts.Model)
	}
	uidPlaceholders := make([]string, len(opts.CandidateUIDs))
	for i, uid := range opts.CandidateUIDs {
		uidPlaceholders[i] = placeholder(len(args) + 1)
		args = append(args, uid)
	}
	where = append(where, "c.uid IN ("+strings.Join(uidPlaceholders, ", ")+")")

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	query := `SELECT c.id, c.uid, c.source, c.timestamp, c.text, c.emotion, c.time_scope,
			c.intensity, c.voice_mode, c.authenticity_score, c.specificity_score,
			c.cliche_score, c.word_count, c.vector_status, c.created_ts,
			1 - (e.embedding <=> $1) AS similarity
		FROM chunk_embedding e
		JOIN chunk c ON c.uid = e.chunk_uid
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY similarity DESC
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run vector search")
	}
	defer rows.Close()

	results := []*store.ChunkWithScore{}
	for rows.Next() {
		var chunk store.Chunk
		var ts sql.NullInt64
		var status string
		var similarity float64
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
			&similarity,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search row")
		}
		if ts.Valid {
			chunk.Timestamp = ts.Int64
		}
		chunk.VectorStatus = store.VectorStatus(status)
		results = append(results, &store.ChunkWithScore{Chunk: &chunk, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
