package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/store"
)

func (d *DB) CreateChunk(ctx context.Context, create *store.Chunk) (*store.Chunk, error) {
	if create.VectorStatus == "" {
		create.VectorStatus = store.VectorStatusPending
	}

	stmt := `INSERT INTO chunk (
			uid, source, timestamp, text, emotion, time_scope, intensity,
			voice_mode, authenticity_score, specificity_score, cliche_score,
			word_count, vector_status
		) VALUES (` + placeholders(13) + `)
		RETURNING id, created_ts`

	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.Source,
		nullableTs(create.Timestamp),
		create.Text,
		create.Emotion,
		create.TimeScope,
		create.Intensity,
		create.VoiceMode,
		create.AuthenticityScore,
		create.SpecificityScore,
		create.ClicheScore,
		create.WordCount,
		string(create.VectorStatus),
	).Scan(&create.ID, &create.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(mapConstraintErr(err), "failed to create chunk")
	}

	return create, nil
}

func (d *DB) ListChunks(ctx context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.Source != nil {
		where, args = append(where, "source = "+placeholder(len(args)+1)), append(args, *find.Source)
	}
	if find.Emotion != nil {
		where, args = append(where, "emotion = "+placeholder(len(args)+1)), append(args, *find.Emotion)
	}
	if find.TimeScope != nil {
		where, args = append(where, "time_scope = "+placeholder(len(args)+1)), append(args, *find.TimeScope)
	}
	if find.VoiceMode != nil {
		where, args = append(where, "voice_mode = "+placeholder(len(args)+1)), append(args, *find.VoiceMode)
	}
	if find.MinIntensity != nil {
		where, args = append(where, "intensity >= "+placeholder(len(args)+1)), append(args, *find.MinIntensity)
	}
	if find.MaxIntensity != nil {
		where, args = append(where, "intensity <= "+placeholder(len(args)+1)), append(args, *find.MaxIntensity)
	}
	if find.MinAuthenticity != nil {
		where, args = append(where, "authenticity_score >= "+placeholder(len(args)+1)), append(args, *find.MinAuthenticity)
	}
	if find.MinSpecificity != nil {
		where, args = append(where, "specificity_score >= "+placeholder(len(args)+1)), append(args, *find.MinSpecificity)
	}
	if find.MaxCliche != nil {
		where, args = append(where, "cliche_score <= "+placeholder(len(args)+1)), append(args, *find.MaxCliche)
	}
	if find.TimestampAfter != nil {
		where = append(where, "timestamp IS NOT NULL")
		where, args = append(where, "timestamp >= "+placeholder(len(args)+1)), append(args, *find.TimestampAfter)
	}
	if find.TimestampBefore != nil {
		where = append(where, "timestamp IS NOT NULL")
		where, args = append(where, "timestamp <= "+placeholder(len(args)+1)), append(args, *find.TimestampBefore)
	}
	if find.VectorStatus != nil {
		where, args = append(where, "vector_status = "+placeholder(len(args)+1)), append(args, string(*find.VectorStatus))
	}

	query := `SELECT id, uid, source, timestamp, text, emotion, time_scope, intensity,
			voice_mode, authenticity_score, specificity_score, cliche_score,
			word_count, vector_status, created_ts
		FROM chunk
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY COALESCE(timestamp, 0) DESC, created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	list := []*store.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateChunkVectorStatus(ctx context.Context, uid string, status store.VectorStatus) error {
	result, err := d.db.ExecContext(ctx, "UPDATE chunk SET vector_status = $1 WHERE uid = $2", string(status), uid)
	if err != nil {
		return errors.Wrap(mapConstraintErr(err), "failed to update chunk vector status")
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return errors.Wrapf(store.ErrNotFound, "chunk %s", uid)
	}
	return nil
}

func (d *DB) DeleteChunk(ctx context.Context, delete *store.DeleteChunk) error {
	uid := ""
	if delete.UID != nil {
		uid = *delete.UID
	} else if delete.ID != nil {
		if err := d.db.QueryRowContext(ctx, "SELECT uid FROM chunk WHERE id = $1", *delete.ID).Scan(&uid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(store.ErrNotFound, "chunk id %d", *delete.ID)
			}
			return errors.Wrap(err, "failed to resolve chunk uid")
		}
	} else {
		return errors.Wrap(store.ErrConstraintViolation, "delete requires id or uid")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM chunk WHERE uid = $1", uid)
	if err != nil {
		return errors.Wrap(err, "failed to delete chunk")
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return errors.Wrapf(store.ErrNotFound, "chunk %s", uid)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_embedding WHERE chunk_uid = $1", uid); err != nil {
		return errors.Wrap(err, "failed to delete chunk embedding")
	}

	return tx.Commit()
}

func (d *DB) CreateChunkWithEmbedding(ctx context.Context, create *store.Chunk, embedding *store.ChunkEmbedding) (*store.Chunk, error) {
	if err := d.checkDimension(embedding.Embedding); err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	create.VectorStatus = store.VectorStatusReady
	stmt := `INSERT INTO chunk (
			uid, source, timestamp, text, emotion, time_scope, intensity,
			voice_mode, authenticity_score, specificity_score, cliche_score,
			word_count, vector_status
		) VALUES (` + placeholders(13) + `)
		RETURNING id, created_ts`
	err = tx.QueryRowContext(ctx, stmt,
		create.UID,
		create.Source,
		nullableTs(create.Timestamp),
		create.Text,
		create.Emotion,
		create.TimeScope,
		create.Intensity,
		create.VoiceMode,
		create.AuthenticityScore,
		create.SpecificityScore,
		create.ClicheScore,
		create.WordCount,
		string(store.VectorStatusReady),
	).Scan(&create.ID, &create.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(mapConstraintErr(err), "failed to create chunk")
	}

	embStmt := `INSERT INTO chunk_embedding (chunk_uid, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING id`
	err = tx.QueryRowContext(ctx, embStmt,
		embedding.ChunkUID,
		pgvector.NewVector(embedding.Embedding),
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID)
	if err != nil {
		return nil, errors.Wrap(mapConstraintErr(err), "failed to create chunk embedding")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit chunk write")
	}
	return create, nil
}

func (d *DB) FindChunksPendingEmbedding(ctx context.Context, find *store.FindChunksPendingEmbedding) ([]*store.Chunk, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT c.id, c.uid, c.source, c.timestamp, c.text, c.emotion, c.time_scope,
			c.intensity, c.voice_mode, c.authenticity_score, c.specificity_score,
			c.cliche_score, c.word_count, c.vector_status, c.created_ts
		FROM chunk c
		LEFT JOIN chunk_embedding e ON c.uid = e.chunk_uid AND e.model = $1
		WHERE (c.vector_status = 'pending' OR e.chunk_uid IS NULL)
		ORDER BY c.created_ts DESC
		LIMIT $2`

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find chunks pending embedding")
	}
	defer rows.Close()

	list := []*store.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*store.Chunk, error) {
	var chunk store.Chunk
	var ts sql.NullInt64
	var status string
	err := row.Scan(
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
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan chunk")
	}
	if ts.Valid {
		chunk.Timestamp = ts.Int64
	}
	chunk.VectorStatus = store.VectorStatus(status)
	return &chunk, nil
}

func nullableTs(ts int64) sql.NullInt64 {
	if ts == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ts, Valid: true}
}
