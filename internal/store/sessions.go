package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/session"
)

func (s *Store) CreateSession(ctx context.Context, sess *session.ImportSession) error {
	cols, err := sessionColumns(sess)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_sessions (
			id, owner_id, file_name, file_data, status, failure_code,
			mapping, overrides, preview,
			total_rows, valid_rows, error_rows, duplicate_rows,
			result, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		sess.ID, sess.OwnerID, sess.FileName, sess.FileData, sess.Status, sess.FailureCode,
		cols.mapping, cols.overrides, cols.preview,
		sess.TotalRows, sess.ValidRows, sess.ErrorRows, sess.DuplicateRows,
		cols.result, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, owner, id uuid.UUID) (*session.ImportSession, error) {
	return scanSession(s.pool.QueryRow(ctx, `
		SELECT id, owner_id, file_name, file_data, status, failure_code,
		       mapping, overrides, preview,
		       total_rows, valid_rows, error_rows, duplicate_rows,
		       result, created_at, updated_at
		FROM import_sessions
		WHERE id = $1 AND owner_id = $2`,
		id, owner,
	))
}

func (s *Store) SaveSession(ctx context.Context, sess *session.ImportSession) error {
	return s.saveSession(ctx, s.pool, sess)
}

func (s *Store) saveSession(ctx context.Context, db DBTX, sess *session.ImportSession) error {
	cols, err := sessionColumns(sess)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE import_sessions SET
			file_data = $3, status = $4, failure_code = $5,
			mapping = $6, overrides = $7, preview = $8,
			total_rows = $9, valid_rows = $10, error_rows = $11, duplicate_rows = $12,
			result = $13, updated_at = $14
		WHERE id = $1 AND owner_id = $2`,
		sess.ID, sess.OwnerID, sess.FileData, sess.Status, sess.FailureCode,
		cols.mapping, cols.overrides, cols.preview,
		sess.TotalRows, sess.ValidRows, sess.ErrorRows, sess.DuplicateRows,
		cols.result, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, owner, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_sessions WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, owner uuid.UUID, limit int) ([]session.ImportSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, file_name, file_data, status, failure_code,
		       mapping, overrides, preview,
		       total_rows, valid_rows, error_rows, duplicate_rows,
		       result, created_at, updated_at
		FROM import_sessions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.ImportSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// sessionJSON holds the JSONB column payloads for one session row.
type sessionJSON struct {
	mapping   []byte
	overrides []byte
	preview   []byte
	result    []byte
}

func sessionColumns(sess *session.ImportSession) (sessionJSON, error) {
	var cols sessionJSON
	var err error
	if sess.Mapping != nil {
		if cols.mapping, err = json.Marshal(sess.Mapping); err != nil {
			return cols, fmt.Errorf("marshal mapping: %w", err)
		}
	}
	if len(sess.Overrides) > 0 {
		if cols.overrides, err = json.Marshal(sess.Overrides); err != nil {
			return cols, fmt.Errorf("marshal overrides: %w", err)
		}
	}
	if sess.Preview != nil {
		if cols.preview, err = json.Marshal(sess.Preview); err != nil {
			return cols, fmt.Errorf("marshal preview: %w", err)
		}
	}
	if sess.Result != nil {
		if cols.result, err = json.Marshal(sess.Result); err != nil {
			return cols, fmt.Errorf("marshal result: %w", err)
		}
	}
	return cols, nil
}

func scanSession(row pgx.Row) (*session.ImportSession, error) {
	var sess session.ImportSession
	var mapping, overrides, preview, result []byte

	err := row.Scan(
		&sess.ID, &sess.OwnerID, &sess.FileName, &sess.FileData, &sess.Status, &sess.FailureCode,
		&mapping, &overrides, &preview,
		&sess.TotalRows, &sess.ValidRows, &sess.ErrorRows, &sess.DuplicateRows,
		&result, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if len(mapping) > 0 {
		sess.Mapping = &detect.Mapping{}
		if err := json.Unmarshal(mapping, sess.Mapping); err != nil {
			return nil, fmt.Errorf("unmarshal mapping: %w", err)
		}
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &sess.Overrides); err != nil {
			return nil, fmt.Errorf("unmarshal overrides: %w", err)
		}
	}
	if len(preview) > 0 {
		if err := json.Unmarshal(preview, &sess.Preview); err != nil {
			return nil, fmt.Errorf("unmarshal preview: %w", err)
		}
	}
	if len(result) > 0 {
		sess.Result = &session.ConfirmResult{}
		if err := json.Unmarshal(result, sess.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &sess, nil
}
