package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/prodtalk/prodtalk/store"
)

func (d *DB) CreateQueryThread(ctx context.Context, create *store.QueryThread) (*store.QueryThread, error) {
	now := time.Now().Unix()
	stmt := `
		INSERT INTO query_thread (uid, creator_id, title, row_status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if create.RowStatus == "" {
		create.RowStatus = store.Normal
	}
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.CreatorID,
		create.Title,
		create.RowStatus,
		now,
		now,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create query thread")
	}
	create.CreatedTs = now
	create.UpdatedTs = now
	return create, nil
}

func (d *DB) ListQueryThreads(ctx context.Context, find *store.FindQueryThread) ([]*store.QueryThread, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = ?"), append(args, *find.CreatorID)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = ?"), append(args, *find.RowStatus)
	}

	query := `SELECT id, uid, creator_id, title, row_status, created_ts, updated_ts
		FROM query_thread
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list query threads")
	}
	defer rows.Close()

	var threads []*store.QueryThread
	for rows.Next() {
		var thread store.QueryThread
		if err := rows.Scan(
			&thread.ID,
			&thread.UID,
			&thread.CreatorID,
			&thread.Title,
			&thread.RowStatus,
			&thread.CreatedTs,
			&thread.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan query thread")
		}
		threads = append(threads, &thread)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate query threads")
	}
	return threads, nil
}

// DeleteQueryThread soft-deletes the thread and its turns as a unit.
func (d *DB) DeleteQueryThread(ctx context.Context, delete *store.DeleteQueryThread) error {
	stmt := `UPDATE query_thread SET row_status = ?, updated_ts = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, store.Archived, time.Now().Unix(), delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete query thread")
	}
	return nil
}

func (d *DB) CreateQueryTurn(ctx context.Context, create *store.QueryTurn) (*store.QueryTurn, error) {
	now := time.Now().Unix()
	stmt := `
		INSERT INTO query_turn (thread_id, role, raw_text, normalized_text, generated_sql, result_summary, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ThreadID,
		create.Role,
		create.RawText,
		create.NormalizedText,
		create.GeneratedSQL,
		create.ResultSummary,
		now,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create query turn")
	}
	create.CreatedTs = now
	return create, nil
}

func (d *DB) ListQueryTurns(ctx context.Context, find *store.FindQueryTurn) ([]*store.QueryTurn, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ThreadID != nil {
		where, args = append(where, "thread_id = ?"), append(args, *find.ThreadID)
	}
	if find.Role != nil {
		where, args = append(where, "role = ?"), append(args, *find.Role)
	}

	query := `SELECT id, thread_id, role, raw_text, normalized_text, generated_sql, result_summary, created_ts
		FROM query_turn
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`
	if find.Limit != nil {
		// Most recent turns when a window is requested.
		query = `SELECT id, thread_id, role, raw_text, normalized_text, generated_sql, result_summary, created_ts
			FROM query_turn
			WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY created_ts DESC, id DESC LIMIT ?`
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list query turns")
	}
	defer rows.Close()

	var turns []*store.QueryTurn
	for rows.Next() {
		var turn store.QueryTurn
		if err := rows.Scan(
			&turn.ID,
			&turn.ThreadID,
			&turn.Role,
			&turn.RawText,
			&turn.NormalizedText,
			&turn.GeneratedSQL,
			&turn.ResultSummary,
			&turn.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan query turn")
		}
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate query turns")
	}

	if find.Limit != nil {
		// Restore chronological order after the windowed fetch.
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
	}
	return turns, nil
}
