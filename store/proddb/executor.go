// Package proddb runs validated read-only SQL against the production
// manufacturing database. It never writes; write protection is enforced
// upstream by the SQL validator and here by the connection being used for
// queries only.
package proddb

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	// Import the Postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/prodtalk/prodtalk/internal/profile"
)

// Result is the outcome of one production query. Rows preserve the column
// order via Columns; cell values are already coerced to JSON-friendly types.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowCount returns the number of result rows.
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Executor executes sanitized SELECT statements with a per-query timeout.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

// New connects to the production database described by the profile.
func New(profile *profile.Profile) (*Executor, error) {
	if profile.ProdDSN == "" {
		return nil, errors.New("production dsn required")
	}
	db, err := sql.Open("postgres", profile.ProdDSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open production db")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Executor{
		db:      db,
		timeout: time.Duration(profile.ProdTimeout) * time.Second,
	}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute runs one statement and materializes the full result set. The
// statement must already carry its row cap; Execute does not add one.
func (e *Executor) Execute(ctx context.Context, statement string) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute production query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read result columns")
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrap(err, "failed to scan production row")
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = coerceValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate production rows")
	}
	return result, nil
}

// coerceValue maps driver values onto the types the answer layer and the
// JSON result summary expect: timestamps become ISO-8601 strings and
// numeric byte slices (Postgres NUMERIC) become float64.
func coerceValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		s := string(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	default:
		return v
	}
}
