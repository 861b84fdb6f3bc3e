package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
)

const selectColumns = "SELECT id, title, amount_cents, session_id, created_at FROM transactions"

// SQLRepository implements Store over database/sql for engines using `?`
// placeholders (sqlite and mysql). Rows with equal created_at keep
// insertion order through rowid (sqlite) or the seq column (mysql).
type SQLRepository struct {
	db        *sql.DB
	dialect   Dialect
	orderBy   string
	sumExpr   string
	timeParam func(time.Time) any
}

func newSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	r := &SQLRepository{
		db:        db,
		dialect:   dialect,
		orderBy:   "created_at, seq",
		sumExpr:   "COALESCE(SUM(amount_cents), 0)",
		timeParam: func(t time.Time) any { return t.UTC() },
	}
	switch dialect {
	case DialectSQLite:
		r.orderBy = "created_at, rowid"
		r.timeParam = func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }
	case DialectMySQL:
		r.sumExpr = "CAST(COALESCE(SUM(amount_cents), 0) AS SIGNED)"
	}
	return r
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts one row.
func (r *SQLRepository) Create(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transactions (id, title, amount_cents, session_id, created_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.Title, t.Amount.Cents, nullString(t.SessionID), r.timeParam(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// List returns matching rows in insertion order.
func (r *SQLRepository) List(ctx context.Context, f Filter) ([]core.Transaction, error) {
	where, args := whereClause(f)
	rows, err := r.db.QueryContext(ctx, selectColumns+where+" ORDER BY "+r.orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: rows iteration: %w", err)
	}
	return out, nil
}

// Get retrieves a single row by id within the filter.
func (r *SQLRepository) Get(ctx context.Context, id string, f Filter) (core.Transaction, error) {
	query := selectColumns + " WHERE id = ?"
	args := []any{id}
	if f.Scoped() {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// Summarize aggregates amount_cents over matching rows.
func (r *SQLRepository) Summarize(ctx context.Context, f Filter) (core.Money, error) {
	where, args := whereClause(f)
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT "+r.sumExpr+" FROM transactions"+where, args...).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("summarize transactions: %w", err)
	}
	return core.Money{Cents: total}, nil
}

func whereClause(f Filter) (string, []any) {
	if !f.Scoped() {
		return "", nil
	}
	return " WHERE session_id = ?", []any{f.SessionID}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		sessionID sql.NullString
		createdAt any
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Amount.Cents, &sessionID, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.SessionID = sessionID.String
	t.CreatedAt = ts
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

var timestampLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseTimestamp normalizes the created_at value returned by the driver,
// which is a time.Time or text depending on engine and driver options.
func parseTimestamp(v any) (time.Time, error) {
	var s string
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		s = val
	case []byte:
		s = string(val)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}
