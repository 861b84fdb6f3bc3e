package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ledger/internal/core"
)

// PostgresRepository implements Store on a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a pool for dsn and applies migrations.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Create(ctx context.Context, t core.Transaction) error {
	var sessionID *string
	if t.SessionID != "" {
		sessionID = &t.SessionID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (id, title, amount_cents, session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Title, t.Amount.Cents, sessionID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]core.Transaction, error) {
	query := `SELECT id, title, amount_cents, COALESCE(session_id, ''), created_at FROM transactions`
	var args []any
	if f.Scoped() {
		query += ` WHERE session_id = $1`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY created_at, seq`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Title, &t.Amount.Cents, &t.SessionID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: rows iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string, f Filter) (core.Transaction, error) {
	query := `SELECT id, title, amount_cents, COALESCE(session_id, ''), created_at FROM transactions WHERE id = $1`
	args := []any{id}
	if f.Scoped() {
		query += ` AND session_id = $2`
		args = append(args, f.SessionID)
	}

	var t core.Transaction
	err := r.pool.QueryRow(ctx, query, args...).Scan(&t.ID, &t.Title, &t.Amount.Cents, &t.SessionID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *PostgresRepository) Summarize(ctx context.Context, f Filter) (core.Money, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM transactions`
	var args []any
	if f.Scoped() {
		query += ` WHERE session_id = $1`
		args = append(args, f.SessionID)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("summarize transactions: %w", err)
	}
	return core.Money{Cents: total}, nil
}
