package storage

import (
	"context"
	"errors"

	"ledger/internal/core"
)

// ErrNotFound is returned by Get when no row matches both the id and the
// filter. A row owned by another session is reported the same way.
var ErrNotFound = errors.New("transaction not found")

// Filter restricts reads to a single session. The zero value is unscoped.
type Filter struct {
	SessionID string
}

// Scoped reports whether the filter restricts rows to a session.
func (f Filter) Scoped() bool {
	return f.SessionID != ""
}

// BySession returns a filter scoped to sessionID.
func BySession(sessionID string) Filter {
	return Filter{SessionID: sessionID}
}

// Ports for the transactions table.
type (
	TransactionReader interface {
		List(ctx context.Context, f Filter) ([]core.Transaction, error)
		Get(ctx context.Context, id string, f Filter) (core.Transaction, error)
		// Summarize returns the sum of matching amounts, zero when nothing matches.
		Summarize(ctx context.Context, f Filter) (core.Money, error)
	}

	TransactionWriter interface {
		Create(ctx context.Context, t core.Transaction) error
	}

	Store interface {
		TransactionReader
		TransactionWriter
		Ping(ctx context.Context) error
		Close() error
	}
)
