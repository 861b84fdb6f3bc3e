package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// ErrMissingSession is returned by scoped operations called without a
// session token.
var ErrMissingSession = errors.New("missing session")

// Publisher announces newly created transactions.
type Publisher interface {
	PublishTransactionCreated(ctx context.Context, t core.Transaction) error
	Close() error
}

// TransactionService orchestrates ledger operations across storage and AMQP.
type TransactionService struct {
	store     storage.Store
	publisher Publisher
	scoping   bool

	now   func() time.Time
	newID func() string
}

type Option func(*TransactionService)

// WithScoping toggles per-session isolation of reads. Enabled by default.
func WithScoping(enabled bool) Option {
	return func(s *TransactionService) { s.scoping = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *TransactionService) { s.newID = gen }
}

// NewTransactionService wires a store and an optional publisher. A nil
// publisher disables event publishing.
func NewTransactionService(store storage.Store, publisher Publisher, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:     store,
		publisher: publisher,
		scoping:   true,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scoping reports whether reads are restricted to the caller's session.
func (s *TransactionService) Scoping() bool {
	return s.scoping
}

// Create validates and persists a transaction, then publishes a
// transaction.created event. A publish failure is logged and does not fail
// the call since the row is already stored.
func (s *TransactionService) Create(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	if s.scoping && in.SessionID == "" {
		return core.Transaction{}, ErrMissingSession
	}

	t, err := in.Build(s.newID(), s.now())
	if err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	if err := s.publishCreated(ctx, t); err != nil {
		fields := log.NewFields().
			WithTransaction(t.ID, t.Amount.Cents).
			WithErrorType(log.ErrorTypeNetwork)
		log.FromContext(ctx).WithComponent(log.ComponentAMQP).ErrorContext(ctx,
			"Failed to publish transaction created message",
			fields.WithError(err).WithOperation(log.OpPublish).ToSlice()...)
	}

	return t, nil
}

// List returns the caller's transactions in insertion order.
func (s *TransactionService) List(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	f, err := s.filter(sessionID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Get returns one transaction or storage.ErrNotFound, including when the row
// belongs to another session.
func (s *TransactionService) Get(ctx context.Context, id, sessionID string) (core.Transaction, error) {
	f, err := s.filter(sessionID)
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := s.store.Get(ctx, id, f)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionService) Summary(ctx context.Context, sessionID string) (core.Summary, error) {
	f, err := s.filter(sessionID)
	if err != nil {
		return core.Summary{}, err
	}
	total, err := s.store.Summarize(ctx, f)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summarize transactions: %w", err)
	}
	return core.Summary{Amount: total}, nil
}

// Ping checks that the underlying store is reachable.
func (s *TransactionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *TransactionService) filter(sessionID string) (storage.Filter, error) {
	if !s.scoping {
		return storage.Filter{}, nil
	}
	if sessionID == "" {
		return storage.Filter{}, ErrMissingSession
	}
	return storage.BySession(sessionID), nil
}

func (s *TransactionService) publishCreated(ctx context.Context, t core.Transaction) error {
	if s.publisher == nil {
		log.FromContext(ctx).WithComponent(log.ComponentAMQP).DebugContext(ctx,
			"AMQP publisher not configured, skipping transaction created message",
			log.FieldOperation, log.OpPublish)
		return nil
	}
	return s.publisher.PublishTransactionCreated(ctx, t)
}

// Close closes both storage and AMQP connections
func (s *TransactionService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}

	return nil
}
