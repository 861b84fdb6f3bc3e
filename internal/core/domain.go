package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

const maxTitleLength = 200

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is one ledger entry. Amount is signed: credits are
	// positive, debits negative.
	Transaction struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Amount    Money     `json:"amount"`
		SessionID string    `json:"session_id"`
		CreatedAt time.Time `json:"created_at"`
	}

	// NewTransaction is the unsigned input accepted by the create operation.
	NewTransaction struct {
		Title     string
		Amount    Money // magnitude, always positive
		Type      TransactionType
		SessionID string
	}
)

var (
	ErrEmptyTitle    = errors.New("empty title")
	ErrTitleTooLong  = errors.New("title too long (max 200 characters)")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
)

// Valid reports whether t is one of the supported directions.
func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

// Apply returns magnitude signed according to the direction.
func (t TransactionType) Apply(magnitude Money) Money {
	if t == Debit {
		return Money{Cents: -magnitude.Cents}
	}
	return magnitude
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (n NewTransaction) Validate() error {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	if !n.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Build validates the input and produces the row to persist, normalizing
// the amount sign from the requested type.
func (n NewTransaction) Build(id string, now time.Time) (Transaction, error) {
	if err := n.Validate(); err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:        id,
		Title:     strings.TrimSpace(n.Title),
		Amount:    n.Type.Apply(n.Amount),
		SessionID: n.SessionID,
		CreatedAt: now.UTC(),
	}, nil
}
