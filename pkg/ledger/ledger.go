// Package ledger provides account credit balances for the platform.
// Credits are the billing unit consumed by running interview sessions;
// the timer engine reads balances from here when deciding whether a
// session may continue.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when an account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// ErrInvalidAmount is returned when a debit or credit amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// Account holds an account's credit balance.
type Account struct {
	ID        string
	Email     string
	Balance   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction records one balance change.
type Transaction struct {
	ID          string
	AccountID   string
	Amount      int // positive for credits, negative for debits
	Description string
	CreatedAt   time.Time
}

// Ledger defines the interface for account balance storage.
//
// Debit may take a balance negative; the timer engine's credit
// enforcement is what reacts to that, not the ledger itself.
type Ledger interface {
	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, a *Account) error

	// GetBalance returns the current balance for an account.
	// Returns ErrAccountNotFound if the account does not exist.
	GetBalance(ctx context.Context, accountID string) (int, error)

	// Debit subtracts amount from the balance and records a transaction.
	// Returns the new balance.
	Debit(ctx context.Context, accountID string, amount int, description string) (int, error)

	// Credit adds amount to the balance and records a transaction.
	// Returns the new balance.
	Credit(ctx context.Context, accountID string, amount int, description string) (int, error)

	// Close releases resources.
	Close() error
}
