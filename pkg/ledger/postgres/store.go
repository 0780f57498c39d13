// Package postgres provides PostgreSQL storage for account balances.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mockstage/interview-platform/pkg/ledger"
)

// Store implements ledger.Ledger using PostgreSQL. Balance changes and
// their transaction rows are written in a single database transaction.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	query := `
		INSERT INTO accounts (id, email, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Email, a.Balance, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetBalance returns the current balance for an account.
func (s *Store) GetBalance(ctx context.Context, accountID string) (int, error) {
	query := `SELECT balance FROM accounts WHERE id = $1`

	var balance int
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount from the balance and records a transaction.
func (s *Store) Debit(ctx context.Context, accountID string, amount int, description string) (int, error) {
	return s.apply(ctx, accountID, -amount, amount, description)
}

// Credit adds amount to the balance and records a transaction.
func (s *Store) Credit(ctx context.Context, accountID string, amount int, description string) (int, error) {
	return s.apply(ctx, accountID, amount, amount, description)
}

func (s *Store) apply(ctx context.Context, accountID string, delta, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`, accountID, delta).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("updating balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, account_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), accountID, delta, description, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return balance, nil
}

// Close releases resources. The underlying *sql.DB is owned by the caller.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ ledger.Ledger = (*Store)(nil)
