package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger implements Ledger using an in-memory map. It is intended
// for tests and single-process development setups.
type MemoryLedger struct {
	mu           sync.RWMutex
	accounts     map[string]*Account
	transactions []Transaction
}

// NewMemoryLedger creates a new in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[string]*Account),
	}
}

// CreateAccount persists a new account.
func (l *MemoryLedger) CreateAccount(_ context.Context, a *Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *a
	l.accounts[cp.ID] = &cp
	return nil
}

// GetBalance returns the current balance for an account.
func (l *MemoryLedger) GetBalance(_ context.Context, accountID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return a.Balance, nil
}

// Debit subtracts amount from the balance and records a transaction.
func (l *MemoryLedger) Debit(ctx context.Context, accountID string, amount int, description string) (int, error) {
	return l.apply(ctx, accountID, -amount, amount, description)
}

// Credit adds amount to the balance and records a transaction.
func (l *MemoryLedger) Credit(ctx context.Context, accountID string, amount int, description string) (int, error) {
	return l.apply(ctx, accountID, amount, amount, description)
}

func (l *MemoryLedger) apply(_ context.Context, accountID string, delta, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}

	now := time.Now()
	a.Balance += delta
	a.UpdatedAt = now
	l.transactions = append(l.transactions, Transaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      delta,
		Description: description,
		CreatedAt:   now,
	})
	return a.Balance, nil
}

// SetBalance overwrites an account's balance directly. Test helper.
func (l *MemoryLedger) SetBalance(accountID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[accountID]
	if !ok {
		a = &Account{ID: accountID}
		l.accounts[accountID] = a
	}
	a.Balance = balance
}

// Transactions returns a copy of all recorded transactions.
func (l *MemoryLedger) Transactions() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Close releases resources.
func (*MemoryLedger) Close() error {
	return nil
}

// Verify interface compliance.
var _ Ledger = (*MemoryLedger)(nil)
