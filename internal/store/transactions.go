// Package store holds the in-memory transaction state: live pending
// transactions and the per-card completed history. Both are shared mutable
// state accessed concurrently; every status transition happens under the
// store lock as an atomic check-and-set so a transaction can never be
// finalized twice.
package store

import (
	"sort"
	"sync"
	"time"

	"proxpay/internal/domain"
	pkgerrors "proxpay/pkg/errors"
)

// PendingStore tracks live transactions keyed by transaction ID.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]*domain.PendingTransaction
}

func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[string]*domain.PendingTransaction)}
}

// Create inserts a new pending transaction. A transaction ID maps to at
// most one live record at a time.
func (s *PendingStore) Create(tx *domain.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[tx.TransactionID]; exists {
		return pkgerrors.ErrAlreadyFinalized
	}

	tx.Status = domain.StatusPending
	s.pending[tx.TransactionID] = tx
	return nil
}

// Get returns a snapshot of a live transaction.
func (s *PendingStore) Get(transactionID string) (domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.pending[transactionID]
	if !ok {
		return domain.PendingTransaction{}, pkgerrors.ErrTransactionNotFound
	}
	return *tx, nil
}

// BeginConfirmation transitions pending -> pending_confirmation, recording
// the verification result that triggered the escalation.
func (s *PendingStore) BeginConfirmation(transactionID string, result domain.ValidationResult) (domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.pending[transactionID]
	if !ok {
		return domain.PendingTransaction{}, pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != domain.StatusPending {
		return domain.PendingTransaction{}, pkgerrors.ErrAlreadyFinalized
	}

	tx.Status = domain.StatusPendingConfirmation
	r := result
	tx.Result = &r
	return *tx, nil
}

// Finalize atomically transitions a transaction from the expected status to
// completed, removes it from the live set and returns the immutable
// snapshot. A caller observing a different status loses the race: a late
// confirmation after a timeout auto-deny is rejected here.
func (s *PendingStore) Finalize(transactionID string, from domain.TransactionStatus, result domain.ValidationResult) (domain.CompletedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.pending[transactionID]
	if !ok {
		return domain.CompletedTransaction{}, pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != from {
		if tx.Status == domain.StatusPendingConfirmation {
			return domain.CompletedTransaction{}, pkgerrors.ErrNotAwaitingConfirmation
		}
		return domain.CompletedTransaction{}, pkgerrors.ErrAlreadyFinalized
	}

	tx.Status = domain.StatusCompleted
	r := result
	tx.Result = &r
	delete(s.pending, transactionID)

	return domain.CompletedTransaction{
		PendingTransaction: *tx,
		CompletedAt:        time.Now().UTC(),
	}, nil
}

// SweepStale removes pending transactions older than maxAge that never
// received a proof. Transactions awaiting confirmation are left to the
// escalator's own timeout. Returns the reaped transaction IDs.
func (s *PendingStore) SweepStale(maxAge time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	for id, tx := range s.pending {
		if tx.Status == domain.StatusPending && now.Sub(tx.CreatedAt) > maxAge {
			delete(s.pending, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// Len reports the number of live transactions.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HistoryStore is the append-only per-card completed transaction history.
type HistoryStore struct {
	mu      sync.RWMutex
	history map[string][]domain.CompletedTransaction
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{history: make(map[string][]domain.CompletedTransaction)}
}

// Append records a completed transaction under its card token.
func (s *HistoryStore) Append(tx domain.CompletedTransaction) {
	s.mu.Lock()
	s.history[tx.CardToken] = append(s.history[tx.CardToken], tx)
	s.mu.Unlock()
}

// ListByCard returns a card's completed transactions, most recent first,
// truncated to limit.
func (s *HistoryStore) ListByCard(cardToken string, limit int) []domain.CompletedTransaction {
	s.mu.RLock()
	entries := s.history[cardToken]
	out := make([]domain.CompletedTransaction, len(entries))
	copy(out, entries)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
