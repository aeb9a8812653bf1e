package store

import (
	"sync"
	"testing"
	"time"

	"proxpay/internal/domain"
	pkgerrors "proxpay/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTx(id string) *domain.PendingTransaction {
	return &domain.PendingTransaction{
		TransactionID:    id,
		CardToken:        "4532-1234-5678-9012",
		TransactionNonce: "nonce123",
		Amount:           decimal.NewFromInt(50),
		MerchantName:     "Coffee Shop",
		CreatedAt:        time.Now().UTC(),
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	s := NewPendingStore()

	require.NoError(t, s.Create(newTx("tx_1")))
	assert.Error(t, s.Create(newTx("tx_1")))
	assert.Equal(t, 1, s.Len())
}

func TestFinalize_FromPending(t *testing.T) {
	s := NewPendingStore()
	require.NoError(t, s.Create(newTx("tx_1")))

	result := domain.ValidationResult{Success: true, Decision: domain.DecisionAccept, Reason: "Co-located low-value transaction"}
	completed, err := s.Finalize("tx_1", domain.StatusPending, result)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, domain.DecisionAccept, completed.Result.Decision)
	assert.False(t, completed.CompletedAt.IsZero())
	assert.Equal(t, 0, s.Len())

	_, err = s.Get("tx_1")
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
}

func TestFinalize_RejectsWrongStatus(t *testing.T) {
	s := NewPendingStore()
	require.NoError(t, s.Create(newTx("tx_1")))

	_, err := s.BeginConfirmation("tx_1", domain.ValidationResult{Decision: domain.DecisionConfirmRequired})
	require.NoError(t, err)

	// A proof submission racing the escalation must not finalize from
	// the pending state anymore.
	_, err = s.Finalize("tx_1", domain.StatusPending, domain.ValidationResult{Decision: domain.DecisionAccept})
	assert.Error(t, err)
}

func TestFinalize_ExactlyOnceUnderRace(t *testing.T) {
	s := NewPendingStore()
	require.NoError(t, s.Create(newTx("tx_1")))
	_, err := s.BeginConfirmation("tx_1", domain.ValidationResult{Decision: domain.DecisionConfirmRequired})
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan domain.Decision, racers)

	for i := 0; i < racers; i++ {
		decision := domain.DecisionAccept
		if i%2 == 0 {
			decision = domain.DecisionDeny
		}
		wg.Add(1)
		go func(d domain.Decision) {
			defer wg.Done()
			if _, err := s.Finalize("tx_1", domain.StatusPendingConfirmation, domain.ValidationResult{Decision: d}); err == nil {
				wins <- d
			}
		}(decision)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one terminal transition must be recorded")
}

func TestBeginConfirmation_NotFound(t *testing.T) {
	s := NewPendingStore()
	_, err := s.BeginConfirmation("missing", domain.ValidationResult{})
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
}

func TestSweepStale_OnlyPending(t *testing.T) {
	s := NewPendingStore()

	old := newTx("tx_old")
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(old))

	waiting := newTx("tx_waiting")
	waiting.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(waiting))
	_, err := s.BeginConfirmation("tx_waiting", domain.ValidationResult{Decision: domain.DecisionConfirmRequired})
	require.NoError(t, err)

	fresh := newTx("tx_fresh")
	require.NoError(t, s.Create(fresh))

	reaped := s.SweepStale(10*time.Minute, time.Now())

	assert.Equal(t, []string{"tx_old"}, reaped)
	assert.Equal(t, 2, s.Len())
}

func TestHistory_MostRecentFirstAndLimit(t *testing.T) {
	h := NewHistoryStore()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		tx := newTx(string(rune('a' + i)))
		tx.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		h.Append(domain.CompletedTransaction{PendingTransaction: *tx, CompletedAt: tx.CreatedAt})
	}

	list := h.ListByCard("4532-1234-5678-9012", 3)

	require.Len(t, list, 3)
	assert.Equal(t, "e", list[0].TransactionID)
	assert.Equal(t, "d", list[1].TransactionID)
	assert.Equal(t, "c", list[2].TransactionID)
}

func TestHistory_UnknownCardIsEmpty(t *testing.T) {
	h := NewHistoryStore()
	assert.Empty(t, h.ListByCard("unknown", 50))
}
