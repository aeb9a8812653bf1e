// Package transaction orchestrates the end-to-end authorization flow for a
// POS transaction: proof request, proof verification, confirmation
// escalation and final notification.
package transaction

import (
	"context"
	"time"

	"proxpay/internal/domain"
	"proxpay/internal/registry"
	"proxpay/internal/store"
	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/logger"

	"github.com/shopspring/decimal"
)

// Verifier validates a submitted location proof against a POS location.
type Verifier interface {
	Verify(p *domain.LocationProof, posLocation domain.Location, amount decimal.Decimal) domain.ValidationResult
}

// Sessions resolves the active device channel for a card token.
type Sessions interface {
	Lookup(cardToken string) (registry.Channel, error)
}

// Broadcaster pushes an event to a logical room. Fire-and-forget; the
// coordinator never blocks on delivery.
type Broadcaster interface {
	Publish(room, event string, payload interface{})
}

// ProofRequest is a POS-originated request to authorize a transaction.
type ProofRequest struct {
	CardToken        string          `json:"card_token" validate:"required"`
	TransactionID    string          `json:"transaction_id" validate:"required"`
	TransactionNonce string          `json:"transaction_nonce" validate:"required"`
	POSLocation      domain.Location `json:"pos_location"`
	Amount           decimal.Decimal `json:"amount"`
	MerchantName     string          `json:"merchant_name"`
}

// Coordinator drives each transaction through its state machine:
// pending -> pending_confirmation -> completed, or pending -> completed.
type Coordinator struct {
	sessions  Sessions
	verifier  Verifier
	pending   *store.PendingStore
	history   *store.HistoryStore
	broadcast Broadcaster
	escalator *Escalator
	logger    logger.Logger

	sweepEvery    time.Duration
	pendingMaxAge time.Duration
}

func NewCoordinator(
	sessions Sessions,
	verifier Verifier,
	pending *store.PendingStore,
	history *store.HistoryStore,
	broadcast Broadcaster,
	confirmationTimeout time.Duration,
	log logger.Logger,
) *Coordinator {
	c := &Coordinator{
		sessions:  sessions,
		verifier:  verifier,
		pending:   pending,
		history:   history,
		broadcast: broadcast,
		logger:    log,
	}
	c.escalator = NewEscalator(confirmationTimeout, c.expireConfirmation)
	return c
}

// RequestProof validates the request, records the pending transaction and
// pushes a proof request to the device's channel.
func (c *Coordinator) RequestProof(req *ProofRequest) error {
	ch, err := c.sessions.Lookup(req.CardToken)
	if err != nil {
		c.logger.Warn("Proof request for disconnected device", map[string]interface{}{
			"card_token":     req.CardToken,
			"transaction_id": req.TransactionID,
		})
		return err
	}

	tx := &domain.PendingTransaction{
		TransactionID:    req.TransactionID,
		CardToken:        req.CardToken,
		TransactionNonce: req.TransactionNonce,
		POSLocation:      req.POSLocation,
		Amount:           req.Amount,
		MerchantName:     req.MerchantName,
		CreatedAt:        time.Now().UTC(),
	}
	if err := c.pending.Create(tx); err != nil {
		return err
	}

	ch.Send("location_proof_request", map[string]interface{}{
		"transaction_id":    req.TransactionID,
		"transaction_nonce": req.TransactionNonce,
		"pos_location":      req.POSLocation,
		"amount":            req.Amount,
		"merchant_name":     req.MerchantName,
	})

	c.logger.Info("Location proof requested", map[string]interface{}{
		"transaction_id": req.TransactionID,
		"card_token":     req.CardToken,
	})
	return nil
}

// SubmitProof verifies the device's proof and either finalizes the
// transaction or escalates it to user confirmation.
func (c *Coordinator) SubmitProof(transactionID string, p *domain.LocationProof) error {
	tx, err := c.pending.Get(transactionID)
	if err != nil {
		return err
	}

	result := c.verifier.Verify(p, tx.POSLocation, tx.Amount)

	if result.Decision == domain.DecisionConfirmRequired {
		if _, err := c.pending.BeginConfirmation(transactionID, result); err != nil {
			return err
		}

		c.broadcast.Publish(registry.CardRoom(tx.CardToken), "confirmation_request", map[string]interface{}{
			"transaction_id":  transactionID,
			"amount":          tx.Amount,
			"merchant_name":   tx.MerchantName,
			"distance_meters": result.DistanceMeters,
			"reason":          result.Reason,
		})
		c.escalator.Schedule(transactionID)

		c.logger.Info("Confirmation requested", map[string]interface{}{
			"transaction_id": transactionID,
			"distance_m":     result.DistanceMeters,
		})
		return nil
	}

	return c.finalize(transactionID, domain.StatusPending, result)
}

// SubmitConfirmation applies an explicit user confirm/deny to a
// transaction awaiting confirmation, preserving the previously computed
// distance.
func (c *Coordinator) SubmitConfirmation(transactionID string, confirmed bool) error {
	tx, err := c.pending.Get(transactionID)
	if err != nil {
		return err
	}
	if tx.Status != domain.StatusPendingConfirmation {
		return pkgerrors.ErrNotAwaitingConfirmation
	}

	var distance float64
	if tx.Result != nil {
		distance = tx.Result.DistanceMeters
	}

	result := domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionDeny,
		Reason:         "User denied transaction",
		DistanceMeters: distance,
	}
	if confirmed {
		result.Decision = domain.DecisionAccept
		result.Reason = "User confirmed transaction"
	}

	if err := c.finalize(transactionID, domain.StatusPendingConfirmation, result); err != nil {
		return err
	}
	c.escalator.Cancel(transactionID)
	return nil
}

// History returns a card's completed transactions, most recent first.
func (c *Coordinator) History(cardToken string, limit int) []domain.CompletedTransaction {
	return c.history.ListByCard(cardToken, limit)
}

// expireConfirmation is the timer path: auto-deny a transaction still in
// pending_confirmation. Losing the race to an explicit confirmation is a
// no-op.
func (c *Coordinator) expireConfirmation(transactionID string) {
	tx, err := c.pending.Get(transactionID)
	if err != nil {
		return
	}

	var distance float64
	if tx.Result != nil {
		distance = tx.Result.DistanceMeters
	}

	result := domain.ValidationResult{
		Success:        true,
		Decision:       domain.DecisionDeny,
		Reason:         "Confirmation timeout - user did not respond",
		DistanceMeters: distance,
	}

	if err := c.finalize(transactionID, domain.StatusPendingConfirmation, result); err != nil {
		return
	}

	c.logger.Info("Confirmation timed out", map[string]interface{}{
		"transaction_id": transactionID,
	})
}

// finalize records the terminal transition atomically, archives the
// transaction and notifies the POS and device rooms.
func (c *Coordinator) finalize(transactionID string, from domain.TransactionStatus, result domain.ValidationResult) error {
	completed, err := c.pending.Finalize(transactionID, from, result)
	if err != nil {
		return err
	}

	c.history.Append(completed)

	c.broadcast.Publish(registry.POSRoom(transactionID), "transaction_result", map[string]interface{}{
		"transaction_id": transactionID,
		"result":         result,
	})
	c.broadcast.Publish(registry.CardRoom(completed.CardToken), "transaction_completed", map[string]interface{}{
		"transaction_id": transactionID,
		"card_token":     completed.CardToken,
		"transaction":    completed,
	})

	c.logger.Info("Transaction finalized", map[string]interface{}{
		"transaction_id": transactionID,
		"decision":       result.Decision,
		"reason":         result.Reason,
	})
	return nil
}

// StartSweeper reaps orphaned pending transactions whose device never
// responded. Bounded retention hardening; transactions awaiting
// confirmation are owned by the escalator.
func (c *Coordinator) StartSweeper(ctx context.Context, every, maxAge time.Duration) {
	c.sweepEvery = every
	c.pendingMaxAge = maxAge

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if reaped := c.pending.SweepStale(maxAge, time.Now().UTC()); len(reaped) > 0 {
					c.logger.Warn("Reaped orphaned pending transactions", map[string]interface{}{
						"count":           len(reaped),
						"transaction_ids": reaped,
					})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
