// Package stepup implements SMS code verification for high-value
// transactions on the synchronous validation path.
package stepup

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"proxpay/internal/domain"
	"proxpay/internal/phoneverify"
	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/logger"
)

// Service holds short-lived step-up records and delegates code delivery
// and verification to the phone-verification collaborator.
type Service struct {
	mu       sync.Mutex
	pending  map[string]*domain.PendingStepUp
	provider phoneverify.Provider
	ttl      time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func NewService(provider phoneverify.Provider, ttl time.Duration, log logger.Logger) *Service {
	return &Service{
		pending:  make(map[string]*domain.PendingStepUp),
		provider: provider,
		ttl:      ttl,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// newTransactionID returns a high-entropy, URL-safe opaque identifier.
func newTransactionID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Initiate stores a pending step-up record and sends a one-time code to
// the registered phone number. Returns the opaque transaction ID the
// caller must present on confirm.
func (s *Service) Initiate(ctx context.Context, rec domain.PendingStepUp) (string, error) {
	if s.provider == nil {
		return "", pkgerrors.ErrProviderUnavailable
	}

	id, err := newTransactionID()
	if err != nil {
		return "", pkgerrors.Wrap(err, "generate step-up transaction id")
	}

	rec.TransactionID = id
	rec.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.pending[id] = &rec
	s.mu.Unlock()

	if err := s.provider.SendCode(ctx, rec.PhoneNumber); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return "", err
	}

	s.logger.Info("Step-up verification initiated", map[string]interface{}{
		"transaction_id": id,
		"amount":         rec.Amount.String(),
		"merchant_name":  rec.MerchantName,
	})
	return id, nil
}

// Confirm checks the submitted code. On approval the record is consumed
// and returned; a rejected code leaves the record in place so the caller
// can retry until expiry.
func (s *Service) Confirm(ctx context.Context, transactionID, code string) (*domain.PendingStepUp, error) {
	s.mu.Lock()
	rec, ok := s.pending[transactionID]
	if !ok {
		s.mu.Unlock()
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if s.now().UTC().Sub(rec.CreatedAt) > s.ttl {
		delete(s.pending, transactionID)
		s.mu.Unlock()
		return nil, pkgerrors.ErrTransactionExpired
	}
	s.mu.Unlock()

	approved, err := s.provider.CheckCode(ctx, rec.PhoneNumber, code)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, pkgerrors.ErrCodeRejected
	}

	s.mu.Lock()
	delete(s.pending, transactionID)
	s.mu.Unlock()

	s.logger.Info("Step-up verification approved", map[string]interface{}{
		"transaction_id": transactionID,
	})
	return rec, nil
}

// PendingCount reports outstanding step-up records.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
