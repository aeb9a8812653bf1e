package registry

import (
	"sync"

	"proxpay/internal/domain"
	pkgerrors "proxpay/pkg/errors"
)

// CardRegistry maps card numbers to the registered phone location and
// phone number consulted by the synchronous validation path.
type CardRegistry struct {
	mu    sync.RWMutex
	cards map[string]*domain.CardRegistration
}

func NewCardRegistry() *CardRegistry {
	return &CardRegistry{cards: make(map[string]*domain.CardRegistration)}
}

// Register stores (or overwrites) a card registration.
func (r *CardRegistry) Register(cardNumber string, location domain.Location, phoneNumber string) *domain.CardRegistration {
	reg := &domain.CardRegistration{
		CardNumber:  cardNumber,
		Location:    location,
		PhoneNumber: phoneNumber,
	}

	r.mu.Lock()
	r.cards[cardNumber] = reg
	r.mu.Unlock()

	return reg
}

// Lookup returns the registration for a card number.
func (r *CardRegistry) Lookup(cardNumber string) (*domain.CardRegistration, error) {
	r.mu.RLock()
	reg, ok := r.cards[cardNumber]
	r.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.ErrCardNotRegistered
	}
	return reg, nil
}
