package registry

import (
	"fmt"
	"sync"

	pkgerrors "proxpay/pkg/errors"
)

// Channel is an active realtime connection capable of receiving pushed
// events and joining broadcast rooms. Pushes are fire-and-forget.
type Channel interface {
	ID() string
	Send(event string, payload interface{})
	Join(room string)
}

// CardRoom names the broadcast group scoped to a card token, so direct
// requests and broadcast notifications reach the same device.
func CardRoom(cardToken string) string {
	return fmt.Sprintf("card_%s", cardToken)
}

// POSRoom names the broadcast group a POS client joins to receive the
// result for a specific transaction.
func POSRoom(transactionID string) string {
	return fmt.Sprintf("pos_%s", transactionID)
}

// SessionRegistry maps card tokens to the active device channel. At most
// one channel per card token; a new registration replaces the previous one.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Channel
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Channel)}
}

// Register binds a channel to a card token and joins the card's broadcast
// room. The caller must have verified the device registration first.
func (r *SessionRegistry) Register(cardToken string, ch Channel) {
	r.mu.Lock()
	r.sessions[cardToken] = ch
	r.mu.Unlock()

	ch.Join(CardRoom(cardToken))
}

// Lookup returns the active channel for a card token.
func (r *SessionRegistry) Lookup(cardToken string) (Channel, error) {
	r.mu.RLock()
	ch, ok := r.sessions[cardToken]
	r.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.ErrDeviceNotConnected
	}
	return ch, nil
}

// UnregisterByChannel removes every session bound to the given channel.
// Called on disconnect.
func (r *SessionRegistry) UnregisterByChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, bound := range r.sessions {
		if bound.ID() == ch.ID() {
			delete(r.sessions, token)
		}
	}
}

// ActiveTokens lists card tokens with a live session. Used for logging.
func (r *SessionRegistry) ActiveTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0, len(r.sessions))
	for token := range r.sessions {
		tokens = append(tokens, token)
	}
	return tokens
}
