// Package registry holds the in-memory device, card and session registries.
// All registries are process-local and lost on restart.
package registry

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"proxpay/internal/domain"
	pkgerrors "proxpay/pkg/errors"
)

// DeriveSharedSecret produces the deterministic demo secret bound to every
// registration: base64(SHA-256(seed)). The mobile client derives the same
// value, which is what makes the keyed-hash signature check line up. The
// secret is intentionally not derived from the submitted public key.
func DeriveSharedSecret(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// DefaultSecretSeed matches the seed baked into the demo mobile client.
const DefaultSecretSeed = "demo_seed_for_consistent_keys"

// DeviceRegistry maps card tokens to registered device keys.
type DeviceRegistry struct {
	mu           sync.RWMutex
	devices      map[string]*domain.DeviceRegistration
	sharedSecret string
}

func NewDeviceRegistry(sharedSecret string) *DeviceRegistry {
	return &DeviceRegistry{
		devices:      make(map[string]*domain.DeviceRegistration),
		sharedSecret: sharedSecret,
	}
}

// Register stores (or overwrites) a device registration after the
// attestation has been checked by the caller.
func (r *DeviceRegistry) Register(cardToken, publicKey string) *domain.DeviceRegistration {
	reg := &domain.DeviceRegistration{
		CardToken:    cardToken,
		PublicKey:    publicKey,
		SharedSecret: r.sharedSecret,
		RegisteredAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.devices[cardToken] = reg
	r.mu.Unlock()

	return reg
}

// Lookup returns the registration for a card token.
func (r *DeviceRegistry) Lookup(cardToken string) (*domain.DeviceRegistration, error) {
	r.mu.RLock()
	reg, ok := r.devices[cardToken]
	r.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.ErrDeviceNotRegistered
	}
	return reg, nil
}
