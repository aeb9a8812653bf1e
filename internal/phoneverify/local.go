package phoneverify

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"sync"

	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/logger"

	"github.com/pquerna/otp/hotp"
)

// LocalProvider generates HOTP codes in-process and logs them instead of
// sending SMS. Development stand-in for the real delivery provider; the
// step-up flow is identical either way.
type LocalProvider struct {
	mu       sync.Mutex
	seed     string
	counters map[string]uint64
	logger   logger.Logger
}

func NewLocalProvider(seed string, log logger.Logger) *LocalProvider {
	if seed == "" {
		seed = "proxpay_dev_verification_seed"
	}
	return &LocalProvider{
		seed:     seed,
		counters: make(map[string]uint64),
		logger:   log,
	}
}

// secretFor derives a per-phone base32 HOTP secret from the seed.
func (p *LocalProvider) secretFor(phoneNumber string) string {
	sum := sha256.Sum256([]byte(p.seed + ":" + phoneNumber))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:20])
}

// SendCode generates the next code for the phone number and logs it.
func (p *LocalProvider) SendCode(ctx context.Context, phoneNumber string) error {
	p.mu.Lock()
	p.counters[phoneNumber]++
	counter := p.counters[phoneNumber]
	p.mu.Unlock()

	code, err := hotp.GenerateCode(p.secretFor(phoneNumber), counter)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrProviderError, err.Error())
	}

	p.logger.Info("Verification code issued (local provider)", map[string]interface{}{
		"phone_number": phoneNumber,
		"code":         code,
	})
	return nil
}

// CheckCode validates a submitted code against the outstanding counter.
// The code stays valid until the next SendCode for the same number.
func (p *LocalProvider) CheckCode(ctx context.Context, phoneNumber, code string) (bool, error) {
	p.mu.Lock()
	counter, ok := p.counters[phoneNumber]
	p.mu.Unlock()

	if !ok {
		return false, nil
	}

	return hotp.Validate(code, counter, p.secretFor(phoneNumber)), nil
}
