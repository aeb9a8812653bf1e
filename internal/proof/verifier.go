// Package proof validates signed location proofs submitted by mobile
// devices and turns them into policy decisions.
package proof

import (
	"crypto/hmac"
	"math"
	"time"

	"proxpay/internal/domain"

	"github.com/shopspring/decimal"
)

// MetersPerMile converts the geodesy collaborator's miles to meters.
const MetersPerMile = 1609.34

// DeviceLookup resolves a card token to its registered device keys.
type DeviceLookup interface {
	Lookup(cardToken string) (*domain.DeviceRegistration, error)
}

// Distancer is the external geodesy collaborator.
type Distancer interface {
	Miles(a, b domain.Location) float64
}

// DecisionPolicy maps (distance, amount) to a decision.
type DecisionPolicy interface {
	Decide(distanceMeters float64, amount decimal.Decimal) (domain.Decision, string)
}

// Verifier checks attestation, signature and freshness of a proof, then
// applies the decision policy to the computed distance. Every failure
// branch produces a DENY-shaped result rather than an error: verification
// fails closed and never crashes a request.
type Verifier struct {
	devices DeviceLookup
	geo     Distancer
	policy  DecisionPolicy
	maxAge  time.Duration
	now     func() time.Time
}

func NewVerifier(devices DeviceLookup, geo Distancer, policy DecisionPolicy, maxAge time.Duration) *Verifier {
	return &Verifier{
		devices: devices,
		geo:     geo,
		policy:  policy,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// WithClock overrides the verifier's clock. Used in tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func deny(reason string) domain.ValidationResult {
	return domain.ValidationResult{Success: false, Decision: domain.DecisionDeny, Reason: reason}
}

// Verify runs the checks in order, short-circuiting on the first failure:
// field completeness, registration lookup, attestation, signature,
// freshness, distance, policy.
func (v *Verifier) Verify(p *domain.LocationProof, posLocation domain.Location, amount decimal.Decimal) domain.ValidationResult {
	if p == nil ||
		p.CardToken == "" || p.TransactionNonce == "" || p.TransactionID == "" ||
		p.Timestamp == "" || p.Attestation == "" || p.Signature == "" ||
		p.Location == nil {
		return deny("Missing required fields")
	}

	reg, err := v.devices.Lookup(p.CardToken)
	if err != nil {
		return deny("Device not registered")
	}
	if reg.SharedSecret == "" || reg.PublicKey == "" {
		return deny("Device keys not available")
	}

	if !ValidAttestation(p.Attestation) {
		return deny("Invalid device attestation")
	}

	expected, err := Sign(p, reg.SharedSecret)
	if err != nil {
		return deny("Invalid digital signature")
	}
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return deny("Invalid digital signature")
	}

	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return deny("Invalid timestamp format")
	}
	if v.now().Sub(ts) > v.maxAge {
		return deny("Proof timestamp too old")
	}

	deviceCoords := p.Location.Round8()
	posCoords := posLocation.Round8()
	distanceMeters := v.geo.Miles(deviceCoords, posCoords) * MetersPerMile

	decision, reason := v.policy.Decide(distanceMeters, amount)

	return domain.ValidationResult{
		Success:        true,
		Decision:       decision,
		Reason:         reason,
		DistanceMeters: round2(distanceMeters),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
