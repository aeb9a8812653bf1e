// Package domain defines the core types shared across the service.
package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the outcome of evaluating a location proof against the
// distance/amount policy. POS-facing results always carry one of these
// three values, never a bare error.
type Decision string

const (
	DecisionAccept          Decision = "ACCEPT"
	DecisionDeny            Decision = "DENY"
	DecisionConfirmRequired Decision = "CONFIRM_REQUIRED"
)

// TransactionStatus tracks a transaction through the coordinator state
// machine: pending -> pending_confirmation -> completed, or pending ->
// completed directly.
type TransactionStatus string

const (
	StatusPending             TransactionStatus = "pending"
	StatusPendingConfirmation TransactionStatus = "pending_confirmation"
	StatusCompleted           TransactionStatus = "completed"
)

// Location is a coordinate pair on the proof/channel wire format.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Round8 truncates incidental floating noise while preserving sub-meter
// resolution.
func (l Location) Round8() Location {
	return Location{Lat: round8(l.Lat), Lon: round8(l.Lon)}
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// Coordinates is the synchronous-API coordinate shape.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ToLocation converts the API shape to the internal wire shape.
func (c Coordinates) ToLocation() Location {
	return Location{Lat: c.Latitude, Lon: c.Longitude}
}

// ValidationResult is the outcome of verifying a location proof. Failure
// branches set Success=false and Decision=DENY (fail closed).
type ValidationResult struct {
	Success        bool     `json:"success"`
	Decision       Decision `json:"result"`
	Reason         string   `json:"reason"`
	DistanceMeters float64  `json:"distance_meters"`
}

// ProximityCheck is the registered-location verdict used by the
// synchronous validation path.
type ProximityCheck struct {
	Valid         bool    `json:"valid"`
	DistanceMiles float64 `json:"distance_miles"`
	Reason        string  `json:"reason"`
}

// LocationProof is a signed location assertion produced by a mobile device
// for a specific transaction and nonce.
type LocationProof struct {
	CardToken        string    `json:"card_token"`
	TransactionNonce string    `json:"transaction_nonce"`
	TransactionID    string    `json:"transaction_id"`
	Location         *Location `json:"location"`
	Timestamp        string    `json:"timestamp"`
	Attestation      string    `json:"attestation"`
	Signature        string    `json:"signature"`
}

// DeviceRegistration binds a card token to its device keys. The shared
// secret is provisioned at registration and never rotated.
type DeviceRegistration struct {
	CardToken    string    `json:"card_token"`
	PublicKey    string    `json:"public_key"`
	SharedSecret string    `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CardRegistration maps a card number to the registered phone location and
// phone number used by the synchronous validation path.
type CardRegistration struct {
	CardNumber  string   `json:"card_number"`
	Location    Location `json:"location"`
	PhoneNumber string   `json:"phone_number"`
}

// PendingTransaction is a live transaction awaiting a proof or a user
// confirmation. Mutated in place until completed.
type PendingTransaction struct {
	TransactionID    string            `json:"transaction_id"`
	CardToken        string            `json:"card_token"`
	TransactionNonce string            `json:"transaction_nonce"`
	POSLocation      Location          `json:"pos_location"`
	Amount           decimal.Decimal   `json:"amount"`
	MerchantName     string            `json:"merchant_name"`
	CreatedAt        time.Time         `json:"timestamp"`
	Status           TransactionStatus `json:"status"`
	Result           *ValidationResult `json:"result,omitempty"`
}

// CompletedTransaction is an immutable snapshot appended to the per-card
// history once a transaction reaches a terminal state.
type CompletedTransaction struct {
	PendingTransaction
	CompletedAt time.Time `json:"completed_at"`
}

// PendingStepUp is a short-lived record for a high-value synchronous
// transaction awaiting SMS code verification.
type PendingStepUp struct {
	TransactionID       string          `json:"transaction_id"`
	CardNumber          string          `json:"card_number"`
	Amount              decimal.Decimal `json:"amount"`
	MerchantName        string          `json:"merchant_name"`
	PhoneLocation       Location        `json:"phone_location"`
	TransactionLocation Location        `json:"transaction_location"`
	Check               ProximityCheck  `json:"validation_result"`
	PhoneNumber         string          `json:"phone_number"`
	CreatedAt           time.Time       `json:"created_at"`
}
