// Package policy implements the distance/amount decision policy.
package policy

import (
	"proxpay/internal/domain"
	"proxpay/pkg/config"

	"github.com/shopspring/decimal"
)

// Policy is a pure function of (distance, amount). Thresholds come from
// configuration; the policy is the single source of truth for them.
type Policy struct {
	coLocatedMeters float64
	confirmMeters   float64
	highValueAmount decimal.Decimal
}

func New(cfg config.PolicyConfig) *Policy {
	return &Policy{
		coLocatedMeters: cfg.CoLocatedMeters,
		confirmMeters:   cfg.ConfirmMeters,
		highValueAmount: decimal.NewFromFloat(cfg.HighValueAmount),
	}
}

// Decide maps a verified distance and transaction amount to a decision and
// a human-readable reason.
func (p *Policy) Decide(distanceMeters float64, amount decimal.Decimal) (domain.Decision, string) {
	switch {
	case distanceMeters <= p.coLocatedMeters:
		if amount.GreaterThanOrEqual(p.highValueAmount) {
			return domain.DecisionConfirmRequired, "High-value co-located transaction requires confirmation"
		}
		return domain.DecisionAccept, "Co-located low-value transaction"
	case distanceMeters <= p.confirmMeters:
		return domain.DecisionConfirmRequired, "Location mismatch - confirmation required"
	default:
		return domain.DecisionDeny, "Location too far from phone"
	}
}
