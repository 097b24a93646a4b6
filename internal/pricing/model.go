// Package pricing encodes the per-component pricing models and their
// evaluation. Evaluation is pure: a model plus a period quantity yields a
// breakdown and an exact decimal amount, rounded once at the edge.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ModelKind tags the pricing model variant. The tag values match the
// upstream contract fixtures.
type ModelKind string

const (
	ModelFreeTier            ModelKind = "free_tier"
	ModelPAYGWithFreeTier    ModelKind = "payg_with_free_tier"
	ModelPrepaidWithFreeTier ModelKind = "prepaid_with_free_tier"
)

// Model is a tagged variant. Only the fields relevant to the Kind are
// meaningful; Validate enforces that per variant.
type Model struct {
	Kind ModelKind

	// FreeUnits applies to every variant: usage up to this count costs zero.
	FreeUnits int64

	// RatePerUnit is the linear rate for payg_with_free_tier, and the
	// discounted (already prepaid) rate for prepaid_with_free_tier where it
	// is informational only; prepaid units are settled via UpfrontPayment.
	RatePerUnit decimal.Decimal

	// Prepaid bucket, prepaid_with_free_tier only.
	UpfrontPayment decimal.Decimal
	IncludedUnits  int64
	OverageRate    decimal.Decimal
}

var (
	ErrInvalidUsage            = errors.New("invalid_usage")
	ErrUnsupportedPricingModel = errors.New("unsupported_pricing_model")

	// ErrPolicyViolation marks usage beyond a free_tier allowance. That
	// variant defines no overage rate, so the remainder can be neither billed
	// nor waived; it is surfaced for human resolution.
	ErrPolicyViolation = errors.New("policy_violation")

	ErrInvalidModel = errors.New("invalid_pricing_model")
)

// Validate rejects structurally broken models. A broken model is a contract
// configuration defect and fatal at load time, not a per-key rating error.
func (m Model) Validate() error {
	if m.FreeUnits < 0 {
		return fmt.Errorf("%w: negative free_units", ErrInvalidModel)
	}
	switch m.Kind {
	case ModelFreeTier:
		return nil
	case ModelPAYGWithFreeTier:
		if m.RatePerUnit.IsNegative() {
			return fmt.Errorf("%w: negative rate_per_unit", ErrInvalidModel)
		}
		return nil
	case ModelPrepaidWithFreeTier:
		if m.IncludedUnits < 0 {
			return fmt.Errorf("%w: negative included_units", ErrInvalidModel)
		}
		if m.RatePerUnit.IsNegative() || m.OverageRate.IsNegative() {
			return fmt.Errorf("%w: negative rate", ErrInvalidModel)
		}
		if m.UpfrontPayment.IsNegative() {
			return fmt.Errorf("%w: negative upfront_payment", ErrInvalidModel)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedPricingModel, m.Kind)
	}
}

// SliceKind labels one consumption slice of a breakdown, in depletion order.
type SliceKind string

const (
	SliceFree    SliceKind = "free"
	SlicePrepaid SliceKind = "prepaid"
	SliceOverage SliceKind = "overage"
	SliceMetered SliceKind = "metered"
)

// Slice records how many units a bucket absorbed and what they cost.
type Slice struct {
	Kind   SliceKind       `json:"kind"`
	Units  int64           `json:"units"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown is the auditable result of evaluating a model against a period
// quantity. Amount is already rounded to the currency's minor units.
type Breakdown struct {
	Model               ModelKind       `json:"model"`
	Quantity            int64           `json:"quantity"`
	FreeUnitsApplied    int64           `json:"free_units_applied"`
	PrepaidUnitsApplied int64           `json:"prepaid_units_applied"`
	BillableUnits       int64           `json:"billable_units"`
	RateUsed            decimal.Decimal `json:"rate_used"`
	Amount              decimal.Decimal `json:"amount"`
	Slices              []Slice         `json:"slices"`
}
