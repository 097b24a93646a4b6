package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/meterline/internal/money"
)

// Evaluate prices a period quantity under the model. Consumption order is
// fixed per variant: free units first, then prepaid included units, then
// overage. The amount is exact decimal, rounded half-even to the currency's
// minor units at the end.
func Evaluate(m Model, quantity int64, currency string) (Breakdown, error) {
	if err := m.Validate(); err != nil {
		return Breakdown{}, err
	}
	if quantity < 0 {
		return Breakdown{}, fmt.Errorf("%w: quantity %d", ErrInvalidUsage, quantity)
	}

	switch m.Kind {
	case ModelFreeTier:
		return evaluateFreeTier(m, quantity)
	case ModelPAYGWithFreeTier:
		return evaluatePAYG(m, quantity, currency)
	case ModelPrepaidWithFreeTier:
		return evaluatePrepaid(m, quantity, currency)
	default:
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnsupportedPricingModel, m.Kind)
	}
}

func evaluateFreeTier(m Model, quantity int64) (Breakdown, error) {
	free := min(quantity, m.FreeUnits)
	remainder := quantity - free

	b := Breakdown{
		Model:            m.Kind,
		Quantity:         quantity,
		FreeUnitsApplied: free,
		BillableUnits:    remainder,
		Amount:           decimal.Zero,
		Slices: []Slice{
			{Kind: SliceFree, Units: free, Rate: decimal.Zero, Amount: decimal.Zero},
		},
	}
	if remainder > 0 {
		// free_tier defines no overage rate. Charging zero would silently
		// waive revenue; charging anything would invent a rate. Report it.
		return b, fmt.Errorf("%w: %d units beyond free allowance of %d",
			ErrPolicyViolation, remainder, m.FreeUnits)
	}
	return b, nil
}

func evaluatePAYG(m Model, quantity int64, currency string) (Breakdown, error) {
	free := min(quantity, m.FreeUnits)
	billable := quantity - free

	amount := decimal.Zero
	if billable > 0 {
		amount = money.Round(decimal.NewFromInt(billable).Mul(m.RatePerUnit), currency)
	}

	return Breakdown{
		Model:            m.Kind,
		Quantity:         quantity,
		FreeUnitsApplied: free,
		BillableUnits:    billable,
		RateUsed:         m.RatePerUnit,
		Amount:           amount,
		Slices: []Slice{
			{Kind: SliceFree, Units: free, Rate: decimal.Zero, Amount: decimal.Zero},
			{Kind: SliceMetered, Units: billable, Rate: m.RatePerUnit, Amount: amount},
		},
	}, nil
}

func evaluatePrepaid(m Model, quantity int64, currency string) (Breakdown, error) {
	remaining := quantity

	free := min(remaining, m.FreeUnits)
	remaining -= free

	prepaid := min(remaining, m.IncludedUnits)
	remaining -= prepaid

	overage := remaining
	amount := decimal.Zero
	if overage > 0 {
		amount = money.Round(decimal.NewFromInt(overage).Mul(m.OverageRate), currency)
	}

	return Breakdown{
		Model:               m.Kind,
		Quantity:            quantity,
		FreeUnitsApplied:    free,
		PrepaidUnitsApplied: prepaid,
		BillableUnits:       overage,
		RateUsed:            m.OverageRate,
		Amount:              amount,
		Slices: []Slice{
			{Kind: SliceFree, Units: free, Rate: decimal.Zero, Amount: decimal.Zero},
			// Prepaid units cost zero here: the upfront payment is settled
			// as a cash receipt, not deducted per unit.
			{Kind: SlicePrepaid, Units: prepaid, Rate: m.RatePerUnit, Amount: decimal.Zero},
			{Kind: SliceOverage, Units: overage, Rate: m.OverageRate, Amount: amount},
		},
	}, nil
}
