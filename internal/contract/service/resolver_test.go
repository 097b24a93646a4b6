package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contractdomain "github.com/smallbiznis/meterline/internal/contract/domain"
	"github.com/smallbiznis/meterline/internal/period"
	"github.com/smallbiznis/meterline/internal/pricing"
)

var (
	yearStart = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	yearEnd   = yearStart.AddDate(1, 0, 0)
	november  = period.Of(yearStart, period.Monthly)
)

func paygModel() pricing.Model {
	return pricing.Model{
		Kind:        pricing.ModelPAYGWithFreeTier,
		FreeUnits:   1_000_000,
		RatePerUnit: decimal.RequireFromString("0.0005"),
	}
}

func contractFor(id, customer string, start, end time.Time, products ...string) contractdomain.Contract {
	c := contractdomain.Contract{
		ID:         id,
		CustomerID: customer,
		Start:      start,
		End:        end,
	}
	for _, p := range products {
		c.Components = append(c.Components, contractdomain.Component{ProductID: p, Pricing: paygModel()})
	}
	return c
}

func TestResolve_SingleCoveringComponent(t *testing.T) {
	r, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd, "prod_001", "prod_002"),
	})
	require.NoError(t, err)

	res, err := r.Resolve("cust_001", "prod_002", november)
	require.NoError(t, err)
	assert.Equal(t, "cont_001", res.Contract.ID)
	assert.Equal(t, "prod_002", res.Component.ProductID)
}

func TestResolve_NoActiveContract(t *testing.T) {
	r, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd, "prod_001"),
	})
	require.NoError(t, err)

	// Right customer, unpriced product.
	_, err = r.Resolve("cust_001", "prod_999", november)
	assert.ErrorIs(t, err, contractdomain.ErrNoActiveContract)

	// Unknown customer.
	_, err = r.Resolve("cust_999", "prod_001", november)
	assert.ErrorIs(t, err, contractdomain.ErrNoActiveContract)

	// Period before contract start.
	_, err = r.Resolve("cust_001", "prod_001", period.Of(yearStart.AddDate(0, -2, 0), period.Monthly))
	assert.ErrorIs(t, err, contractdomain.ErrNoActiveContract)
}

func TestResolve_OverlappingContracts(t *testing.T) {
	r, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd, "prod_001"),
		contractFor("cont_002", "cust_001", yearStart, yearEnd, "prod_001"),
	})
	require.NoError(t, err)

	_, err = r.Resolve("cust_001", "prod_001", november)
	assert.ErrorIs(t, err, contractdomain.ErrOverlappingContracts)
}

func TestResolve_BoundaryMidPeriod(t *testing.T) {
	midNovember := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

	// Contract ends mid-November.
	r, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart.AddDate(0, -6, 0), midNovember, "prod_001"),
	})
	require.NoError(t, err)
	_, err = r.Resolve("cust_001", "prod_001", november)
	assert.ErrorIs(t, err, contractdomain.ErrContractBoundaryMidPeriod)

	// Contract starts mid-November: reported as ambiguity, not NoActiveContract.
	r, err = NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_002", "cust_001", midNovember, yearEnd, "prod_001"),
	})
	require.NoError(t, err)
	_, err = r.Resolve("cust_001", "prod_001", november)
	assert.ErrorIs(t, err, contractdomain.ErrContractBoundaryMidPeriod)
}

func TestResolve_BoundaryOnPeriodEdgeIsFine(t *testing.T) {
	// [Nov 1, Dec 1) exactly spans November; neither edge is inside it.
	decStart := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, decStart, "prod_001"),
	})
	require.NoError(t, err)

	res, err := r.Resolve("cust_001", "prod_001", november)
	require.NoError(t, err)
	assert.Equal(t, "cont_001", res.Contract.ID)

	// December resolves to nothing: the contract ended at the boundary.
	_, err = r.Resolve("cust_001", "prod_001", period.Of(decStart, period.Monthly))
	assert.ErrorIs(t, err, contractdomain.ErrNoActiveContract)
}

func TestNewResolver_StructuralValidation(t *testing.T) {
	// Interval inverted.
	_, err := NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearEnd, yearStart, "prod_001"),
	})
	assert.ErrorIs(t, err, contractdomain.ErrInvalidContract)

	// Same product priced twice within one contract.
	_, err = NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd, "prod_001", "prod_001"),
	})
	assert.ErrorIs(t, err, contractdomain.ErrInvalidContract)

	// No components.
	_, err = NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd),
	})
	assert.ErrorIs(t, err, contractdomain.ErrInvalidContract)

	// Duplicate contract IDs.
	_, err = NewResolver(zap.NewNop(), []contractdomain.Contract{
		contractFor("cont_001", "cust_001", yearStart, yearEnd, "prod_001"),
		contractFor("cont_001", "cust_002", yearStart, yearEnd, "prod_001"),
	})
	assert.ErrorIs(t, err, contractdomain.ErrInvalidContract)

	// Broken pricing model inside a component.
	broken := contractFor("cont_002", "cust_001", yearStart, yearEnd, "prod_001")
	broken.Components[0].Pricing.Kind = "per_seat"
	_, err = NewResolver(zap.NewNop(), []contractdomain.Contract{broken})
	assert.ErrorIs(t, err, pricing.ErrUnsupportedPricingModel)
}
