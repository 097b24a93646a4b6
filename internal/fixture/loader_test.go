package fixture

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/meterline/internal/catalog"
	"github.com/smallbiznis/meterline/internal/pricing"
	recondomain "github.com/smallbiznis/meterline/internal/reconciliation/domain"
)

func TestLoad_Bundle(t *testing.T) {
	bundle, err := Load("testdata")
	require.NoError(t, err)

	assert.Len(t, bundle.Customers, 3)
	assert.Len(t, bundle.Products, 3)
	assert.Len(t, bundle.Contracts, 3)
	assert.Len(t, bundle.Events, 5)
	assert.Len(t, bundle.Receipts, 2)
}

func TestLoadCustomers(t *testing.T) {
	customers, err := LoadCustomers("testdata/customers.json")
	require.NoError(t, err)
	require.Len(t, customers, 3)

	assert.Equal(t, "cust_001", customers[0].ID)
	assert.Equal(t, catalog.TierFree, customers[0].Tier)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), customers[0].CreatedAt)
	assert.Equal(t, catalog.TierPrepaid, customers[2].Tier)
}

// The billing export writes single-product contracts with top-level
// product_id and pricing, and multi-product ones with a components array.
// Both normalize to the same shape.
func TestLoadContracts_NormalizesShorthand(t *testing.T) {
	contracts, err := LoadContracts("testdata/contracts.json")
	require.NoError(t, err)
	require.Len(t, contracts, 3)

	single := contracts[1]
	assert.Equal(t, "cont_002", single.ID)
	require.Len(t, single.Components, 1)
	assert.Equal(t, "prod_001", single.Components[0].ProductID)
	assert.Equal(t, pricing.ModelPAYGWithFreeTier, single.Components[0].Pricing.Kind)
	assert.Equal(t, int64(1_000_000), single.Components[0].Pricing.FreeUnits)
	assert.True(t, decimal.RequireFromString("0.0005").Equal(single.Components[0].Pricing.RatePerUnit))

	multi := contracts[2]
	assert.Equal(t, "cont_003", multi.ID)
	require.Len(t, multi.Components, 3)

	prepaid := multi.Components[0].Pricing
	assert.Equal(t, pricing.ModelPrepaidWithFreeTier, prepaid.Kind)
	assert.Equal(t, int64(5_000_000), prepaid.IncludedUnits)
	assert.True(t, decimal.RequireFromString("1000").Equal(prepaid.UpfrontPayment))
	assert.True(t, decimal.RequireFromString("0.00025").Equal(prepaid.OverageRate))
}

func TestLoadEvents(t *testing.T) {
	events, err := LoadEvents("testdata/usage_events.json")
	require.NoError(t, err)
	require.Len(t, events, 5)

	evt := events[0]
	assert.Equal(t, "evt_000001", evt.ID)
	assert.Equal(t, "cust_001", evt.CustomerID)
	assert.Equal(t, "prod_002", evt.ProductID)
	assert.Equal(t, int64(32_000), evt.Quantity)
	assert.Equal(t, time.Date(2024, 11, 3, 8, 15, 0, 0, time.UTC), evt.Timestamp)
	assert.Equal(t, "production_api", evt.Metadata["source"])
}

func TestLoadReceipts(t *testing.T) {
	receipts, err := LoadReceipts("testdata/cash_receipts.csv")
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	first := receipts[0]
	assert.Equal(t, "ch_stripe_001", first.ID)
	assert.Equal(t, "cust_002", first.CustomerID)
	assert.True(t, decimal.RequireFromString("2000").Equal(first.Amount))
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC), first.PaymentDate)
	assert.Equal(t, recondomain.ReceiptSucceeded, first.Status)
	assert.Equal(t, "ch_3ABC123XYZ", first.ChargeRef)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope")
	assert.Error(t, err)
}
