package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DuplicateCustomer(t *testing.T) {
	_, err := New([]Customer{
		{ID: "cust_001", Tier: TierFree},
		{ID: "cust_001", Tier: TierPAYG},
	}, nil)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestValidateRefs(t *testing.T) {
	cat, err := New(
		[]Customer{{ID: "cust_001", Tier: TierFree}},
		[]Product{{ID: "prod_001", Unit: "event"}},
	)
	require.NoError(t, err)

	assert.NoError(t, cat.ValidateRefs("cust_001", "prod_001"))
	assert.ErrorIs(t, cat.ValidateRefs("cust_404", "prod_001"), ErrUnknownReference)
	assert.ErrorIs(t, cat.ValidateRefs("cust_001", "prod_404"), ErrUnknownReference)

	_, ok := cat.Product("prod_001")
	assert.True(t, ok)
	_, ok = cat.Customer("cust_404")
	assert.False(t, ok)
}
