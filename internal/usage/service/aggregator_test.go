package service

import (
	"context"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/meterline/internal/catalog"
	"github.com/smallbiznis/meterline/internal/period"
	usagedomain "github.com/smallbiznis/meterline/internal/usage/domain"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(AggregatorParam{Log: zap.NewNop()})
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.Customer{
			{ID: "cust_001", Tier: catalog.TierFree},
			{ID: "cust_002", Tier: catalog.TierPAYG},
		},
		[]catalog.Product{
			{ID: "prod_001", Unit: "event"},
			{ID: "prod_002", Unit: "session"},
		},
	)
	require.NoError(t, err)
	return cat
}

func evt(id, customer, product string, qty int64, ts time.Time) usagedomain.Event {
	return usagedomain.Event{
		ID:         id,
		CustomerID: customer,
		ProductID:  product,
		Quantity:   qty,
		Timestamp:  ts,
	}
}

func TestFold_SumsPerKey(t *testing.T) {
	agg := newTestAggregator()
	cat := testCatalog(t)
	nov := time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC)
	dec := time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC)

	set, rejections, err := agg.Fold(context.Background(), cat, []usagedomain.Event{
		evt("evt_1", "cust_001", "prod_001", 100, nov),
		evt("evt_2", "cust_001", "prod_001", 250, nov.Add(time.Hour)),
		evt("evt_3", "cust_001", "prod_002", 40, nov),
		evt("evt_4", "cust_001", "prod_001", 7, dec),
	}, period.Monthly)
	require.NoError(t, err)
	assert.Empty(t, rejections)
	require.Len(t, set, 3)

	sorted := set.Sorted()
	assert.Equal(t, int64(350), sorted[0].Quantity) // cust_001/prod_001/2024-11
	assert.Equal(t, 2, sorted[0].EventCount)
	assert.Equal(t, "2024-11", sorted[0].Key.Period.Key())
	assert.Equal(t, int64(7), sorted[1].Quantity) // cust_001/prod_001/2024-12
	assert.Equal(t, int64(40), sorted[2].Quantity)
}

func TestFold_RejectsDuplicateEventID(t *testing.T) {
	agg := newTestAggregator()
	cat := testCatalog(t)
	ts := time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC)

	set, rejections, err := agg.Fold(context.Background(), cat, []usagedomain.Event{
		evt("evt_1", "cust_001", "prod_001", 100, ts),
		evt("evt_1", "cust_001", "prod_001", 100, ts), // replayed upstream write
	}, period.Monthly)
	require.NoError(t, err)

	require.Len(t, rejections, 1)
	assert.ErrorIs(t, rejections[0].Err, usagedomain.ErrDuplicateEventID)
	assert.Equal(t, "evt_1", rejections[0].EventID)

	// The duplicate must not change the aggregate.
	sorted := set.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(100), sorted[0].Quantity)
	assert.Equal(t, 1, sorted[0].EventCount)
}

func TestFold_RejectsBadEvents(t *testing.T) {
	agg := newTestAggregator()
	cat := testCatalog(t)
	ts := time.Date(2024, 11, 10, 12, 0, 0, 0, time.UTC)

	set, rejections, err := agg.Fold(context.Background(), cat, []usagedomain.Event{
		evt("", "cust_001", "prod_001", 10, ts),
		evt("evt_2", "cust_001", "prod_001", -5, ts),
		evt("evt_3", "cust_404", "prod_001", 10, ts),
		evt("evt_4", "cust_001", "prod_404", 10, ts),
		evt("evt_5", "cust_001", "prod_001", 10, time.Time{}),
		evt("evt_6", "cust_001", "prod_001", 10, ts),
	}, period.Monthly)
	require.NoError(t, err)

	require.Len(t, rejections, 5)
	assert.ErrorIs(t, rejections[0].Err, usagedomain.ErrMissingEventID)
	assert.ErrorIs(t, rejections[1].Err, usagedomain.ErrInvalidUsage)
	assert.ErrorIs(t, rejections[2].Err, catalog.ErrUnknownReference)
	assert.ErrorIs(t, rejections[3].Err, catalog.ErrUnknownReference)
	assert.ErrorIs(t, rejections[4].Err, usagedomain.ErrInvalidUsage)

	sorted := set.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(10), sorted[0].Quantity)
}

// Aggregation is commutative: shuffling input order never changes the result.
func TestFold_OrderIndependence(t *testing.T) {
	agg := newTestAggregator()
	cat := testCatalog(t)
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	events := make([]usagedomain.Event, 0, 500)
	for i := 0; i < 500; i++ {
		customer := "cust_001"
		if i%2 == 1 {
			customer = "cust_002"
		}
		product := "prod_001"
		if i%3 == 0 {
			product = "prod_002"
		}
		events = append(events, evt(
			"evt_"+strconv.Itoa(i),
			customer, product,
			int64(i),
			base.Add(time.Duration(i)*time.Hour),
		))
	}

	first, rejections, err := agg.Fold(context.Background(), cat, events, period.Monthly)
	require.NoError(t, err)
	require.Empty(t, rejections)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]usagedomain.Event, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		again, rejections, err := agg.Fold(context.Background(), cat, shuffled, period.Monthly)
		require.NoError(t, err)
		require.Empty(t, rejections)
		assert.Equal(t, first.Sorted(), again.Sorted())
	}
}

func TestFold_DailyGranularity(t *testing.T) {
	agg := newTestAggregator()
	cat := testCatalog(t)

	set, _, err := agg.Fold(context.Background(), cat, []usagedomain.Event{
		evt("evt_1", "cust_001", "prod_001", 5, time.Date(2024, 11, 10, 1, 0, 0, 0, time.UTC)),
		evt("evt_2", "cust_001", "prod_001", 6, time.Date(2024, 11, 10, 23, 0, 0, 0, time.UTC)),
		evt("evt_3", "cust_001", "prod_001", 7, time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC)),
	}, period.Daily)
	require.NoError(t, err)

	sorted := set.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, int64(11), sorted[0].Quantity)
	assert.Equal(t, "2024-11-10", sorted[0].Key.Period.Key())
	assert.Equal(t, int64(7), sorted[1].Quantity)
}

func TestFold_EmptyInput(t *testing.T) {
	agg := newTestAggregator()
	set, rejections, err := agg.Fold(context.Background(), testCatalog(t), nil, period.Monthly)
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.Empty(t, rejections)
}
