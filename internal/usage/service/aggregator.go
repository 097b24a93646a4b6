package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/meterline/internal/catalog"
	obsmetrics "github.com/smallbiznis/meterline/internal/observability/metrics"
	"github.com/smallbiznis/meterline/internal/period"
	usagedomain "github.com/smallbiznis/meterline/internal/usage/domain"
)

// Aggregator folds raw usage events into per-(customer, product, period)
// totals. The fold is associative and commutative, so shards may run
// concurrently; deduplication happens in a sequential pre-pass keyed by
// event identity, which keeps rejection order stable across runs.
type Aggregator struct {
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	shards  int
}

type AggregatorParam struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewAggregator(p AggregatorParam) *Aggregator {
	return &Aggregator{
		log:     p.Log.Named("usage.aggregator"),
		metrics: p.Metrics,
		shards:  runtime.GOMAXPROCS(0),
	}
}

// Fold partitions events into billing periods and sums quantities per key.
// Events failing validation (missing or duplicate identity, unknown
// references, negative quantity) are rejected individually; the fold never
// aborts because of a bad event. The result depends only on the multiset of
// accepted events, never on input order.
func (a *Aggregator) Fold(
	ctx context.Context,
	cat *catalog.Catalog,
	events []usagedomain.Event,
	granularity period.Granularity,
) (usagedomain.AggregateSet, []usagedomain.Rejection, error) {
	accepted, rejections := a.screen(ctx, cat, events)

	set, err := a.foldSharded(ctx, accepted, granularity)
	if err != nil {
		return nil, nil, err
	}

	a.metrics.RecordEventsFolded(ctx, int64(len(accepted)))
	a.log.Debug("usage folded",
		zap.Int("events", len(events)),
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(rejections)),
		zap.Int("keys", len(set)),
	)
	return set, rejections, nil
}

// screen applies per-event validation and identity dedupe in input order.
// Re-ingesting an event ID that was already folded must reject, not re-sum.
func (a *Aggregator) screen(
	ctx context.Context,
	cat *catalog.Catalog,
	events []usagedomain.Event,
) ([]usagedomain.Event, []usagedomain.Rejection) {
	seen := make(map[string]struct{}, len(events))
	accepted := make([]usagedomain.Event, 0, len(events))
	var rejections []usagedomain.Rejection

	for _, ev := range events {
		if err := a.validate(cat, ev, seen); err != nil {
			rejections = append(rejections, usagedomain.Rejection{
				EventID:    ev.ID,
				CustomerID: ev.CustomerID,
				ProductID:  ev.ProductID,
				Err:        err,
			})
			a.metrics.RecordRejection(ctx, kindOf(err))
			continue
		}
		seen[ev.ID] = struct{}{}
		accepted = append(accepted, ev)
	}
	return accepted, rejections
}

func (a *Aggregator) validate(cat *catalog.Catalog, ev usagedomain.Event, seen map[string]struct{}) error {
	if ev.ID == "" {
		return usagedomain.ErrMissingEventID
	}
	if _, dup := seen[ev.ID]; dup {
		return fmt.Errorf("%w: %s", usagedomain.ErrDuplicateEventID, ev.ID)
	}
	if ev.Quantity < 0 {
		return fmt.Errorf("%w: quantity %d", usagedomain.ErrInvalidUsage, ev.Quantity)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", usagedomain.ErrInvalidUsage)
	}
	if cat != nil {
		if err := cat.ValidateRefs(ev.CustomerID, ev.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// foldSharded runs the commutative-monoid fold: each shard builds a local
// map over a contiguous chunk, then shard maps merge serially per key.
func (a *Aggregator) foldSharded(
	ctx context.Context,
	events []usagedomain.Event,
	granularity period.Granularity,
) (usagedomain.AggregateSet, error) {
	shards := a.shards
	if shards < 1 {
		shards = 1
	}
	if shards > len(events) {
		shards = len(events)
	}
	if shards <= 1 {
		set := make(usagedomain.AggregateSet)
		foldInto(set, events, granularity)
		return set, nil
	}

	locals := make([]usagedomain.AggregateSet, shards)
	chunk := (len(events) + shards - 1) / shards

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		lo := i * chunk
		hi := min(lo+chunk, len(events))
		local := make(usagedomain.AggregateSet)
		locals[i] = local
		part := events[lo:hi]
		g.Go(func() error {
			foldInto(local, part, granularity)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Serialized merge preserves the per-key sum regardless of shard order.
	merged := make(usagedomain.AggregateSet)
	for _, local := range locals {
		for key, agg := range local {
			if cur, ok := merged[key]; ok {
				cur.Quantity += agg.Quantity
				cur.EventCount += agg.EventCount
				continue
			}
			copied := *agg
			merged[key] = &copied
		}
	}
	return merged, nil
}

func foldInto(set usagedomain.AggregateSet, events []usagedomain.Event, granularity period.Granularity) {
	for _, ev := range events {
		key := usagedomain.Key{
			CustomerID: ev.CustomerID,
			ProductID:  ev.ProductID,
			Period:     period.Of(ev.Timestamp, granularity),
		}
		agg, ok := set[key]
		if !ok {
			agg = &usagedomain.Aggregate{Key: key}
			set[key] = agg
		}
		agg.Quantity += ev.Quantity
		agg.EventCount++
	}
}

// kindOf reduces a wrapped rejection error to its sentinel name for the
// metrics attribute, so cardinality stays bounded.
func kindOf(err error) string {
	switch {
	case errors.Is(err, usagedomain.ErrDuplicateEventID):
		return usagedomain.ErrDuplicateEventID.Error()
	case errors.Is(err, usagedomain.ErrMissingEventID):
		return usagedomain.ErrMissingEventID.Error()
	case errors.Is(err, usagedomain.ErrInvalidUsage):
		return usagedomain.ErrInvalidUsage.Error()
	case errors.Is(err, catalog.ErrUnknownReference):
		return catalog.ErrUnknownReference.Error()
	default:
		return "unknown"
	}
}
