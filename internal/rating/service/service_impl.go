package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/meterline/internal/clock"
	contractdomain "github.com/smallbiznis/meterline/internal/contract/domain"
	contractservice "github.com/smallbiznis/meterline/internal/contract/service"
	obsmetrics "github.com/smallbiznis/meterline/internal/observability/metrics"
	"github.com/smallbiznis/meterline/internal/period"
	"github.com/smallbiznis/meterline/internal/pricing"
	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
	usagedomain "github.com/smallbiznis/meterline/internal/usage/domain"
	usageservice "github.com/smallbiznis/meterline/internal/usage/service"
)

type Service struct {
	log         *zap.Logger
	aggregator  *usageservice.Aggregator
	newResolver func([]contractdomain.Contract) (*contractservice.Resolver, error)
	clk         clock.Clock
	metrics     *obsmetrics.Metrics
	workers     int
}

type ServiceParam struct {
	fx.In

	Log             *zap.Logger
	Aggregator      *usageservice.Aggregator
	ResolverFactory func([]contractdomain.Contract) (*contractservice.Resolver, error)
	Clock           clock.Clock
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		log:         p.Log.Named("rating.service"),
		aggregator:  p.Aggregator,
		newResolver: p.ResolverFactory,
		clk:         p.Clock,
		metrics:     p.Metrics,
		workers:     runtime.GOMAXPROCS(0),
	}
}

// Run rates one materialized input set. Structural problems (nil catalog,
// malformed contracts) fail the whole run with no partial output; everything
// per-key lands either in Lines or in Failures, never silently nowhere.
// Lines and Failures are deterministic for a given input set.
func (s *Service) Run(ctx context.Context, in ratingdomain.RunInput) (*ratingdomain.RunResult, error) {
	if in.Catalog == nil {
		return nil, ratingdomain.ErrMissingCatalog
	}
	if in.Currency == "" {
		return nil, ratingdomain.ErrMissingCurrency
	}
	granularity := in.Granularity
	if granularity == "" {
		granularity = period.Monthly
	}

	started := s.clk.Now()
	runID := ulid.Make().String()
	log := s.log.With(zap.String("run_id", runID))

	resolver, err := s.newResolver(in.Contracts)
	if err != nil {
		return nil, fmt.Errorf("loading contracts: %w", err)
	}

	set, rejections, err := s.aggregator.Fold(ctx, in.Catalog, in.Events, granularity)
	if err != nil {
		return nil, fmt.Errorf("aggregating usage: %w", err)
	}

	failures := make([]ratingdomain.Failure, 0, len(rejections))
	for _, rej := range rejections {
		failures = append(failures, ratingdomain.Failure{
			CustomerID: rej.CustomerID,
			ProductID:  rej.ProductID,
			EventID:    rej.EventID,
			Kind:       ratingdomain.KindOf(rej.Err),
			Detail:     rej.Err.Error(),
		})
	}

	aggregates := set.Sorted()
	lines, keyFailures := s.rateAll(ctx, resolver, aggregates, in.Currency, started)
	failures = append(failures, keyFailures...)

	for _, f := range failures {
		s.metrics.RecordKeyFailure(ctx, f.Kind)
	}
	s.metrics.RecordChargeLines(ctx, int64(len(lines)))
	s.metrics.RecordRunDuration(ctx, s.clk.Now().Sub(started))

	log.Info("rating run complete",
		zap.Int("events", len(in.Events)),
		zap.Int("keys", len(aggregates)),
		zap.Int("charge_lines", len(lines)),
		zap.Int("failures", len(failures)),
	)

	return &ratingdomain.RunResult{
		RunID:       runID,
		GeneratedAt: started,
		Currency:    in.Currency,
		Lines:       lines,
		Failures:    keep(failures),
	}, nil
}

// rateAll rates independent keys concurrently. Each worker owns one slot of
// the result slices, so no locking is needed; ordering follows the sorted
// aggregate order.
func (s *Service) rateAll(
	ctx context.Context,
	resolver *contractservice.Resolver,
	aggregates []usagedomain.Aggregate,
	currency string,
	now time.Time,
) ([]ratingdomain.ChargeLine, []ratingdomain.Failure) {
	type slot struct {
		line *ratingdomain.ChargeLine
		fail *ratingdomain.Failure
	}
	slots := make([]slot, len(aggregates))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, agg := range aggregates {
		g.Go(func() error {
			line, err := s.rateKey(resolver, agg, currency, now)
			if err != nil {
				slots[i].fail = &ratingdomain.Failure{
					CustomerID: agg.Key.CustomerID,
					ProductID:  agg.Key.ProductID,
					PeriodKey:  agg.Key.Period.Key(),
					Kind:       ratingdomain.KindOf(err),
					Detail:     err.Error(),
				}
				return nil
			}
			slots[i].line = line
			s.metrics.RecordKeyRated(ctx)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; per-key failures are data

	lines := make([]ratingdomain.ChargeLine, 0, len(aggregates))
	var failures []ratingdomain.Failure
	for _, sl := range slots {
		if sl.line != nil {
			lines = append(lines, *sl.line)
		}
		if sl.fail != nil {
			failures = append(failures, *sl.fail)
		}
	}
	return lines, failures
}

func (s *Service) rateKey(
	resolver *contractservice.Resolver,
	agg usagedomain.Aggregate,
	currency string,
	now time.Time,
) (*ratingdomain.ChargeLine, error) {
	res, err := resolver.Resolve(agg.Key.CustomerID, agg.Key.ProductID, agg.Key.Period)
	if err != nil {
		return nil, err
	}

	breakdown, err := pricing.Evaluate(res.Component.Pricing, agg.Quantity, currency)
	if err != nil {
		return nil, err
	}

	line := ratingdomain.ChargeLine{
		ContractID:  res.Contract.ID,
		CustomerID:  agg.Key.CustomerID,
		ProductID:   agg.Key.ProductID,
		PeriodKey:   agg.Key.Period.Key(),
		PeriodStart: agg.Key.Period.Start,
		PeriodEnd:   agg.Key.Period.End(),
		Quantity:    agg.Quantity,
		Currency:    currency,
		Amount:      breakdown.Amount,
		Breakdown:   breakdown,
		Provisional: !agg.Key.Period.ClosedAt(now),
	}
	line.Checksum = buildChecksum(line)
	return &line, nil
}

// buildChecksum fingerprints a line independently of run identity, so a
// re-run over the same inputs produces the same checksum and persisted
// copies collapse on conflict.
func buildChecksum(line ratingdomain.ChargeLine) string {
	payload := fmt.Sprintf(
		"%s|%s|%s|%s|%d|%s|%s|%s",
		line.ContractID,
		line.CustomerID,
		line.ProductID,
		line.PeriodKey,
		line.Quantity,
		line.Currency,
		line.Amount.String(),
		line.Breakdown.Model,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func keep(failures []ratingdomain.Failure) []ratingdomain.Failure {
	if len(failures) == 0 {
		return nil
	}
	return failures
}
