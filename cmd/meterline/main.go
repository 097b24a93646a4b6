package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/meterline/internal/catalog"
	"github.com/smallbiznis/meterline/internal/clock"
	"github.com/smallbiznis/meterline/internal/config"
	"github.com/smallbiznis/meterline/internal/contract"
	"github.com/smallbiznis/meterline/internal/fixture"
	"github.com/smallbiznis/meterline/internal/migration"
	"github.com/smallbiznis/meterline/internal/observability/metrics"
	"github.com/smallbiznis/meterline/internal/period"
	"github.com/smallbiznis/meterline/internal/rating"
	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
	"github.com/smallbiznis/meterline/internal/reconciliation"
	recondomain "github.com/smallbiznis/meterline/internal/reconciliation/domain"
	"github.com/smallbiznis/meterline/internal/resultstore"
	resultrepo "github.com/smallbiznis/meterline/internal/resultstore/repository"
	"github.com/smallbiznis/meterline/internal/usage"
	"github.com/smallbiznis/meterline/pkg/db"
	"github.com/smallbiznis/meterline/pkg/log"
	"github.com/smallbiznis/meterline/pkg/log/ctxlogger"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		// Functional Domains
		usage.Module,
		contract.Module,
		rating.Module,
		reconciliation.Module,
		resultstore.Module,

		fx.Invoke(runBatch),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

type batchParam struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Log        *zap.Logger
	Cfg        config.Config
	Billing    *config.BillingConfigHolder
	Rating     ratingdomain.Service
	Recon      recondomain.Service
	Store      *resultrepo.Store
}

// runBatch performs one rating run and exits. The process is a batch job,
// not a server; fx still owns startup ordering and teardown.
func runBatch(p batchParam) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0
				if err := execute(context.Background(), p); err != nil {
					p.Log.Error("rating run failed", zap.Error(err))
					code = 1
				}
				_ = p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
	})
}

func execute(ctx context.Context, p batchParam) error {
	bundle, err := fixture.Load(p.Cfg.FixtureDir)
	if err != nil {
		return fmt.Errorf("loading fixtures: %w", err)
	}

	cat, err := catalog.New(bundle.Customers, bundle.Products)
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}

	billing := p.Billing.Get()
	granularity, err := period.ParseGranularity(billing.Granularity)
	if err != nil {
		return err
	}

	result, err := p.Rating.Run(ctx, ratingdomain.RunInput{
		Catalog:     cat,
		Contracts:   bundle.Contracts,
		Events:      bundle.Events,
		Granularity: granularity,
		Currency:    billing.Currency,
	})
	if err != nil {
		return err
	}

	ctx = ctxlogger.ContextWithRunID(ctx, result.RunID)
	logger := log.L(ctx)

	inserted, err := p.Store.SaveRun(ctx, result)
	if err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}

	windowStart, windowEnd := reconWindow(result, bundle.Receipts)
	statements, err := p.Recon.BuildStatements(ctx, recondomain.BuildRequest{
		Result:      result,
		Receipts:    bundle.Receipts,
		Catalog:     cat,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		return fmt.Errorf("building statements: %w", err)
	}

	if err := writeJSON(p.Cfg.OutputDir, "rating_run.json", result); err != nil {
		return err
	}
	if err := writeJSON(p.Cfg.OutputDir, "statements.json", statements); err != nil {
		return err
	}

	logger.Info("rating run complete",
		zap.Int("charge_lines", len(result.Lines)),
		zap.Int("failures", len(result.Failures)),
		zap.Int64("lines_persisted", inserted),
		zap.Int("statements", len(statements)),
		zap.String("output_dir", p.Cfg.OutputDir),
	)
	return nil
}

// reconWindow spans every rated period and every receipt in the bundle.
// Payments routinely land after the usage period closes; a window cut at the
// period boundary would silently drop them.
func reconWindow(result *ratingdomain.RunResult, receipts []recondomain.CashReceipt) (time.Time, time.Time) {
	var start, end time.Time
	for _, line := range result.Lines {
		if start.IsZero() || line.PeriodStart.Before(start) {
			start = line.PeriodStart
		}
		if line.PeriodEnd.After(end) {
			end = line.PeriodEnd
		}
	}
	for _, receipt := range receipts {
		if start.IsZero() || receipt.PaymentDate.Before(start) {
			start = receipt.PaymentDate
		}
		if next := receipt.PaymentDate.AddDate(0, 0, 1); next.After(end) {
			end = next
		}
	}
	if start.IsZero() {
		now := time.Now().UTC()
		return now, now.AddDate(0, 0, 1)
	}
	return start, end
}

func writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
