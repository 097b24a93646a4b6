// Package repository persists rating run outputs.
package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
	resultdomain "github.com/smallbiznis/meterline/internal/resultstore/domain"
	"github.com/smallbiznis/meterline/pkg/repository"
)

type StoreParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

// Store writes rating runs and their charge lines. Lines are keyed by
// checksum, so persisting the same run twice leaves the table unchanged.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	runs  repository.Repository[resultdomain.RatingRun]
	lines repository.Repository[resultdomain.ChargeLineRecord]
}

func NewStore(p StoreParam) *Store {
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("resultstore"),
		genID: p.GenID,
		runs:  repository.ProvideStore[resultdomain.RatingRun](p.DB),
		lines: repository.ProvideStore[resultdomain.ChargeLineRecord](p.DB),
	}
}

// SaveRun stores the run header and inserts its charge lines, skipping any
// line whose checksum is already present. Returns the number of new lines.
func (s *Store) SaveRun(ctx context.Context, result *ratingdomain.RunResult) (int64, error) {
	records := make([]resultdomain.ChargeLineRecord, 0, len(result.Lines))
	for _, line := range result.Lines {
		record, err := resultdomain.FromLine(result.RunID, line)
		if err != nil {
			return 0, err
		}
		record.ID = s.genID.Generate()
		records = append(records, record)
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := resultdomain.RatingRun{
			RunID:        result.RunID,
			GeneratedAt:  result.GeneratedAt,
			Currency:     result.Currency,
			LineCount:    len(result.Lines),
			FailureCount: len(result.Failures),
		}
		if err := s.runs.WithTrx(tx).Create(ctx, &run); err != nil {
			return err
		}

		if len(records) == 0 {
			return nil
		}

		stmt := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}},
			DoNothing: true,
		}).Create(&records)
		if stmt.Error != nil {
			return stmt.Error
		}
		inserted = stmt.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped := int64(len(records)) - inserted; skipped > 0 {
		s.log.Info("charge lines already persisted",
			zap.String("run_id", result.RunID),
			zap.Int64("skipped", skipped),
		)
	}
	return inserted, nil
}

// LineByChecksum returns the stored line for a checksum, or nil.
func (s *Store) LineByChecksum(ctx context.Context, checksum string) (*resultdomain.ChargeLineRecord, error) {
	return s.lines.FindOne(ctx, &resultdomain.ChargeLineRecord{Checksum: checksum})
}

// LinesByRun returns every stored line for a run.
func (s *Store) LinesByRun(ctx context.Context, runID string) ([]*resultdomain.ChargeLineRecord, error) {
	return s.lines.Find(ctx, &resultdomain.ChargeLineRecord{RunID: runID})
}

// CountLines reports how many charge lines are stored in total.
func (s *Store) CountLines(ctx context.Context) (int64, error) {
	return s.lines.Count(ctx, &resultdomain.ChargeLineRecord{})
}
