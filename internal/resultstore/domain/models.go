// Package domain contains persistence models for rating run outputs.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
)

// RatingRun records one execution of the rating engine.
type RatingRun struct {
	RunID        string    `gorm:"primaryKey;type:text"`
	GeneratedAt  time.Time `gorm:"not null"`
	Currency     string    `gorm:"type:text;not null"`
	LineCount    int       `gorm:"not null"`
	FailureCount int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RatingRun) TableName() string { return "rating_runs" }

// ChargeLineRecord captures one priced aggregate. The checksum is derived
// from the line's business identity, so replaying a run inserts nothing new.
type ChargeLineRecord struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	RunID       string          `gorm:"type:text;not null;index"`
	ContractID  string          `gorm:"type:text;not null;index"`
	CustomerID  string          `gorm:"type:text;not null;index"`
	ProductID   string          `gorm:"type:text;not null"`
	PeriodKey   string          `gorm:"type:text;not null"`
	PeriodStart time.Time       `gorm:"not null"`
	PeriodEnd   time.Time       `gorm:"not null"`
	Quantity    int64           `gorm:"not null"`
	Currency    string          `gorm:"type:text;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric;not null"`
	Breakdown   datatypes.JSON
	Provisional bool      `gorm:"not null"`
	Checksum    string    `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ChargeLineRecord) TableName() string { return "charge_lines" }

// FromLine builds a persistence record for a charge line. The surrogate ID is
// assigned by the caller at insert time.
func FromLine(runID string, line ratingdomain.ChargeLine) (ChargeLineRecord, error) {
	breakdown, err := json.Marshal(line.Breakdown)
	if err != nil {
		return ChargeLineRecord{}, err
	}
	return ChargeLineRecord{
		RunID:       runID,
		ContractID:  line.ContractID,
		CustomerID:  line.CustomerID,
		ProductID:   line.ProductID,
		PeriodKey:   line.PeriodKey,
		PeriodStart: line.PeriodStart,
		PeriodEnd:   line.PeriodEnd,
		Quantity:    line.Quantity,
		Currency:    line.Currency,
		Amount:      line.Amount,
		Breakdown:   datatypes.JSON(breakdown),
		Provisional: line.Provisional,
		Checksum:    line.Checksum,
	}, nil
}
