// Package domain contains the rating engine's output types and the error
// kind taxonomy shared by the run manifest.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/meterline/internal/catalog"
	contractdomain "github.com/smallbiznis/meterline/internal/contract/domain"
	"github.com/smallbiznis/meterline/internal/period"
	"github.com/smallbiznis/meterline/internal/pricing"
	usagedomain "github.com/smallbiznis/meterline/internal/usage/domain"
)

// ChargeLine is one priced (contract, component, billing period) result.
// Lines are derived, recomputable, and deterministic: re-rating the same
// inputs yields identical lines, checksum included.
type ChargeLine struct {
	ContractID  string            `json:"contract_id"`
	CustomerID  string            `json:"customer_id"`
	ProductID   string            `json:"product_id"`
	PeriodKey   string            `json:"period"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Quantity    int64             `json:"quantity"`
	Currency    string            `json:"currency"`
	Amount      decimal.Decimal   `json:"amount"`
	Breakdown   pricing.Breakdown `json:"breakdown"`

	// Provisional marks lines for periods that had not closed when the run
	// executed; their totals can still move.
	Provisional bool `json:"provisional"`

	// Checksum identifies the line independently of the run that produced
	// it, so persisted re-runs collapse into no-ops.
	Checksum string `json:"checksum"`
}

// Failure is one manifest entry: a key (or single event) the run could not
// rate, and why. Nothing is ever silently zero-charged or dropped.
type Failure struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	PeriodKey  string `json:"period,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
}

// RunInput is the materialized, validated data set for one rating run.
// Everything is loaded before rating begins; the engine performs no I/O.
type RunInput struct {
	Catalog     *catalog.Catalog
	Contracts   []contractdomain.Contract
	Events      []usagedomain.Event
	Granularity period.Granularity
	Currency    string
}

// RunResult is the full outcome of a run: every achievable charge line plus
// an explicit manifest of what could not be rated.
type RunResult struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Currency    string       `json:"currency"`
	Lines       []ChargeLine `json:"charge_lines"`
	Failures    []Failure    `json:"failures"`
}

type Service interface {
	Run(context.Context, RunInput) (*RunResult, error)
}

var (
	ErrMissingCatalog  = errors.New("missing_catalog")
	ErrMissingCurrency = errors.New("missing_currency")
)

// KindOf maps an engine error to its manifest kind.
func KindOf(err error) string {
	switch {
	case errors.Is(err, usagedomain.ErrDuplicateEventID):
		return "DuplicateEventID"
	case errors.Is(err, usagedomain.ErrInvalidUsage),
		errors.Is(err, usagedomain.ErrMissingEventID),
		errors.Is(err, pricing.ErrInvalidUsage):
		return "InvalidUsage"
	case errors.Is(err, catalog.ErrUnknownReference):
		return "UnknownReference"
	case errors.Is(err, contractdomain.ErrNoActiveContract):
		return "NoActiveContract"
	case errors.Is(err, contractdomain.ErrOverlappingContracts):
		return "OverlappingContracts"
	case errors.Is(err, contractdomain.ErrContractBoundaryMidPeriod):
		return "ContractBoundaryMidPeriod"
	case errors.Is(err, pricing.ErrUnsupportedPricingModel):
		return "UnsupportedPricingModel"
	case errors.Is(err, pricing.ErrPolicyViolation):
		return "PolicyViolation"
	default:
		return "Internal"
	}
}
