// Package domain contains cash receipt and statement types for settlement.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/meterline/internal/catalog"
	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
)

// ReceiptStatus is the upstream payment outcome. Only succeeded receipts
// settle charges; everything else is retained for information.
type ReceiptStatus string

const (
	ReceiptSucceeded ReceiptStatus = "succeeded"
	ReceiptFailed    ReceiptStatus = "failed"
	ReceiptPending   ReceiptStatus = "pending"
)

// CashReceipt is one append-only payment record from the billing provider.
type CashReceipt struct {
	ID          string
	CustomerID  string
	Amount      decimal.Decimal
	Currency    string
	PaymentDate time.Time
	Method      string
	ChargeRef   string
	Description string
	Status      ReceiptStatus
}

// ExcludedReceipt is a receipt that did not count toward the settled total,
// with the reason preserved.
type ExcludedReceipt struct {
	Receipt CashReceipt `json:"receipt"`
	Reason  string      `json:"reason"`
}

// Statement nets a customer's charges against their receipts over a window.
// A negative net balance means the customer owes; that is a valid outcome,
// not an error.
type Statement struct {
	CustomerID    string                    `json:"customer_id"`
	WindowStart   time.Time                 `json:"window_start"`
	WindowEnd     time.Time                 `json:"window_end"`
	Currency      string                    `json:"currency"`
	Lines         []ratingdomain.ChargeLine `json:"charge_lines"`
	TotalCharges  decimal.Decimal           `json:"total_charges"`
	TotalReceipts decimal.Decimal           `json:"total_receipts"`
	NetBalance    decimal.Decimal           `json:"net_balance"`

	// Provisional propagates from any charge line whose period had not
	// closed at rating time.
	Provisional bool `json:"provisional"`

	Informational []ExcludedReceipt      `json:"informational_receipts,omitempty"`
	Excluded      []ExcludedReceipt      `json:"excluded_receipts,omitempty"`
	Failures      []ratingdomain.Failure `json:"failures,omitempty"`
}

// BuildRequest assembles everything statement construction needs.
type BuildRequest struct {
	Result      *ratingdomain.RunResult
	Receipts    []CashReceipt
	Catalog     *catalog.Catalog
	WindowStart time.Time
	WindowEnd   time.Time
}

type Service interface {
	BuildStatements(context.Context, BuildRequest) ([]Statement, error)
}

var (
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrInvalidWindow    = errors.New("invalid_window")
	ErrMissingRunResult = errors.New("missing_run_result")
)
