package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/meterline/internal/catalog"
	ratingdomain "github.com/smallbiznis/meterline/internal/rating/domain"
	recondomain "github.com/smallbiznis/meterline/internal/reconciliation/domain"
)

type Service struct {
	log *zap.Logger
}

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

func NewService(p ServiceParam) recondomain.Service {
	return &Service{log: p.Log.Named("reconciliation.service")}
}

// BuildStatements nets charges against succeeded receipts per customer over
// the window. Charge lines whose period intersects the window and receipts
// whose payment date falls inside it participate; everything else stays out
// but nothing is dropped silently: non-succeeded receipts are listed as
// informational, mismatched ones as excluded with a manifest entry.
func (s *Service) BuildStatements(ctx context.Context, req recondomain.BuildRequest) ([]recondomain.Statement, error) {
	if req.Result == nil {
		return nil, recondomain.ErrMissingRunResult
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, fmt.Errorf("%w: [%s, %s)", recondomain.ErrInvalidWindow, req.WindowStart, req.WindowEnd)
	}

	statements := make(map[string]*recondomain.Statement)
	currency := req.Result.Currency
	byCustomer := func(id string) *recondomain.Statement {
		st, ok := statements[id]
		if !ok {
			st = &recondomain.Statement{
				CustomerID:    id,
				WindowStart:   req.WindowStart,
				WindowEnd:     req.WindowEnd,
				Currency:      currency,
				TotalCharges:  decimal.Zero,
				TotalReceipts: decimal.Zero,
			}
			statements[id] = st
		}
		return st
	}

	for _, line := range req.Result.Lines {
		if !line.PeriodStart.Before(req.WindowEnd) || !line.PeriodEnd.After(req.WindowStart) {
			continue
		}
		st := byCustomer(line.CustomerID)
		st.Lines = append(st.Lines, line)
		st.TotalCharges = st.TotalCharges.Add(line.Amount)
		if line.Provisional {
			st.Provisional = true
		}
	}

	for _, failure := range req.Result.Failures {
		if failure.CustomerID == "" {
			continue
		}
		st := byCustomer(failure.CustomerID)
		st.Failures = append(st.Failures, failure)
	}

	for _, receipt := range req.Receipts {
		s.applyReceipt(byCustomer, receipt, req, currency)
	}

	out := make([]recondomain.Statement, 0, len(statements))
	for _, st := range statements {
		st.NetBalance = st.TotalReceipts.Sub(st.TotalCharges)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })

	s.log.Debug("statements built",
		zap.Int("customers", len(out)),
		zap.Int("charge_lines", len(req.Result.Lines)),
		zap.Int("receipts", len(req.Receipts)),
	)
	return out, nil
}

func (s *Service) applyReceipt(
	byCustomer func(string) *recondomain.Statement,
	receipt recondomain.CashReceipt,
	req recondomain.BuildRequest,
	currency string,
) {
	if receipt.PaymentDate.Before(req.WindowStart) || !receipt.PaymentDate.Before(req.WindowEnd) {
		return
	}

	if req.Catalog != nil {
		if _, ok := req.Catalog.Customer(receipt.CustomerID); !ok {
			st := byCustomer(receipt.CustomerID)
			st.Excluded = append(st.Excluded, recondomain.ExcludedReceipt{
				Receipt: receipt,
				Reason:  catalog.ErrUnknownReference.Error(),
			})
			st.Failures = append(st.Failures, ratingdomain.Failure{
				CustomerID: receipt.CustomerID,
				Kind:       "UnknownReference",
				Detail:     fmt.Sprintf("receipt %s references unknown customer %s", receipt.ID, receipt.CustomerID),
			})
			return
		}
	}

	st := byCustomer(receipt.CustomerID)

	if receipt.Status != recondomain.ReceiptSucceeded {
		st.Informational = append(st.Informational, recondomain.ExcludedReceipt{
			Receipt: receipt,
			Reason:  "status_" + string(receipt.Status),
		})
		return
	}

	if !strings.EqualFold(receipt.Currency, currency) {
		st.Excluded = append(st.Excluded, recondomain.ExcludedReceipt{
			Receipt: receipt,
			Reason:  recondomain.ErrCurrencyMismatch.Error(),
		})
		st.Failures = append(st.Failures, ratingdomain.Failure{
			CustomerID: receipt.CustomerID,
			Kind:       "CurrencyMismatch",
			Detail:     fmt.Sprintf("receipt %s is %s, billing currency is %s", receipt.ID, receipt.Currency, currency),
		})
		return
	}

	st.TotalReceipts = st.TotalReceipts.Add(receipt.Amount)
}
