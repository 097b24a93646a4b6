// Package fixture reads the upstream extracts a rating run consumes:
// catalog and contract JSON from the production database, usage event JSON
// from the metering pipeline, and cash receipt CSV from the payment provider.
package fixture

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/meterline/internal/catalog"
	contractdomain "github.com/smallbiznis/meterline/internal/contract/domain"
	"github.com/smallbiznis/meterline/internal/pricing"
	recondomain "github.com/smallbiznis/meterline/internal/reconciliation/domain"
	usagedomain "github.com/smallbiznis/meterline/internal/usage/domain"
)

const (
	customersFile = "customers.json"
	productsFile  = "products.json"
	contractsFile = "contracts.json"
	usageFile     = "usage_events.json"
	receiptsFile  = "cash_receipts.csv"
)

// Bundle is everything a rating run needs, loaded from one fixture directory.
type Bundle struct {
	Customers []catalog.Customer
	Products  []catalog.Product
	Contracts []contractdomain.Contract
	Events    []usagedomain.Event
	Receipts  []recondomain.CashReceipt
}

// Load reads all fixture files from dir.
func Load(dir string) (*Bundle, error) {
	customers, err := LoadCustomers(filepath.Join(dir, customersFile))
	if err != nil {
		return nil, err
	}
	products, err := LoadProducts(filepath.Join(dir, productsFile))
	if err != nil {
		return nil, err
	}
	contracts, err := LoadContracts(filepath.Join(dir, contractsFile))
	if err != nil {
		return nil, err
	}
	events, err := LoadEvents(filepath.Join(dir, usageFile))
	if err != nil {
		return nil, err
	}
	receipts, err := LoadReceipts(filepath.Join(dir, receiptsFile))
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Customers: customers,
		Products:  products,
		Contracts: contracts,
		Events:    events,
		Receipts:  receipts,
	}, nil
}

type customerRecord struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	CreatedAt  string `json:"created_at"`
	Tier       string `json:"tier"`
}

func LoadCustomers(path string) ([]catalog.Customer, error) {
	var records []customerRecord
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}

	out := make([]catalog.Customer, 0, len(records))
	for _, rec := range records {
		createdAt, err := parseTimestamp(rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", rec.CustomerID, err)
		}
		out = append(out, catalog.Customer{
			ID:        rec.CustomerID,
			Name:      rec.Name,
			Email:     rec.Email,
			Tier:      catalog.Tier(rec.Tier),
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

type productRecord struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

func LoadProducts(path string) ([]catalog.Product, error) {
	var records []productRecord
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}

	out := make([]catalog.Product, 0, len(records))
	for _, rec := range records {
		out = append(out, catalog.Product{
			ID:          rec.ProductID,
			Name:        rec.Name,
			Description: rec.Description,
			Unit:        rec.Unit,
		})
	}
	return out, nil
}

type pricingRecord struct {
	Model          string          `json:"model"`
	FreeUnits      int64           `json:"free_units"`
	RatePerUnit    decimal.Decimal `json:"rate_per_unit"`
	UpfrontPayment decimal.Decimal `json:"upfront_payment"`
	IncludedUnits  int64           `json:"included_units"`
	OverageRate    decimal.Decimal `json:"overage_rate"`
}

func (r pricingRecord) toModel() pricing.Model {
	return pricing.Model{
		Kind:           pricing.ModelKind(r.Model),
		FreeUnits:      r.FreeUnits,
		RatePerUnit:    r.RatePerUnit,
		UpfrontPayment: r.UpfrontPayment,
		IncludedUnits:  r.IncludedUnits,
		OverageRate:    r.OverageRate,
	}
}

type componentRecord struct {
	ProductID string        `json:"product_id"`
	Pricing   pricingRecord `json:"pricing"`
}

// contractRecord accepts both layouts the billing export produces: a single
// top-level product_id with pricing, or a components array.
type contractRecord struct {
	ContractID   string            `json:"contract_id"`
	CustomerID   string            `json:"customer_id"`
	ContractType string            `json:"contract_type"`
	StartDate    string            `json:"start_date"`
	EndDate      string            `json:"end_date"`
	ProductID    string            `json:"product_id"`
	Pricing      *pricingRecord    `json:"pricing"`
	Components   []componentRecord `json:"components"`
}

func LoadContracts(path string) ([]contractdomain.Contract, error) {
	var records []contractRecord
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}

	out := make([]contractdomain.Contract, 0, len(records))
	for _, rec := range records {
		start, err := parseTimestamp(rec.StartDate)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", rec.ContractID, err)
		}
		end, err := parseTimestamp(rec.EndDate)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", rec.ContractID, err)
		}

		var components []contractdomain.Component
		switch {
		case len(rec.Components) > 0:
			components = make([]contractdomain.Component, 0, len(rec.Components))
			for _, comp := range rec.Components {
				components = append(components, contractdomain.Component{
					ProductID: comp.ProductID,
					Pricing:   comp.Pricing.toModel(),
				})
			}
		case rec.ProductID != "" && rec.Pricing != nil:
			components = []contractdomain.Component{{
				ProductID: rec.ProductID,
				Pricing:   rec.Pricing.toModel(),
			}}
		default:
			return nil, fmt.Errorf("contract %s: no product pricing", rec.ContractID)
		}

		out = append(out, contractdomain.Contract{
			ID:         rec.ContractID,
			CustomerID: rec.CustomerID,
			Type:       rec.ContractType,
			Start:      start,
			End:        end,
			Components: components,
		})
	}
	return out, nil
}

type eventRecord struct {
	EventID    string         `json:"event_id"`
	CustomerID string         `json:"customer_id"`
	ProductID  string         `json:"product_id"`
	EventCount int64          `json:"event_count"`
	Timestamp  string         `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

func LoadEvents(path string) ([]usagedomain.Event, error) {
	var records []eventRecord
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}

	out := make([]usagedomain.Event, 0, len(records))
	for _, rec := range records {
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.EventID, err)
		}
		out = append(out, usagedomain.Event{
			ID:         rec.EventID,
			CustomerID: rec.CustomerID,
			ProductID:  rec.ProductID,
			Quantity:   rec.EventCount,
			Timestamp:  ts,
			Metadata:   rec.Metadata,
		})
	}
	return out, nil
}

func LoadReceipts(path string) ([]recondomain.CashReceipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, required := range []string{"receipt_id", "customer_id", "amount", "currency", "payment_date", "status"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	out := make([]recondomain.CashReceipt, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := field(row, "receipt_id")

		amount, err := decimal.NewFromString(field(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("receipt %s: amount: %w", id, err)
		}
		paidAt, err := time.ParseInLocation("2006-01-02", field(row, "payment_date"), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("receipt %s: payment_date: %w", id, err)
		}

		out = append(out, recondomain.CashReceipt{
			ID:          id,
			CustomerID:  field(row, "customer_id"),
			Amount:      amount,
			Currency:    field(row, "currency"),
			PaymentDate: paidAt,
			Method:      field(row, "payment_method"),
			ChargeRef:   field(row, "stripe_charge_id"),
			Description: field(row, "description"),
			Status:      recondomain.ReceiptStatus(field(row, "status")),
		})
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// parseTimestamp accepts RFC3339 and the zone-less ISO form the upstream
// exports use, treating the latter as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
