// Package catalog holds the customer and product reference data for a rating
// run. The set is built once from upstream records and is immutable for the
// run's duration, so concurrent readers need no locking.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Tier labels the customer's commercial segment. Informational only: pricing
// always comes from the contract, never from the tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPAYG    Tier = "payg"
	TierPrepaid Tier = "prepaid"
)

type Customer struct {
	ID        string
	Name      string
	Email     string
	Tier      Tier
	CreatedAt time.Time
}

type Product struct {
	ID          string
	Name        string
	Description string
	Unit        string
}

var (
	// ErrUnknownReference marks usage or receipts pointing at a customer or
	// product the catalog has never seen. The engine does not invent records.
	ErrUnknownReference = errors.New("unknown_reference")

	ErrDuplicateRecord = errors.New("duplicate_catalog_record")
)

// Catalog is the immutable per-run reference set.
type Catalog struct {
	customers map[string]Customer
	products  map[string]Product
}

// New builds a catalog from upstream records. Duplicate identities are a
// structural defect in the reference data and fail the whole run.
func New(customers []Customer, products []Product) (*Catalog, error) {
	c := &Catalog{
		customers: make(map[string]Customer, len(customers)),
		products:  make(map[string]Product, len(products)),
	}
	for _, cust := range customers {
		if cust.ID == "" {
			return nil, fmt.Errorf("%w: customer with empty id", ErrUnknownReference)
		}
		if _, ok := c.customers[cust.ID]; ok {
			return nil, fmt.Errorf("%w: customer %s", ErrDuplicateRecord, cust.ID)
		}
		c.customers[cust.ID] = cust
	}
	for _, prod := range products {
		if prod.ID == "" {
			return nil, fmt.Errorf("%w: product with empty id", ErrUnknownReference)
		}
		if _, ok := c.products[prod.ID]; ok {
			return nil, fmt.Errorf("%w: product %s", ErrDuplicateRecord, prod.ID)
		}
		c.products[prod.ID] = prod
	}
	return c, nil
}

func (c *Catalog) Customer(id string) (Customer, bool) {
	cust, ok := c.customers[id]
	return cust, ok
}

func (c *Catalog) Product(id string) (Product, bool) {
	prod, ok := c.products[id]
	return prod, ok
}

// ValidateRefs checks both sides of a (customer, product) reference pair.
func (c *Catalog) ValidateRefs(customerID, productID string) error {
	if _, ok := c.customers[customerID]; !ok {
		return fmt.Errorf("%w: customer %s", ErrUnknownReference, customerID)
	}
	if _, ok := c.products[productID]; !ok {
		return fmt.Errorf("%w: product %s", ErrUnknownReference, productID)
	}
	return nil
}

func (c *Catalog) CustomerCount() int { return len(c.customers) }
func (c *Catalog) ProductCount() int  { return len(c.products) }
