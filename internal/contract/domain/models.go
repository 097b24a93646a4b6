// Package domain contains contract and component types. A component is one
// product's pricing terms inside a contract; it is owned by value and never
// outlives or escapes its contract.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/meterline/internal/pricing"
)

type Component struct {
	ProductID string
	Pricing   pricing.Model
}

// Contract binds a customer to one or more priced components over a
// half-open validity interval [Start, End).
type Contract struct {
	ID         string
	CustomerID string
	Type       string
	Start      time.Time
	End        time.Time
	Components []Component
}

var (
	ErrNoActiveContract          = errors.New("no_active_contract")
	ErrOverlappingContracts      = errors.New("overlapping_contracts")
	ErrContractBoundaryMidPeriod = errors.New("contract_boundary_mid_period")

	ErrInvalidContract = errors.New("invalid_contract")
)

// Covers reports whether t falls inside the contract's validity interval.
func (c Contract) Covers(t time.Time) bool {
	t = t.UTC()
	return !t.Before(c.Start) && t.Before(c.End)
}

// ComponentFor returns the component pricing the given product, if any.
func (c Contract) ComponentFor(productID string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.ProductID == productID {
			return comp, true
		}
	}
	return Component{}, false
}

// Validate enforces structural soundness: a sane interval, at least one
// component, per-product disjointness within the contract, and valid
// pricing models. Violations are fatal configuration defects.
func (c Contract) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty contract id", ErrInvalidContract)
	}
	if c.CustomerID == "" {
		return fmt.Errorf("%w: contract %s has no customer", ErrInvalidContract, c.ID)
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("%w: contract %s interval [%s, %s)", ErrInvalidContract, c.ID, c.Start, c.End)
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("%w: contract %s has no components", ErrInvalidContract, c.ID)
	}
	seen := make(map[string]struct{}, len(c.Components))
	for _, comp := range c.Components {
		if comp.ProductID == "" {
			return fmt.Errorf("%w: contract %s component without product", ErrInvalidContract, c.ID)
		}
		if _, dup := seen[comp.ProductID]; dup {
			return fmt.Errorf("%w: contract %s prices product %s twice", ErrInvalidContract, c.ID, comp.ProductID)
		}
		seen[comp.ProductID] = struct{}{}
		if err := comp.Pricing.Validate(); err != nil {
			return fmt.Errorf("contract %s, product %s: %w", c.ID, comp.ProductID, err)
		}
	}
	return nil
}
