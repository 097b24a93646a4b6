package service

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	contractdomain "github.com/smallbiznis/meterline/internal/contract/domain"
	"github.com/smallbiznis/meterline/internal/period"
)

// Resolver maps (customer, product, billing period) to the single covering
// contract component. Resolution uses the period's start instant as the
// representative time; a contract boundary strictly inside the period is an
// ambiguity the resolver reports instead of guessing.
type Resolver struct {
	log        *zap.Logger
	byCustomer map[string][]contractdomain.Contract
}

type ResolverParam struct {
	fx.In

	Log *zap.Logger
}

// NewResolverFactory lets the engine build a resolver per run from the run's
// contract snapshot.
func NewResolverFactory(p ResolverParam) func([]contractdomain.Contract) (*Resolver, error) {
	log := p.Log.Named("contract.resolver")
	return func(contracts []contractdomain.Contract) (*Resolver, error) {
		return NewResolver(log, contracts)
	}
}

// NewResolver validates every contract up front; a malformed contract is a
// structural error that fails the run before any key is rated.
func NewResolver(log *zap.Logger, contracts []contractdomain.Contract) (*Resolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	byCustomer := make(map[string][]contractdomain.Contract)
	seen := make(map[string]struct{}, len(contracts))
	for _, c := range contracts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate contract id %s", contractdomain.ErrInvalidContract, c.ID)
		}
		seen[c.ID] = struct{}{}
		byCustomer[c.CustomerID] = append(byCustomer[c.CustomerID], c)
	}
	return &Resolver{log: log, byCustomer: byCustomer}, nil
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	Contract  contractdomain.Contract
	Component contractdomain.Component
}

// Resolve finds the component covering (customerID, productID) for the
// period. Failure modes, in check order:
//   - a contract boundary inside the period: ErrContractBoundaryMidPeriod
//   - no covering contract at period start: ErrNoActiveContract
//   - more than one covering contract: ErrOverlappingContracts
func (r *Resolver) Resolve(customerID, productID string, p period.Period) (Resolution, error) {
	var candidates []contractdomain.Contract
	for _, c := range r.byCustomer[customerID] {
		if _, ok := c.ComponentFor(productID); ok {
			candidates = append(candidates, c)
		}
	}

	// A validity edge strictly inside the period makes start-of-period
	// resolution unrepresentative (the contract changes mid-period), so it
	// is reported rather than silently resolved.
	start, end := p.Start, p.End()
	for _, c := range candidates {
		if c.Start.After(start) && c.Start.Before(end) {
			return Resolution{}, fmt.Errorf("%w: contract %s starts %s inside period %s",
				contractdomain.ErrContractBoundaryMidPeriod, c.ID, c.Start.Format("2006-01-02"), p.Key())
		}
		if c.End.After(start) && c.End.Before(end) {
			return Resolution{}, fmt.Errorf("%w: contract %s ends %s inside period %s",
				contractdomain.ErrContractBoundaryMidPeriod, c.ID, c.End.Format("2006-01-02"), p.Key())
		}
	}

	var covering []contractdomain.Contract
	for _, c := range candidates {
		if c.Covers(start) {
			covering = append(covering, c)
		}
	}
	switch len(covering) {
	case 0:
		return Resolution{}, fmt.Errorf("%w: customer %s, product %s, period %s",
			contractdomain.ErrNoActiveContract, customerID, productID, p.Key())
	case 1:
		comp, _ := covering[0].ComponentFor(productID)
		return Resolution{Contract: covering[0], Component: comp}, nil
	default:
		ids := make([]string, 0, len(covering))
		for _, c := range covering {
			ids = append(ids, c.ID)
		}
		return Resolution{}, fmt.Errorf("%w: customer %s, product %s, period %s covered by %v",
			contractdomain.ErrOverlappingContracts, customerID, productID, p.Key(), ids)
	}
}
