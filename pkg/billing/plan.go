package billing

import (
	"fmt"
	"sort"
)

// PlanType identifies a global membership plan tier.
type PlanType string

const (
	PlanBasic     PlanType = "basic"
	PlanStandard  PlanType = "standard"
	PlanPro       PlanType = "pro"
	PlanAllAccess PlanType = "all_access"
)

// PriceTolerance is the amount-matching window, in the smallest currency
// unit, used when inferring plan transitions from invoice proration lines
// or raw order amounts. ±$5 is policy inherited from historical
// reconciliation behavior, not a mechanical requirement.
const PriceTolerance int64 = 500

// Plan describes a membership plan tier. Prices are in the smallest
// currency unit. AllAccess plans implicitly cover every creator's
// protected content.
type Plan struct {
	Type      PlanType `yaml:"type" json:"type"`
	Name      string   `yaml:"name" json:"name"`
	Price     Money    `yaml:"price" json:"price"`
	AllAccess bool     `yaml:"all_access" json:"all_access"`
}

// LookupKey returns the deterministic processor price lookup key for the
// plan. Price lookup-or-create is keyed by it so concurrent callers never
// race into duplicate price objects.
func (p Plan) LookupKey() string {
	return fmt.Sprintf("plan_%s_monthly", p.Type)
}

// Catalog is the fixed set of known plans, indexed by type.
type Catalog struct {
	plans map[PlanType]Plan
}

// NewCatalog builds a catalog from a plan source. It fails on duplicate
// types, non-positive prices, or an empty source.
func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrInvalidPlanConfiguration)
	}

	byType := make(map[PlanType]Plan, len(plans))
	for _, plan := range plans {
		if plan.Type == "" {
			return nil, fmt.Errorf("%w: plan with empty type", ErrInvalidPlanConfiguration)
		}
		if _, exists := byType[plan.Type]; exists {
			return nil, fmt.Errorf("%w: duplicate plan type %q", ErrInvalidPlanConfiguration, plan.Type)
		}
		if plan.Price.Amount <= 0 {
			return nil, fmt.Errorf("%w: plan %q has non-positive price", ErrInvalidPlanConfiguration, plan.Type)
		}
		byType[plan.Type] = plan
	}

	return &Catalog{plans: byType}, nil
}

// Get returns the plan for a type.
func (c *Catalog) Get(t PlanType) (Plan, bool) {
	plan, ok := c.plans[t]
	return plan, ok
}

// All returns every known plan sorted by price ascending.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.Amount < out[j].Price.Amount })
	return out
}

// MatchAmount returns the plan whose price is closest to amount within the
// given tolerance. Used by forensic reclassification to recognize plan
// prices in invoice lines and order totals.
func (c *Catalog) MatchAmount(amount, tolerance int64) (Plan, bool) {
	var best Plan
	bestDiff := tolerance + 1
	for _, plan := range c.plans {
		diff := plan.Price.Amount - amount
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance && diff < bestDiff {
			best = plan
			bestDiff = diff
		}
	}
	return best, bestDiff <= tolerance
}

// DefaultPlans is the built-in plan table of the platform.
func DefaultPlans() []Plan {
	return []Plan{
		{Type: PlanBasic, Name: "Basic", Price: Money{Amount: 3700, Currency: "usd"}},
		{Type: PlanStandard, Name: "Standard", Price: Money{Amount: 6000, Currency: "usd"}},
		{Type: PlanPro, Name: "Pro", Price: Money{Amount: 8700, Currency: "usd"}},
		{Type: PlanAllAccess, Name: "All Access", Price: Money{Amount: 12700, Currency: "usd"}, AllAccess: true},
	}
}
