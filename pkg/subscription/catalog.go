package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// BillingCycle is the renewal interval of a paid plan.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// Valid reports whether c is a supported cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// Plan is one entry of the plan catalog. Prices maps each cycle the plan is
// sold on to the processor's price reference.
type Plan struct {
	ID     string                  `yaml:"id"`
	Name   string                  `yaml:"name"`
	Free   bool                    `yaml:"free"`
	Prices map[BillingCycle]string `yaml:"prices"`
}

// PriceRef is the plan and cycle a processor price belongs to.
type PriceRef struct {
	PlanID string
	Cycle  BillingCycle
}

// PlanSource loads the externally owned plan catalog.
type PlanSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

// StaticPlans is a PlanSource over a fixed list.
type StaticPlans []Plan

func (p StaticPlans) Load(context.Context) ([]Plan, error) {
	return slices.Clone(p), nil
}

// YAMLFile loads plans from a YAML document of the form
//
//	plans:
//	  - id: starter
//	    name: Starter
//	    prices:
//	      monthly: price_123
//	      annual: price_456
type YAMLFile string

func (f YAMLFile) Load(context.Context) ([]Plan, error) {
	fh, err := os.Open(string(f))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return DecodePlans(fh)
}

// DecodePlans parses a YAML plan document.
func DecodePlans(r io.Reader) ([]Plan, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	return doc.Plans, nil
}

// DefaultPlans is the catalog used when no file is configured. Price
// references follow the price_<plan>_<cycle> convention and must exist in
// the processor account.
func DefaultPlans() StaticPlans {
	paid := func(id, name string) Plan {
		return Plan{
			ID:   id,
			Name: name,
			Prices: map[BillingCycle]string{
				CycleMonthly: "price_" + id + "_monthly",
				CycleAnnual:  "price_" + id + "_annual",
			},
		}
	}
	return StaticPlans{
		{ID: "free", Name: "Free", Free: true},
		paid("starter", "Starter"),
		paid("professional", "Professional"),
		paid("enterprise", "Enterprise"),
	}
}

// Catalog resolves plans to prices and back. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	plans   map[string]Plan
	byPrice map[string]PriceRef
}

// LoadCatalog loads and validates plans from src.
func LoadCatalog(ctx context.Context, src PlanSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return NewCatalog(plans...)
}

// NewCatalog validates plans and indexes their prices.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans", ErrInvalidCatalog)
	}

	c := &Catalog{
		plans:   make(map[string]Plan, len(plans)),
		byPrice: make(map[string]PriceRef),
	}
	for _, p := range plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("%w: plan without id", ErrInvalidCatalog)
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidCatalog, p.ID)
		}
		if !p.Free && len(p.Prices) == 0 {
			return nil, fmt.Errorf("%w: paid plan %q has no prices", ErrInvalidCatalog, p.ID)
		}
		for cycle, price := range p.Prices {
			if !cycle.Valid() {
				return nil, fmt.Errorf("%w: plan %q has unknown cycle %q", ErrInvalidCatalog, p.ID, cycle)
			}
			if price == "" {
				return nil, fmt.Errorf("%w: plan %q has empty %s price", ErrInvalidCatalog, p.ID, cycle)
			}
			if other, dup := c.byPrice[price]; dup {
				return nil, fmt.Errorf("%w: price %q used by %q and %q", ErrInvalidCatalog, price, other.PlanID, p.ID)
			}
			c.byPrice[price] = PriceRef{PlanID: p.ID, Cycle: cycle}
		}
		c.plans[p.ID] = p
	}
	return c, nil
}

// Contains reports whether id names a catalog plan.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.plans[id]
	return ok
}

// Resolve returns the price reference for a purchasable plan and cycle.
func (c *Catalog) Resolve(planID string, cycle BillingCycle) (string, error) {
	p, ok := c.plans[planID]
	switch {
	case !ok:
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidPlan, planID)
	case p.Free:
		return "", fmt.Errorf("%w: plan %q is free", ErrInvalidPlan, planID)
	case !cycle.Valid():
		return "", fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidPlan, cycle)
	}
	price, ok := p.Prices[cycle]
	if !ok {
		return "", fmt.Errorf("%w: plan %q is not sold %s", ErrInvalidPlan, planID, cycle)
	}
	return price, nil
}

// LookupPrice maps a processor price back to its plan and cycle.
func (c *Catalog) LookupPrice(price string) (PriceRef, bool) {
	ref, ok := c.byPrice[price]
	return ref, ok
}

// PlanFor determines the logical plan of a processor object from its price
// and the plan tag written at checkout. The price wins when both are known.
// An empty result means the object carries no plan information.
func (c *Catalog) PlanFor(price, taggedPlan string) (string, error) {
	if price != "" {
		if ref, ok := c.byPrice[price]; ok {
			return ref.PlanID, nil
		}
	}
	if taggedPlan != "" {
		if c.Contains(taggedPlan) {
			return taggedPlan, nil
		}
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidPlan, taggedPlan)
	}
	if price != "" {
		return "", fmt.Errorf("%w: price %q is not in the catalog", ErrInvalidPlan, price)
	}
	return "", nil
}
