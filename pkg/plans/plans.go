package plans

import (
	"errors"
	"fmt"
	"sort"
)

// ErrPlanNotFound is returned when a plan id is not part of the catalog.
var ErrPlanNotFound = errors.New("plan not found")

// Tier is the entitlement level a plan confers.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierUltra Tier = "ultra"
)

// Rank orders tiers so that upgrades can be compared. Unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierUltra:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Max returns the higher of the two tiers.
func Max(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Grants is the number of credits a plan puts in each pool.
type Grants struct {
	CV          int64 `json:"cv" yaml:"cv"`
	Letter      int64 `json:"letter" yaml:"letter"`
	Spontaneous int64 `json:"spontaneous" yaml:"spontaneous"`
}

// Plan is a purchasable (or default) entitlement bundle.
type Plan struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	PriceCents  int64  `json:"price_cents" yaml:"price_cents"`
	Currency    string `json:"currency" yaml:"currency"`
	Tier        Tier   `json:"tier" yaml:"tier"`
	Grants      Grants `json:"grants" yaml:"grants"`
	Purchasable bool   `json:"purchasable" yaml:"purchasable"`
}

// Validate checks a single plan definition
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("plan %s: name is required", p.ID)
	}
	if !p.Tier.Valid() {
		return fmt.Errorf("plan %s: invalid tier %q", p.ID, p.Tier)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("plan %s: price cannot be negative", p.ID)
	}
	if p.Purchasable && p.PriceCents == 0 {
		return fmt.Errorf("plan %s: purchasable plans must have a price", p.ID)
	}
	if p.Currency == "" {
		return fmt.Errorf("plan %s: currency is required", p.ID)
	}
	if p.Grants.CV < 0 || p.Grants.Letter < 0 || p.Grants.Spontaneous < 0 {
		return fmt.Errorf("plan %s: grants cannot be negative", p.ID)
	}
	return nil
}

// Catalog is an immutable set of plans. It is safe for concurrent use.
type Catalog struct {
	version string
	plans   map[string]Plan
	order   []string
}

// NewCatalog builds a catalog from the given plans, preserving their order.
func NewCatalog(version string, plans ...Plan) (*Catalog, error) {
	c := &Catalog{
		version: version,
		plans:   make(map[string]Plan, len(plans)),
		order:   make([]string, 0, len(plans)),
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %s", p.ID)
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(planID string) (Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return p, nil
}

// List returns every plan in catalog order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// Purchasable returns the plans that can be bought, cheapest first.
func (c *Catalog) Purchasable() []Plan {
	var out []Plan
	for _, p := range c.List() {
		if p.Purchasable {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

// Version identifies the catalog revision, e.g. for cache busting on clients.
func (c *Catalog) Version() string {
	return c.version
}

// Default plan ids.
const (
	PlanFree         = "free"
	PlanProMonthly   = "pro_monthly"
	PlanProYearly    = "pro_yearly"
	PlanUltraMonthly = "ultra_monthly"
	PlanUltraYearly  = "ultra_yearly"
)

// UnlimitedGrant is the nominal counter value given to ultra plans.
const UnlimitedGrant int64 = 99999

// DefaultCatalog returns the built-in plan table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog("builtin-1", defaultPlans()...)
	if err != nil {
		panic(fmt.Sprintf("invalid builtin catalog: %v", err))
	}
	return c
}

func defaultPlans() []Plan {
	pro := Grants{CV: 100, Letter: 100, Spontaneous: 500}
	ultra := Grants{CV: UnlimitedGrant, Letter: UnlimitedGrant, Spontaneous: UnlimitedGrant}
	return []Plan{
		{ID: PlanFree, Name: "Gratuit", PriceCents: 0, Currency: "eur", Tier: TierFree,
			Grants: Grants{CV: 1, Letter: 1, Spontaneous: 5}},
		{ID: PlanProMonthly, Name: "Pro Mensuel", PriceCents: 999, Currency: "eur", Tier: TierPro,
			Grants: pro, Purchasable: true},
		{ID: PlanProYearly, Name: "Pro Annuel", PriceCents: 9999, Currency: "eur", Tier: TierPro,
			Grants: pro, Purchasable: true},
		{ID: PlanUltraMonthly, Name: "Ultra Mensuel", PriceCents: 1499, Currency: "eur", Tier: TierUltra,
			Grants: ultra, Purchasable: true},
		{ID: PlanUltraYearly, Name: "Ultra Annuel", PriceCents: 14999, Currency: "eur", Tier: TierUltra,
			Grants: ultra, Purchasable: true},
	}
}
