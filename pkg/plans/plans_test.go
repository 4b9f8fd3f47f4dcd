package plans

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		id     string
		price  int64
		tier   Tier
		grants Grants
		buy    bool
	}{
		{PlanFree, 0, TierFree, Grants{1, 1, 5}, false},
		{PlanProMonthly, 999, TierPro, Grants{100, 100, 500}, true},
		{PlanProYearly, 9999, TierPro, Grants{100, 100, 500}, true},
		{PlanUltraMonthly, 1499, TierUltra, Grants{99999, 99999, 99999}, true},
		{PlanUltraYearly, 14999, TierUltra, Grants{99999, 99999, 99999}, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := c.Lookup(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.price, p.PriceCents)
			assert.Equal(t, tt.tier, p.Tier)
			assert.Equal(t, tt.grants, p.Grants)
			assert.Equal(t, tt.buy, p.Purchasable)
			assert.Equal(t, "eur", p.Currency)
		})
	}

	assert.Len(t, c.List(), 5)
	assert.Len(t, c.Purchasable(), 4)
	assert.Equal(t, PlanProMonthly, c.Purchasable()[0].ID)
}

func TestLookupUnknown(t *testing.T) {
	_, err := DefaultCatalog().Lookup("enterprise")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
}

func TestTierOrdering(t *testing.T) {
	assert.Equal(t, TierPro, Max(TierFree, TierPro))
	assert.Equal(t, TierUltra, Max(TierUltra, TierPro))
	assert.Equal(t, TierPro, Max(TierPro, TierFree))
	assert.False(t, Tier("gold").Valid())
}

func TestNewCatalogValidation(t *testing.T) {
	valid := Plan{ID: "a", Name: "A", PriceCents: 100, Currency: "eur", Tier: TierPro, Purchasable: true}

	_, err := NewCatalog("v", valid, valid)
	assert.Error(t, err, "duplicate ids must be rejected")

	bad := valid
	bad.Tier = "gold"
	_, err = NewCatalog("v", bad)
	assert.Error(t, err)

	free := valid
	free.PriceCents = 0
	_, err = NewCatalog("v", free)
	assert.Error(t, err, "purchasable plan without price")

	neg := valid
	neg.Grants.CV = -1
	_, err = NewCatalog("v", neg)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	doc := `
version: "2024-06"
plans:
  - id: starter
    name: Starter
    price_cents: 499
    tier: pro
    purchasable: true
    grants: {cv: 10, letter: 10, spontaneous: 50}
`
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-06", c.Version())

	p, err := c.Lookup("starter")
	require.NoError(t, err)
	assert.Equal(t, "eur", p.Currency)
	assert.Equal(t, Grants{CV: 10, Letter: 10, Spontaneous: 50}, p.Grants)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("plans: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("::not yaml"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
