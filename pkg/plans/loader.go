package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Version string `yaml:"version"`
	Plans   []Plan `yaml:"plans"`
}

// LoadFile reads a catalog from a YAML file of the form
//
//	version: "2024-06"
//	plans:
//	  - id: pro_monthly
//	    name: Pro Mensuel
//	    price_cents: 999
//	    currency: eur
//	    tier: pro
//	    purchasable: true
//	    grants: {cv: 100, letter: 100, spontaneous: 500}
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	for i := range f.Plans {
		if f.Plans[i].Currency == "" {
			f.Plans[i].Currency = "eur"
		}
	}
	return NewCatalog(f.Version, f.Plans...)
}
