// Package catalog loads the static reference data for a run: the monitored
// product definitions, the segment pricing policies, and the price sources.
// The catalog is read once at startup and passed by value into the pure
// statistics functions; nothing mutates it during a run.
package catalog

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/hidrobio/price-monitor/internal/model"
)

// SourceDefinition describes a single price source and which adapter serves it.
type SourceDefinition struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"` // "stock", "superseis", "casarica", "generic", "vision"
	BaseURL    string   `yaml:"base_url"`
	SearchURL  string   `yaml:"search_url"` // %s is replaced with the query
	Categories []string `yaml:"categories"` // category paths for browse-style sites
	ImagePath  string   `yaml:"image_path"` // bulletin image for vision sources
	Wholesale  bool     `yaml:"wholesale"`
	Enabled    bool     `yaml:"enabled"`
}

// Catalog is the full immutable reference-data set.
type Catalog struct {
	Products []model.ProductDefinition `yaml:"products"`
	Segments []model.SegmentPolicy    `yaml:"segments"`
	Sources  []SourceDefinition       `yaml:"sources"`
}

// Load reads and validates a catalog YAML file. Segments are returned sorted
// by descending rank (highest band first).
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	sort.Slice(c.Segments, func(i, j int) bool {
		return c.Segments[i].Rank > c.Segments[j].Rank
	})

	return &c, nil
}

// Validate checks the catalog invariants: every product's floor covers its
// production cost, and every segment's band fractions are ordered within
// (0, 1].
func (c *Catalog) Validate() error {
	if len(c.Products) == 0 {
		return eris.New("catalog: no products defined")
	}
	if len(c.Segments) == 0 {
		return eris.New("catalog: no segments defined")
	}

	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" {
			return eris.Errorf("catalog: product %q has no id", p.CanonicalName)
		}
		if seen[p.ID] {
			return eris.Errorf("catalog: duplicate product id %s", p.ID)
		}
		seen[p.ID] = true
		if p.AbsoluteFloor <= p.ProductionCost {
			return eris.Errorf("catalog: product %s: absolute floor %d must exceed production cost %d",
				p.ID, p.AbsoluteFloor, p.ProductionCost)
		}
		if len(p.Aliases) == 0 {
			return eris.Errorf("catalog: product %s has no aliases", p.ID)
		}
	}

	ranks := make(map[int]bool, len(c.Segments))
	for _, s := range c.Segments {
		if s.MinPct <= 0 || s.MinPct > s.TargetPct || s.TargetPct > s.MaxPct || s.MaxPct > 1 {
			return eris.Errorf("catalog: segment %s: band fractions must satisfy 0 < min <= target <= max <= 1 (got %.2f/%.2f/%.2f)",
				s.ID, s.MinPct, s.TargetPct, s.MaxPct)
		}
		if ranks[s.Rank] {
			return eris.Errorf("catalog: duplicate segment rank %d", s.Rank)
		}
		ranks[s.Rank] = true
	}

	for _, src := range c.Sources {
		if src.ID == "" || src.Kind == "" {
			return eris.Errorf("catalog: source %q missing id or kind", src.Name)
		}
	}

	return nil
}

// Product returns the product definition for an id, or nil.
func (c *Catalog) Product(id string) *model.ProductDefinition {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i]
		}
	}
	return nil
}

// EnabledSources returns the sources enabled for collection.
func (c *Catalog) EnabledSources() []SourceDefinition {
	var out []SourceDefinition
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
