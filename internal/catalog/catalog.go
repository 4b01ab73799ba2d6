// Package catalog joins the wildfire event table with the feature geometry
// dataset into the immutable feature list the runner iterates.
package catalog

import (
	"context"
	"fmt"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
)

// Catalog is the ordered, read-only set of features of one run.
type Catalog struct {
	schema     Schema
	features   []domain.Feature
	index      map[string]int
	missing    []string
	duplicates []string
}

// New joins event rows with geometries. Rows keep catalog order. Rows whose
// ID has no geometry are left out and reported by Missing; repeated IDs keep
// their first row and are reported by Duplicates.
func New(rows []EventRow, geoms map[string]Geometry, s Schema) *Catalog {
	c := &Catalog{schema: s, index: make(map[string]int, len(rows))}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if seen[r.ID] {
			c.duplicates = append(c.duplicates, r.ID)
			continue
		}
		seen[r.ID] = true

		g, ok := geoms[r.ID]
		if !ok || g.Geometry == nil {
			c.missing = append(c.missing, r.ID)
			continue
		}
		c.index[r.ID] = len(c.features)
		c.features = append(c.features, domain.Feature{
			ID:         r.ID,
			Geometry:   g.Geometry,
			Area:       g.Area,
			HasArea:    g.HasArea,
			EventStart: r.Start,
			EventEnd:   r.End,
		})
	}
	return c
}

// Load reads the event catalog and the geometries and joins them.
func Load(ctx context.Context, eventsPath string, src GeometrySource, s Schema) (*Catalog, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	rows, err := LoadEvents(eventsPath, s)
	if err != nil {
		return nil, err
	}
	geoms, err := src.Geometries(ctx, s)
	if err != nil {
		return nil, err
	}
	return New(rows, geoms, s), nil
}

// Schema returns the schema the catalog was built with.
func (c *Catalog) Schema() Schema { return c.schema }

// Lookup returns the feature with the given ID.
func (c *Catalog) Lookup(id string) (domain.Feature, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Feature{}, false
	}
	return c.features[i], true
}

// Features returns the features in catalog order.
func (c *Catalog) Features() []domain.Feature {
	out := make([]domain.Feature, len(c.features))
	copy(out, c.features)
	return out
}

func (c *Catalog) Len() int { return len(c.features) }

// Missing returns the IDs of event rows without a geometry.
func (c *Catalog) Missing() []string { return c.missing }

// Duplicates returns IDs that appeared in more than one event row.
func (c *Catalog) Duplicates() []string { return c.duplicates }
