package catalog

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry is the vector record of one feature.
type Geometry struct {
	Geometry orb.Geometry
	Area     float64
	HasArea  bool
}

// GeometrySource loads feature geometries keyed by normalized feature ID.
type GeometrySource interface {
	Geometries(ctx context.Context, s Schema) (map[string]Geometry, error)
}

// GeoJSONSource reads a GeoJSON FeatureCollection in geographic coordinates.
type GeoJSONSource struct {
	Path string
}

// Geometries implements GeometrySource.
func (g GeoJSONSource) Geometries(_ context.Context, s Schema) (map[string]Geometry, error) {
	data, err := os.ReadFile(g.Path)
	if err != nil {
		return nil, fmt.Errorf("read geometries: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geometries %s: %w", g.Path, err)
	}

	out := make(map[string]Geometry, len(fc.Features))
	for i, f := range fc.Features {
		raw, ok := f.Properties[s.IDField]
		if !ok {
			return nil, fmt.Errorf("feature %d of %s: missing property %q", i, g.Path, s.IDField)
		}
		id := NormalizeID(propertyString(raw))
		if _, dup := out[id]; dup {
			continue
		}
		geom := Geometry{Geometry: f.Geometry}
		if s.AreaField != "" {
			if area, ok := propertyFloat(f.Properties[s.AreaField]); ok {
				geom.Area = area
				geom.HasArea = true
			}
		}
		out[id] = geom
	}
	return out, nil
}

func propertyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func propertyFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
