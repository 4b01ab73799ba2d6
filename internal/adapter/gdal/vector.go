package gdal

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/paulmach/orb/geojson"
)

// VectorSource implements catalog.GeometrySource for any OGR vector format,
// typically the HydroLAKES or reach buffer shapefiles.
type VectorSource struct {
	Path string
}

// NewVectorSource returns a source reading the first layer of path.
func NewVectorSource(path string) *VectorSource {
	register()
	return &VectorSource{Path: path}
}

// Geometries implements catalog.GeometrySource. Geometries are reprojected
// to EPSG:4326 when the layer uses another reference system.
func (v *VectorSource) Geometries(ctx context.Context, s catalog.Schema) (map[string]catalog.Geometry, error) {
	ds, err := godal.Open(v.Path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("open geometries %s: %w", v.Path, err)
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s has no vector layer", v.Path)
	}
	layer := layers[0]

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("wgs84 reference: %w", err)
	}
	defer wgs84.Close()
	sr := layer.SpatialRef()
	reproject := sr != nil && !sr.IsSame(wgs84)

	out := make(map[string]catalog.Geometry)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		g, id, err := readFeature(feat, s, reproject, wgs84)
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Path, err)
		}
		if _, dup := out[id]; !dup {
			out[id] = g
		}
	}
	return out, nil
}

func readFeature(feat *godal.Feature, s catalog.Schema, reproject bool, wgs84 *godal.SpatialRef) (catalog.Geometry, string, error) {
	fields := feat.Fields()
	idField, ok := fields[s.IDField]
	if !ok {
		return catalog.Geometry{}, "", fmt.Errorf("missing field %q", s.IDField)
	}
	id := catalog.NormalizeID(idField.String())

	geom := feat.Geometry()
	if geom == nil {
		return catalog.Geometry{}, id, nil
	}
	defer geom.Close()
	if reproject {
		if err := geom.Reproject(wgs84); err != nil {
			return catalog.Geometry{}, "", fmt.Errorf("reproject feature %s: %w", id, err)
		}
	}
	gj, err := geom.GeoJSON()
	if err != nil {
		return catalog.Geometry{}, "", fmt.Errorf("feature %s geometry: %w", id, err)
	}
	parsed, err := geojson.UnmarshalGeometry([]byte(gj))
	if err != nil {
		return catalog.Geometry{}, "", fmt.Errorf("feature %s geometry: %w", id, err)
	}

	out := catalog.Geometry{Geometry: parsed.Geometry()}
	if s.AreaField != "" {
		if area, ok := fields[s.AreaField]; ok {
			out.Area = area.Float()
			out.HasArea = true
		}
	}
	return out, id, nil
}
