// Package bounds computes lon/lat bounding boxes of features and feature
// collections.
package bounds

import (
	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
)

// accumulates positions into a bound, tracking whether any were seen
type acc struct {
	b     orb.Bound
	found bool
}

func (a *acc) addPoint(p orb.Point) {
	if !a.found {
		a.b = orb.Bound{Min: p, Max: p}
		a.found = true
		return
	}
	a.b = a.b.Extend(p)
}

func (a *acc) addBound(b orb.Bound) {
	if !a.found {
		a.b = b
		a.found = true
		return
	}
	a.b = a.b.Union(b)
}

// descends nested coordinate arrays until it reaches a position; only the
// first two numbers (lon, lat) count, altitude and time are ignored
func (a *acc) walk(v gjson.Result) {
	if !v.IsArray() {
		return
	}
	items := v.Array()
	if len(items) == 0 {
		return
	}
	if items[0].Type == gjson.Number {
		if len(items) < 2 || items[1].Type != gjson.Number {
			return
		}
		a.addPoint(orb.Point{items[0].Float(), items[1].Float()})
		return
	}
	for _, it := range items {
		a.walk(it)
	}
}

// OfGeometry returns the bound of g. ok is false when g has no positions.
// Longitudes are compared as plain numbers, geometries crossing the
// antimeridian get a near-global box.
func OfGeometry(g *geojson.Geometry) (b orb.Bound, ok bool) {
	var a acc
	a.geometry(g)
	return a.b, a.found
}

// only direct members of a GeometryCollection are visited; a nested
// collection has no coordinates of its own and contributes nothing
func (a *acc) geometry(g *geojson.Geometry) {
	if g == nil {
		return
	}
	if g.Type == geojson.TypeGeometryCollection {
		for _, m := range g.Geometries {
			if m != nil {
				a.coordinates(m)
			}
		}
		return
	}
	a.coordinates(g)
}

func (a *acc) coordinates(g *geojson.Geometry) {
	if len(g.Coordinates) == 0 {
		return
	}
	a.walk(gjson.ParseBytes(g.Coordinates))
}

// Of returns the bound of a single feature.
func Of(f geojson.Feature) (orb.Bound, bool) {
	return OfGeometry(f.Geometry)
}

// OfCollection unions the bounds of all features. ok is false for an empty
// list or when no feature has positions.
func OfCollection(fs []geojson.Feature) (orb.Bound, bool) {
	var a acc
	for _, f := range fs {
		if b, ok := Of(f); ok {
			a.addBound(b)
		}
	}
	return a.b, a.found
}
