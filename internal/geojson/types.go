// Package geojson parses GeoJSON documents and normalizes them into
// identity-stable feature collections.
package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
	TypeFeature            = "Feature"
	TypeFeatureCollection  = "FeatureCollection"
)

func isGeometryType(t string) bool {
	switch t {
	case TypePoint, TypeMultiPoint, TypeLineString, TypeMultiLineString,
		TypePolygon, TypeMultiPolygon, TypeGeometryCollection:
		return true
	}
	return false
}

// Geometry keeps coordinates as raw JSON so that positions carrying
// altitude and time components survive untouched.
type Geometry struct {
	Type        string
	Coordinates json.RawMessage
	Geometries  []*Geometry
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Type == TypeGeometryCollection {
		gs := g.Geometries
		if gs == nil {
			gs = []*Geometry{}
		}
		return json.Marshal(struct {
			Type       string      `json:"type"`
			Geometries []*Geometry `json:"geometries"`
		}{g.Type, gs})
	}
	coords := g.Coordinates
	if len(coords) == 0 {
		coords = json.RawMessage("[]")
	}
	return json.Marshal(struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}{g.Type, coords})
}

func (g *Geometry) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type        string            `json:"type"`
		Coordinates json.RawMessage   `json:"coordinates"`
		Geometries  []json.RawMessage `json:"geometries"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse geometry: %w", err)
	}
	if !isGeometryType(raw.Type) {
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}

	out := Geometry{Type: raw.Type}
	if raw.Type == TypeGeometryCollection {
		out.Geometries = make([]*Geometry, 0, len(raw.Geometries))
		for i, gr := range raw.Geometries {
			var member Geometry
			if err := json.Unmarshal(gr, &member); err != nil {
				return fmt.Errorf("geometries[%d]: %w", i, err)
			}
			out.Geometries = append(out.Geometries, &member)
		}
		*g = out
		return nil
	}

	coords := bytes.TrimSpace(raw.Coordinates)
	if len(coords) > 0 && !bytes.Equal(coords, []byte("null")) && coords[0] != '[' {
		return fmt.Errorf("%s coordinates must be an array", raw.Type)
	}
	if len(coords) > 0 && coords[0] == '[' {
		out.Coordinates = append(json.RawMessage(nil), coords...)
	}
	*g = out
	return nil
}

// Clone returns a deep copy of g.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	out := &Geometry{Type: g.Type}
	if g.Coordinates != nil {
		out.Coordinates = append(json.RawMessage(nil), g.Coordinates...)
	}
	if g.Geometries != nil {
		out.Geometries = make([]*Geometry, len(g.Geometries))
		for i, m := range g.Geometries {
			out.Geometries[i] = m.Clone()
		}
	}
	return out
}

type Feature struct {
	ID         FeatureID
	Geometry   *Geometry
	Properties map[string]any
}

func (f Feature) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type       string         `json:"type"`
		ID         *FeatureID     `json:"id,omitempty"`
		Geometry   *Geometry      `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	w := wire{Type: TypeFeature, Geometry: f.Geometry, Properties: f.Properties}
	if !f.ID.IsZero() {
		id := f.ID
		w.ID = &id
	}
	return json.Marshal(w)
}

func (f *Feature) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type       string          `json:"type"`
		ID         FeatureID       `json:"id"`
		Geometry   *Geometry       `json:"geometry"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse feature: %w", err)
	}
	if raw.Type != TypeFeature {
		return fmt.Errorf(`type is %q (want "Feature")`, raw.Type)
	}

	props, err := decodeProperties(raw.Properties)
	if err != nil {
		return err
	}
	*f = Feature{ID: raw.ID, Geometry: raw.Geometry, Properties: props}
	return nil
}

// numbers are kept as json.Number so property values round-trip exactly
func decodeProperties(b json.RawMessage) (map[string]any, error) {
	trim := bytes.TrimSpace(b)
	if len(trim) == 0 || bytes.Equal(trim, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("properties must be an object: %w", err)
	}
	return props, nil
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	return Feature{
		ID:         f.ID,
		Geometry:   f.Geometry.Clone(),
		Properties: cloneProperties(f.Properties),
	}
}

func cloneProperties(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneProperties(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

type Kind int

const (
	KindGeometry Kind = iota
	KindFeature
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindGeometry:
		return "geometry"
	case KindFeature:
		return "feature"
	case KindCollection:
		return "collection"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Document is a parsed GeoJSON text. Exactly one of Geometry, Feature or
// Features is meaningful, selected by Kind.
type Document struct {
	Kind     Kind
	Geometry *Geometry
	Feature  *Feature
	Features []Feature
}

func GeometryDocument(g *Geometry) Document { return Document{Kind: KindGeometry, Geometry: g} }

func FeatureDocument(f Feature) Document { return Document{Kind: KindFeature, Feature: &f} }

func CollectionDocument(fs []Feature) Document {
	return Document{Kind: KindCollection, Features: fs}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{Kind: d.Kind, Geometry: d.Geometry.Clone()}
	if d.Feature != nil {
		f := d.Feature.Clone()
		out.Feature = &f
	}
	if d.Features != nil {
		out.Features = make([]Feature, len(d.Features))
		for i := range d.Features {
			out.Features[i] = d.Features[i].Clone()
		}
	}
	return out
}

func (d Document) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindGeometry:
		if d.Geometry == nil {
			return []byte("null"), nil
		}
		return json.Marshal(d.Geometry)
	case KindFeature:
		if d.Feature == nil {
			return []byte("null"), nil
		}
		return json.Marshal(d.Feature)
	default:
		fs := d.Features
		if fs == nil {
			fs = []Feature{}
		}
		return json.Marshal(struct {
			Type     string    `json:"type"`
			Features []Feature `json:"features"`
		}{TypeFeatureCollection, fs})
	}
}
