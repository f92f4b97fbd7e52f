package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned for text that is not a usable GeoJSON
// document. Callers reject the whole load when they see it.
var ErrInvalidDocument = errors.New("invalid document")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Parse decodes a complete GeoJSON text into a Document, dispatching on the
// top-level "type" member.
func Parse(raw []byte) (Document, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return Document{}, invalid("parse json: %v", err)
	}

	var typ string
	if tRaw, ok := root["type"]; !ok {
		return Document{}, invalid(`missing required member "type"`)
	} else if err := json.Unmarshal(tRaw, &typ); err != nil {
		return Document{}, invalid(`parse "type": %v`, err)
	}

	switch {
	case typ == TypeFeatureCollection:
		featuresRaw, ok := root["features"]
		if !ok {
			return Document{}, invalid(`missing required member "features"`)
		}
		var feats []json.RawMessage
		if err := json.Unmarshal(featuresRaw, &feats); err != nil {
			return Document{}, invalid(`"features" must be an array: %v`, err)
		}
		out := make([]Feature, 0, len(feats))
		for i, fr := range feats {
			var f Feature
			if err := json.Unmarshal(fr, &f); err != nil {
				return Document{}, invalid("feature %d: %v", i, err)
			}
			out = append(out, f)
		}
		return CollectionDocument(out), nil

	case typ == TypeFeature:
		var f Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return Document{}, invalid("%v", err)
		}
		return FeatureDocument(f), nil

	case isGeometryType(typ):
		var g Geometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return Document{}, invalid("%v", err)
		}
		return GeometryDocument(&g), nil

	default:
		return Document{}, invalid("unsupported top-level type %q", typ)
	}
}
