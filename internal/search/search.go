// Package search filters the feature list by a query and derives the text
// the side panel shows for a feature.
package search

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
)

// Filter returns the features whose id, property keys or property values
// match query as a case-insensitive regular expression. An empty query
// matches everything; a query that does not compile matches nothing.
func Filter(fs geojson.Collection, query string) geojson.Collection {
	if query == "" {
		return fs
	}
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		return geojson.Collection{}
	}
	out := geojson.Collection{}
	for _, f := range fs {
		if matches(re, f) {
			out = append(out, f)
		}
	}
	return out
}

func matches(re *regexp.Regexp, f geojson.Feature) bool {
	if re.MatchString(f.ID.String()) {
		return true
	}
	for k, v := range f.Properties {
		if re.MatchString(k) || re.MatchString(Stringify(v)) {
			return true
		}
	}
	return false
}

// Label is the display name of a feature: its "name" property, else its
// "key" property, else "Feature <id>".
func Label(f geojson.Feature) string {
	for _, k := range []string{"name", "key"} {
		if v, ok := f.Properties[k]; ok && truthy(v) {
			return Stringify(v)
		}
	}
	return "Feature " + f.ID.String()
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DisplayProperties lists the id followed by every property in key order.
func DisplayProperties(f geojson.Feature) []Property {
	keys := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Property, 0, len(keys)+1)
	out = append(out, Property{Key: "ID", Value: f.ID.String()})
	for _, k := range keys {
		out = append(out, Property{Key: k, Value: Stringify(f.Properties[k])})
	}
	return out
}

// Stringify renders a decoded property value as text. Objects and arrays
// are rendered as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0
	default:
		return true
	}
}
