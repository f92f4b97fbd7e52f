package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FeatureID is a GeoJSON feature identifier. It is either a string or a
// number; the zero value means "no id".
type FeatureID struct {
	text string
	num  bool
	set  bool
}

func StringID(s string) FeatureID { return FeatureID{text: s, set: true} }

func NumberID(n json.Number) FeatureID { return FeatureID{text: n.String(), num: true, set: true} }

func IntID(n int) FeatureID { return FeatureID{text: strconv.Itoa(n), num: true, set: true} }

func (id FeatureID) IsZero() bool { return !id.set }

func (id FeatureID) IsNumber() bool { return id.num }

// String returns the form used for identity comparisons. Numeric and string
// ids with the same text compare equal.
func (id FeatureID) String() string { return id.text }

// Equal compares ids by their string form.
func (id FeatureID) Equal(other FeatureID) bool {
	return id.set && other.set && id.text == other.text
}

func (id FeatureID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.set:
		return []byte("null"), nil
	case id.num:
		return []byte(id.text), nil
	default:
		return json.Marshal(id.text)
	}
}

// UnmarshalJSON accepts both string and number ids, null leaves the id unset
func (id *FeatureID) UnmarshalJSON(b []byte) error {
	trim := bytes.TrimSpace(b)
	if len(trim) == 0 || bytes.Equal(trim, []byte("null")) {
		*id = FeatureID{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("parse id: %w", err)
	}
	switch t := v.(type) {
	case string:
		*id = StringID(t)
	case json.Number:
		*id = NumberID(t)
	default:
		return fmt.Errorf("id must be string or number (got %T)", v)
	}
	return nil
}
