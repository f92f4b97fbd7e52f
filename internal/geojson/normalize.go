package geojson

import "strconv"

// GeneratedGeometryID is the id given to the feature wrapped around a bare
// geometry document.
const GeneratedGeometryID = "generated-0"

// Collection is the canonical feature list of a loaded document. Every
// feature carries an id and order equals input order. A Collection is
// shared read-only; updates produce a new one.
type Collection []Feature

// Find returns the first feature whose id has the given string form.
func (c Collection) Find(id string) (Feature, bool) {
	for _, f := range c {
		if f.ID.String() == id {
			return f, true
		}
	}
	return Feature{}, false
}

// Index returns the position of the first feature with the given id or -1.
func (c Collection) Index(id string) int {
	for i, f := range c {
		if f.ID.String() == id {
			return i
		}
	}
	return -1
}

// Result is the output of Normalize: the canonical document used for
// rendering and the canonical feature list.
type Result struct {
	Document Document
	Features Collection
}

func syntheticID(index int) FeatureID {
	return StringID("feature-" + strconv.Itoa(index))
}

func ensureID(f *Feature, index int) {
	if f.ID.IsZero() {
		f.ID = syntheticID(index)
	}
}

// Normalize converts a document into a canonical collection. It works on a
// deep copy and never mutates doc. Features without an id get
// "feature-<index>"; existing ids are kept as they are, duplicates included.
func Normalize(doc Document) Result {
	d := doc.Clone()

	switch d.Kind {
	case KindCollection:
		features := make(Collection, len(d.Features))
		for i := range d.Features {
			ensureID(&d.Features[i], i)
			features[i] = d.Features[i]
		}
		return Result{Document: d, Features: features}

	case KindFeature:
		if d.Feature == nil {
			return Result{Document: CollectionDocument(nil), Features: Collection{}}
		}
		ensureID(d.Feature, 0)
		return Result{Document: d, Features: Collection{*d.Feature}}

	default:
		wrapper := Feature{
			ID:         StringID(GeneratedGeometryID),
			Geometry:   d.Geometry,
			Properties: map[string]any{},
		}
		return Result{
			Document: CollectionDocument([]Feature{wrapper}),
			Features: Collection{wrapper},
		}
	}
}

// Append returns a new collection holding prev followed by the normalized
// features of next. Ids are not reconciled across the two inputs.
func Append(prev Collection, next Document) Collection {
	added := Normalize(next).Features
	out := make(Collection, 0, len(prev)+len(added))
	out = append(out, prev...)
	return append(out, added...)
}
