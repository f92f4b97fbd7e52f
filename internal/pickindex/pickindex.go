// Package pickindex answers "which features are under this point" for map
// hover and click, using H3 cells covering each feature's bounds.
package pickindex

import (
	"errors"
	"slices"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geojson-viewer/internal/bounds"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/mapper"
	h3mapper "github.com/mohammed-shakir/geojson-viewer/internal/mapper/h3"
)

// DefaultMaxCellsPerFeature bounds the polyfill of a single feature.
// Features needing more cells are checked on every pick.
const DefaultMaxCellsPerFeature = 4096

// Index is immutable once built and safe for concurrent use.
type Index struct {
	m        mapper.Interface
	features geojson.Collection
	bounds   []orb.Bound
	cells    map[h3.Cell][]int
	// positions of features too large to index
	global []int
}

func Build(fs geojson.Collection, m mapper.Interface, maxCells int) (*Index, error) {
	if maxCells <= 0 {
		maxCells = DefaultMaxCellsPerFeature
	}
	idx := &Index{
		m:        m,
		features: fs,
		bounds:   make([]orb.Bound, len(fs)),
		cells:    make(map[h3.Cell][]int),
	}
	for i, f := range fs {
		b, ok := bounds.Of(f)
		if !ok {
			// nothing to pick
			idx.bounds[i] = orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}
			continue
		}
		idx.bounds[i] = b
		cells, err := m.CellsForBound(b, maxCells)
		if errors.Is(err, h3mapper.ErrTooManyCells) {
			idx.global = append(idx.global, i)
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			idx.cells[c] = append(idx.cells[c], i)
		}
	}
	return idx, nil
}

// Pick returns, in collection order, the features whose bounds contain
// (lon, lat).
func (x *Index) Pick(lon, lat float64) (geojson.Collection, error) {
	c, err := x.m.CellForPoint(lon, lat)
	if err != nil {
		return nil, err
	}
	p := orb.Point{lon, lat}

	cand := slices.Concat(x.cells[c], x.global)
	slices.Sort(cand)
	cand = slices.Compact(cand)

	out := geojson.Collection{}
	for _, i := range cand {
		if x.bounds[i].Contains(p) {
			out = append(out, x.features[i])
		}
	}
	return out, nil
}

func (x *Index) Len() int { return len(x.features) }

// Cells reports how many distinct cells hold at least one feature.
func (x *Index) Cells() int { return len(x.cells) }
