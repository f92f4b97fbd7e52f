package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// ErrTooManyCells is returned when covering a bound would exceed the cell
// budget passed to CellsForBound.
var ErrTooManyCells = errors.New("h3: bound needs too many cells")

// average hexagon edge length in km per resolution
var edgeKm = [16]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

const (
	kmPerDegree = 111.32
	// cells are grown by this many edge lengths so that every cell touching
	// the bound has its center inside the filled box
	bufferEdges = 2.0
	maxLat      = 89.0
)

type Mapper struct {
	res int
}

func New(res int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Mapper{res: res}, nil
}

func (m *Mapper) Res() int { return m.res }

func (m *Mapper) CellForPoint(lon, lat float64) (h3.Cell, error) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, m.res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell for (%v,%v): %w", lon, lat, err)
	}
	return c, nil
}

// CellsForBound returns the sorted, unique cells that may contain a point of
// b. Degenerate bounds (a single point or a line) are covered too.
func (m *Mapper) CellsForBound(b orb.Bound, maxCells int) ([]h3.Cell, error) {
	grown := grow(b, edgeKm[m.res]*bufferEdges)
	if b.Max.Lon()-b.Min.Lon() >= 180 {
		return nil, fmt.Errorf("%w: spans %v degrees of longitude", ErrTooManyCells, b.Max.Lon()-b.Min.Lon())
	}
	if maxCells > 0 {
		if n := estimateCells(grown, m.res); n > float64(maxCells) {
			return nil, fmt.Errorf("%w: ~%.0f > %d", ErrTooManyCells, n, maxCells)
		}
	}

	outer := h3.GeoLoop{
		{Lat: grown.Min.Lat(), Lng: grown.Min.Lon()},
		{Lat: grown.Min.Lat(), Lng: grown.Max.Lon()},
		{Lat: grown.Max.Lat(), Lng: grown.Max.Lon()},
		{Lat: grown.Max.Lat(), Lng: grown.Min.Lon()},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, m.res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	// the cells under the corners are added explicitly in case the fill
	// missed a sliver
	for _, p := range []orb.Point{b.Min, b.Max, {b.Min.Lon(), b.Max.Lat()}, {b.Max.Lon(), b.Min.Lat()}, b.Center()} {
		c, err := m.CellForPoint(p.Lon(), p.Lat())
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}

	slices.Sort(cells)
	return slices.Compact(cells), nil
}

func grow(b orb.Bound, km float64) orb.Bound {
	dLat := km / kmPerDegree
	lat := math.Min(maxLat, math.Max(math.Abs(b.Min.Lat()), math.Abs(b.Max.Lat())))
	dLon := km / (kmPerDegree * math.Cos(lat*math.Pi/180))

	return orb.Bound{
		Min: orb.Point{math.Max(-180, b.Min.Lon()-dLon), math.Max(-maxLat, b.Min.Lat()-dLat)},
		Max: orb.Point{math.Min(180, b.Max.Lon()+dLon), math.Min(maxLat, b.Max.Lat()+dLat)},
	}
}

func estimateCells(b orb.Bound, res int) float64 {
	midLat := (b.Min.Lat() + b.Max.Lat()) / 2
	w := (b.Max.Lon() - b.Min.Lon()) * kmPerDegree * math.Cos(midLat*math.Pi/180)
	h := (b.Max.Lat() - b.Min.Lat()) * kmPerDegree
	e := edgeKm[res]
	return w * h / (3 * math.Sqrt(3) / 2 * e * e)
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
