// Package mapper converts between coordinates and H3 cells.
package mapper

import (
	h3 "github.com/uber/h3-go/v4"

	"github.com/paulmach/orb"
)

type Interface interface {
	Res() int
	CellForPoint(lon, lat float64) (h3.Cell, error)
	CellsForBound(b orb.Bound, maxCells int) ([]h3.Cell, error)
}
