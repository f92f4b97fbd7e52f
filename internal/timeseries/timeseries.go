// Package timeseries derives altitude and speed series from track
// geometries whose positions carry [lon, lat, altitude, epochMillis].
package timeseries

import (
	"math"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
)

const (
	// FlightLevelDivisor turns altitude into the flight level figure shown
	// on the altitude chart.
	FlightLevelDivisor = 100.0
	KmPerNauticalMile  = 1.852
	millisPerHour      = 3_600_000.0

	// timestamps must fit int64 nanoseconds since the epoch
	maxMillis = math.MaxInt64 / int64(time.Millisecond)
)

type Kind string

const (
	KindAltitude Kind = "altitude"
	KindSpeed    Kind = "speed"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindAltitude, KindSpeed:
		return Kind(s), true
	}
	return "", false
}

type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// sample is a qualifying track position
type sample struct {
	pos  orb.Point
	alt  float64
	tsMs float64
	at   time.Time
}

func (s sample) time() time.Time { return s.at }

// millisTime converts epoch milliseconds without going through a float
// nanosecond count. Values outside the int64 nanosecond range are rejected.
func millisTime(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || ms >= float64(maxMillis) || ms <= -float64(maxMillis) {
		return time.Time{}, false
	}
	whole := math.Floor(ms)
	frac := time.Duration(math.Round((ms - whole) * float64(time.Millisecond)))
	return time.UnixMilli(int64(whole)).Add(frac).UTC(), true
}

// returns the qualifying samples of every line of a LineString or
// MultiLineString geometry; any other geometry yields no lines
func lines(f geojson.Feature) [][]sample {
	g := f.Geometry
	if g == nil || len(g.Coordinates) == 0 {
		return nil
	}
	coords := gjson.ParseBytes(g.Coordinates)

	switch g.Type {
	case geojson.TypeLineString:
		return [][]sample{line(coords)}
	case geojson.TypeMultiLineString:
		var out [][]sample
		coords.ForEach(func(_, l gjson.Result) bool {
			out = append(out, line(l))
			return true
		})
		return out
	default:
		return nil
	}
}

// positions with fewer than four numeric components, or a timestamp out
// of range, are skipped
func line(l gjson.Result) []sample {
	var out []sample
	l.ForEach(func(_, p gjson.Result) bool {
		c := p.Array()
		if len(c) < 4 {
			return true
		}
		for _, n := range c[:4] {
			if n.Type != gjson.Number {
				return true
			}
		}
		ms := c[3].Float()
		at, ok := millisTime(ms)
		if !ok {
			return true
		}
		out = append(out, sample{
			pos:  orb.Point{c[0].Float(), c[1].Float()},
			alt:  c[2].Float(),
			tsMs: ms,
			at:   at,
		})
		return true
	})
	return out
}

func sortByTime(pts []Point) []Point {
	slices.SortStableFunc(pts, func(a, b Point) int { return a.Time.Compare(b.Time) })
	return pts
}

// Altitude returns altitude/100 per qualifying position, sorted by time.
func Altitude(f geojson.Feature) []Point {
	var out []Point
	for _, l := range lines(f) {
		for _, s := range l {
			out = append(out, Point{Time: s.time(), Value: s.alt / FlightLevelDivisor})
		}
	}
	return sortByTime(out)
}

// Speed returns ground speed in knots between consecutive positions of each
// line, stamped at the later position. Pairs whose time does not increase
// are skipped. A line that produced any point also gets a leading point at
// its first timestamp carrying the first computed speed.
func Speed(f geojson.Feature) []Point {
	var out []Point
	for _, l := range lines(f) {
		out = append(out, lineSpeed(l)...)
	}
	return sortByTime(out)
}

func lineSpeed(l []sample) []Point {
	var pts []Point
	for i := 1; i < len(l); i++ {
		prev, cur := l[i-1], l[i]
		if cur.tsMs <= prev.tsMs {
			continue
		}
		km := geo.DistanceHaversine(prev.pos, cur.pos) / 1000
		hours := (cur.tsMs - prev.tsMs) / millisPerHour
		pts = append(pts, Point{Time: cur.time(), Value: km / hours / KmPerNauticalMile})
	}
	if len(pts) == 0 {
		return nil
	}
	lead := Point{Time: l[0].time(), Value: pts[0].Value}
	return append([]Point{lead}, pts...)
}
