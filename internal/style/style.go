// Package style resolves the colors a renderer should use for a feature
// from its styling properties and the current selection.
package style

import (
	"encoding/json"
	"math"

	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
)

// Color is an RGB or RGBA tuple.
type Color []float64

const (
	PropLineColor         = "line_color"
	PropFillColor         = "fill_color"
	PropSelectedLineColor = "selected_line_color"
	PropHoverLineColor    = "hover_line_color"
)

var (
	DefaultLine         = Color{255, 255, 255, 255}
	DefaultFill         = Color{0, 120, 255, 100}
	DefaultSelectedLine = Color{255, 0, 0, 255}
	SelectedFill        = Color{255, 0, 0, 200}
	DefaultHoverLine    = Color{0, 255, 0, 200}
	HoverFill           = Color{0, 255, 0, 100}
)

// ColorOf returns v as a Color when it is an array of 3 or 4 numbers and
// def otherwise. Values are not range checked.
func ColorOf(v any, def Color) Color {
	arr, ok := v.([]any)
	if !ok || (len(arr) != 3 && len(arr) != 4) {
		return def
	}
	out := make(Color, len(arr))
	for i, c := range arr {
		n, ok := number(c)
		if !ok {
			return def
		}
		out[i] = n
	}
	return out
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// AdjustBrightness scales the RGB channels by factor, rounding and clamping
// them to [0, 255]. Alpha is kept as is.
func AdjustBrightness(c Color, factor float64) Color {
	if len(c) < 3 {
		return c
	}
	out := make(Color, len(c))
	for i := 0; i < 3; i++ {
		out[i] = math.Min(255, math.Max(0, math.Round(c[i]*factor)))
	}
	if len(c) == 4 {
		out[3] = c[3]
	}
	return out
}

type State int

const (
	Normal State = iota
	Highlighted
	Selected
)

func (s State) String() string {
	switch s {
	case Selected:
		return "selected"
	case Highlighted:
		return "highlighted"
	default:
		return "normal"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Style struct {
	State State `json:"state"`
	Line  Color `json:"line_color"`
	Fill  Color `json:"fill_color"`
	// Overlay is set when the feature is drawn again on top of the base
	// layer.
	Overlay bool `json:"overlay"`
	// Halo is drawn under an overlay line so it reads on any basemap.
	Halo Color `json:"halo_color,omitempty"`
}

// HaloFactor darkens an overlay line color into its halo.
const HaloFactor = 0.5

// Resolve returns the style of f given the selected and highlighted ids.
// Selection wins over highlight.
func Resolve(f geojson.Feature, selectedID, highlightedID string) Style {
	id := f.ID.String()
	props := f.Properties
	switch {
	case selectedID != "" && id == selectedID:
		line := ColorOf(props[PropSelectedLineColor], DefaultSelectedLine)
		return Style{
			State:   Selected,
			Line:    line,
			Fill:    SelectedFill,
			Overlay: true,
			Halo:    AdjustBrightness(line, HaloFactor),
		}
	case highlightedID != "" && id == highlightedID:
		line := ColorOf(props[PropHoverLineColor], DefaultHoverLine)
		return Style{
			State:   Highlighted,
			Line:    line,
			Fill:    HoverFill,
			Overlay: true,
			Halo:    AdjustBrightness(line, HaloFactor),
		}
	default:
		return Style{
			State: Normal,
			Line:  ColorOf(props[PropLineColor], DefaultLine),
			Fill:  ColorOf(props[PropFillColor], DefaultFill),
		}
	}
}
