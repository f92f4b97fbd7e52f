// Package viewport derives map camera placement from bounding boxes and the
// usable map size.
package viewport

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// TileSize is the world size in pixels at zoom 0.
	TileSize = 512.0
	// MaxFitZoom is the ceiling of the fit computation; degenerate boxes
	// (a single point) end up here.
	MaxFitZoom = 24.0
	// MaxDocumentZoom caps the camera when fitting a whole document.
	MaxDocumentZoom = 18.0

	DocumentPadding = 50.0
	FeaturePadding  = 100.0

	// CollapsedPanelWidth is the width left to the side panel rail when it
	// is collapsed.
	CollapsedPanelWidth = 40.0

	maxLatitude = 85.05112878

	InterpolatorFlyTo = "fly-to"
	FlyToDuration     = time.Second
)

// Transition is a hint for the renderer, the camera itself never animates.
type Transition struct {
	Duration     time.Duration `json:"duration"`
	Interpolator string        `json:"interpolator"`
}

type Camera struct {
	Longitude  float64     `json:"longitude"`
	Latitude   float64     `json:"latitude"`
	Zoom       float64     `json:"zoom"`
	Pitch      float64     `json:"pitch"`
	Bearing    float64     `json:"bearing"`
	Transition *Transition `json:"transition,omitempty"`
}

// Layout is the window and side panel geometry the map shares space with.
type Layout struct {
	WindowWidth       float64 `json:"window_width"`
	WindowHeight      float64 `json:"window_height"`
	SidePanelWidth    float64 `json:"side_panel_width"`
	SidePanelExpanded bool    `json:"side_panel_expanded"`
}

// MapSize returns the pixel size left for the map.
func (l Layout) MapSize() (width, height float64) {
	panel := CollapsedPanelWidth
	if l.SidePanelExpanded {
		panel = l.SidePanelWidth
	}
	return math.Max(l.WindowWidth-panel, 0), math.Max(l.WindowHeight, 0)
}

// world pixels per mercator meter at zoom 0
var worldScale = TileSize / (2 * math.Pi * orb.EarthRadius)

func clampLat(lat float64) float64 {
	return math.Max(-maxLatitude, math.Min(maxLatitude, lat))
}

// FitBounds returns the center and the zoom at which b fits inside a
// width×height viewport with padding pixels kept free on every side.
func FitBounds(b orb.Bound, width, height, padding float64) Camera {
	nw := project.WGS84.ToMercator(orb.Point{b.Min.Lon(), clampLat(b.Max.Lat())})
	se := project.WGS84.ToMercator(orb.Point{b.Max.Lon(), clampLat(b.Min.Lat())})

	sizeX := math.Abs(se.X()-nw.X()) * worldScale
	sizeY := math.Abs(se.Y()-nw.Y()) * worldScale

	targetX := math.Max(width-2*padding, 1)
	targetY := math.Max(height-2*padding, 1)

	scale := math.Min(targetX/sizeX, targetY/sizeY)
	zoom := math.Min(MaxFitZoom, math.Log2(scale))
	if zoom < 0 || math.IsNaN(zoom) {
		zoom = 0
	}

	center := project.Mercator.ToWGS84(orb.Point{(nw.X() + se.X()) / 2, (nw.Y() + se.Y()) / 2})
	return Camera{Longitude: center.Lon(), Latitude: center.Lat(), Zoom: zoom}
}

func flyTo() *Transition {
	return &Transition{Duration: FlyToDuration, Interpolator: InterpolatorFlyTo}
}

// keeps pitch and bearing of the previous camera
func place(prev, fit Camera) Camera {
	prev.Longitude = fit.Longitude
	prev.Latitude = fit.Latitude
	prev.Zoom = fit.Zoom
	prev.Transition = flyTo()
	return prev
}

// FitDocument fits a whole loaded document, capping zoom at MaxDocumentZoom.
func FitDocument(b orb.Bound, l Layout, prev Camera) Camera {
	w, h := l.MapSize()
	fit := FitBounds(b, w, h, DocumentPadding)
	fit.Zoom = math.Min(fit.Zoom, MaxDocumentZoom)
	return place(prev, fit)
}

// FitFeature fits a single feature with wider padding and no zoom cap.
func FitFeature(b orb.Bound, l Layout, prev Camera) Camera {
	w, h := l.MapSize()
	return place(prev, FitBounds(b, w, h, FeaturePadding))
}
