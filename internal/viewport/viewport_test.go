package viewport

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func pointBound(lon, lat float64) orb.Bound {
	p := orb.Point{lon, lat}
	return orb.Bound{Min: p, Max: p}
}

func TestFitBounds_WholeWorldIsLowZoom(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}
	cam := FitBounds(b, 800, 600, 0)
	if cam.Zoom < 0 || cam.Zoom > 1 {
		t.Fatalf("zoom=%v want within [0,1]", cam.Zoom)
	}
	if math.Abs(cam.Longitude) > 1e-9 || math.Abs(cam.Latitude) > 1e-6 {
		t.Fatalf("center=(%v,%v) want (0,0)", cam.Longitude, cam.Latitude)
	}
}

func TestFitBounds_KnownExtent(t *testing.T) {
	// 360° of longitude is TileSize pixels at zoom 0, so 45° across
	// 64px of usable width is zoom 0.
	b := orb.Bound{Min: orb.Point{0, -1}, Max: orb.Point{45, 1}}
	cam := FitBounds(b, 64+100, 10000, 50)
	if math.Abs(cam.Zoom) > 1e-9 {
		t.Fatalf("zoom=%v want 0", cam.Zoom)
	}
	if math.Abs(cam.Longitude-22.5) > 1e-9 || math.Abs(cam.Latitude) > 1e-9 {
		t.Fatalf("center=(%v,%v) want (22.5,0)", cam.Longitude, cam.Latitude)
	}
}

func TestFitDocument_SinglePointIsCapped(t *testing.T) {
	l := Layout{WindowWidth: 800 + 320, WindowHeight: 600, SidePanelWidth: 320, SidePanelExpanded: true}
	prev := Camera{Pitch: 30, Bearing: 10}

	cam := FitDocument(pointBound(10, 20), l, prev)
	if cam.Zoom != MaxDocumentZoom {
		t.Fatalf("zoom=%v want %v", cam.Zoom, MaxDocumentZoom)
	}
	if math.Abs(cam.Longitude-10) > 1e-9 || math.Abs(cam.Latitude-20) > 1e-9 {
		t.Fatalf("center=(%v,%v) want (10,20)", cam.Longitude, cam.Latitude)
	}
	if cam.Pitch != 30 || cam.Bearing != 10 {
		t.Fatalf("pitch/bearing not preserved: %+v", cam)
	}
	if cam.Transition == nil || cam.Transition.Interpolator != InterpolatorFlyTo || cam.Transition.Duration != FlyToDuration {
		t.Fatalf("missing fly-to transition: %+v", cam.Transition)
	}
}

func TestFitFeature_SinglePointIsNotCapped(t *testing.T) {
	l := Layout{WindowWidth: 800 + 320, WindowHeight: 600, SidePanelWidth: 320, SidePanelExpanded: true}
	cam := FitFeature(pointBound(10, 20), l, Camera{})
	if cam.Zoom <= MaxDocumentZoom {
		t.Fatalf("zoom=%v want above %v", cam.Zoom, MaxDocumentZoom)
	}
	if cam.Zoom != MaxFitZoom {
		t.Fatalf("zoom=%v want %v", cam.Zoom, MaxFitZoom)
	}
}

func TestFitFeature_UsesWiderPadding(t *testing.T) {
	l := Layout{WindowWidth: 1000, WindowHeight: 1000, SidePanelExpanded: false}
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	doc := FitDocument(b, l, Camera{})
	one := FitFeature(b, l, Camera{})
	if one.Zoom >= doc.Zoom {
		t.Fatalf("feature zoom %v should be below document zoom %v", one.Zoom, doc.Zoom)
	}
}

func TestLayout_MapSize(t *testing.T) {
	l := Layout{WindowWidth: 1280, WindowHeight: 800, SidePanelWidth: 320, SidePanelExpanded: true}
	if w, h := l.MapSize(); w != 960 || h != 800 {
		t.Fatalf("expanded size=(%v,%v)", w, h)
	}
	l.SidePanelExpanded = false
	if w, _ := l.MapSize(); w != 1280-CollapsedPanelWidth {
		t.Fatalf("collapsed width=%v", w)
	}
}

func TestFitBounds_TinyViewportStaysDefined(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	cam := FitBounds(b, 50, 50, 100)
	if math.IsNaN(cam.Zoom) || math.IsInf(cam.Zoom, 0) || cam.Zoom < 0 {
		t.Fatalf("zoom=%v", cam.Zoom)
	}
}
