// Package state holds the view state of one viewing session and the pure
// reducer that moves it from one snapshot to the next.
package state

import (
	"math"

	"github.com/mohammed-shakir/geojson-viewer/internal/bounds"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewport"
)

const (
	InitialLongitude = 103.8198
	InitialLatitude  = 1.3521
	InitialZoom      = 11.0

	DefaultSidePanelWidth = 320.0
	MinSidePanelWidth     = 200.0
	MaxSidePanelWidth     = 800.0

	DefaultWindowWidth  = 1280.0
	DefaultWindowHeight = 800.0
)

// State is one immutable snapshot. Features is shared between snapshots and
// must not be modified in place.
type State struct {
	Document      *geojson.Document  `json:"document,omitempty"`
	Features      geojson.Collection `json:"features"`
	SelectedID    string             `json:"selected_id,omitempty"`
	HighlightedID string             `json:"highlighted_id,omitempty"`
	SearchQuery   string             `json:"search_query"`
	Camera        viewport.Camera    `json:"camera"`
	Layout        viewport.Layout    `json:"layout"`
	// Version changes whenever the feature set does.
	Version uint64 `json:"version"`
}

func Initial() State {
	return State{
		Features: geojson.Collection{},
		Camera: viewport.Camera{
			Longitude: InitialLongitude,
			Latitude:  InitialLatitude,
			Zoom:      InitialZoom,
		},
		Layout: viewport.Layout{
			WindowWidth:       DefaultWindowWidth,
			WindowHeight:      DefaultWindowHeight,
			SidePanelWidth:    DefaultSidePanelWidth,
			SidePanelExpanded: true,
		},
	}
}

// Selected returns the selected feature, if the selection names one.
func (s State) Selected() (geojson.Feature, bool) {
	if s.SelectedID == "" {
		return geojson.Feature{}, false
	}
	return s.Features.Find(s.SelectedID)
}

func (s State) Highlighted() (geojson.Feature, bool) {
	if s.HighlightedID == "" {
		return geojson.Feature{}, false
	}
	return s.Features.Find(s.HighlightedID)
}

// Action is one of the update types below.
type Action interface {
	isAction()
}

type (
	// Load replaces the document and clears selection, highlight and search.
	Load struct{ Document geojson.Document }
	// Append adds the features of Document after the current ones.
	Append struct{ Document geojson.Document }
	// Select sets the selected id; the empty id clears the selection.
	Select struct{ ID string }
	// Highlight sets the hovered id; the empty id clears it.
	Highlight struct{ ID string }
	Search    struct{ Query string }
	SetCamera struct{ Camera viewport.Camera }
	// ResizeSidePanel sets the panel width, clamped to the draggable range.
	ResizeSidePanel      struct{ Width float64 }
	SetSidePanelExpanded struct{ Expanded bool }
	ResizeWindow         struct{ Width, Height float64 }
	// FlyTo centers the camera on one feature.
	FlyTo struct{ ID string }
)

func (Load) isAction()                 {}
func (Append) isAction()               {}
func (Select) isAction()               {}
func (Highlight) isAction()            {}
func (Search) isAction()               {}
func (SetCamera) isAction()            {}
func (ResizeSidePanel) isAction()      {}
func (SetSidePanelExpanded) isAction() {}
func (ResizeWindow) isAction()         {}
func (FlyTo) isAction()                {}

// Reduce returns the state that follows s after a. s is never modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Load:
		res := geojson.Normalize(a.Document)
		s.Document = &res.Document
		s.Features = res.Features
		s.SelectedID = ""
		s.HighlightedID = ""
		s.SearchQuery = ""
		s.Version++
		return refit(s)

	case Append:
		if s.Document == nil {
			return Reduce(s, Load(a))
		}
		s.Features = geojson.Append(s.Features, a.Document)
		doc := geojson.CollectionDocument(s.Features)
		s.Document = &doc
		s.Version++
		return refit(s)

	case Select:
		s.SelectedID = a.ID
		return s

	case Highlight:
		s.HighlightedID = a.ID
		return s

	case Search:
		s.SearchQuery = a.Query
		return s

	case SetCamera:
		s.Camera = a.Camera
		return s

	case ResizeSidePanel:
		w := math.Max(MinSidePanelWidth, math.Min(a.Width, MaxSidePanelWidth))
		if w == s.Layout.SidePanelWidth {
			return s
		}
		s.Layout.SidePanelWidth = w
		return refit(s)

	case SetSidePanelExpanded:
		if a.Expanded == s.Layout.SidePanelExpanded {
			return s
		}
		s.Layout.SidePanelExpanded = a.Expanded
		return refit(s)

	case ResizeWindow:
		if a.Width < 0 || a.Height < 0 {
			return s
		}
		s.Layout.WindowWidth = a.Width
		s.Layout.WindowHeight = a.Height
		return refit(s)

	case FlyTo:
		f, ok := s.Features.Find(a.ID)
		if !ok {
			return s
		}
		b, ok := bounds.Of(f)
		if !ok {
			return s
		}
		s.Camera = viewport.FitFeature(b, s.Layout, s.Camera)
		return s

	default:
		return s
	}
}

// refit places the camera over the whole feature set. Without bounds the
// previous camera is kept.
func refit(s State) State {
	if len(s.Features) == 0 {
		return s
	}
	b, ok := bounds.OfCollection(s.Features)
	if !ok {
		return s
	}
	s.Camera = viewport.FitDocument(b, s.Layout, s.Camera)
	return s
}
