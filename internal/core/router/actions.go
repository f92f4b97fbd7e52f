package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewport"
)

const maxActionBytes = 1 << 20

// actionRequest is the wire form of one state.Action.
type actionRequest struct {
	Type     string           `json:"type"`
	ID       string           `json:"id"`
	Query    string           `json:"query"`
	Width    *float64         `json:"width"`
	Height   *float64         `json:"height"`
	Expanded *bool            `json:"expanded"`
	Camera   *viewport.Camera `json:"camera"`
}

func (a actionRequest) action() (state.Action, error) {
	switch a.Type {
	case "select":
		return state.Select{ID: a.ID}, nil
	case "highlight":
		return state.Highlight{ID: a.ID}, nil
	case "search":
		return state.Search{Query: a.Query}, nil
	case "fly_to":
		if a.ID == "" {
			return nil, fmt.Errorf("fly_to needs an id")
		}
		return state.FlyTo{ID: a.ID}, nil
	case "set_camera":
		if a.Camera == nil {
			return nil, fmt.Errorf("set_camera needs a camera")
		}
		return state.SetCamera{Camera: *a.Camera}, nil
	case "resize_side_panel":
		if a.Width == nil {
			return nil, fmt.Errorf("resize_side_panel needs a width")
		}
		return state.ResizeSidePanel{Width: *a.Width}, nil
	case "set_side_panel_expanded":
		if a.Expanded == nil {
			return nil, fmt.Errorf("set_side_panel_expanded needs expanded")
		}
		return state.SetSidePanelExpanded{Expanded: *a.Expanded}, nil
	case "resize_window":
		if a.Width == nil || a.Height == nil {
			return nil, fmt.Errorf("resize_window needs width and height")
		}
		return state.ResizeWindow{Width: *a.Width, Height: *a.Height}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
}

// decodeActions accepts one action object or an array of them.
func decodeActions(body []byte) ([]state.Action, error) {
	body = bytes.TrimSpace(body)
	var reqs []actionRequest
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	} else {
		var one actionRequest
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		reqs = []actionRequest{one}
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no actions")
	}

	out := make([]state.Action, 0, len(reqs))
	for i, rq := range reqs {
		act, err := rq.action()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, act)
	}
	return out, nil
}

func (a *API) postActions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBytes))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	actions, err := decodeActions(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	}
	id := sid(r)
	st, err := a.sessions.Dispatch(r.Context(), id, actions...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, st))
}
