package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kisy/netan/pkg/model"
)

// View is one of the dashboard sections reachable from the drawer.
type View string

const (
	ViewAnalyzer View = "analyzer"
	ViewNetworks View = "networks"
	ViewAbout    View = "about"
)

var ErrUnknownView = errors.New("unknown view")

func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewAnalyzer, ViewNetworks, ViewAbout:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// DefaultZoom is the map zoom used until the user moves the map.
const DefaultZoom = 14

// State is the whole dashboard session. Selected is set iff Connected.
type State struct {
	Capturing    bool               `json:"capturing"`
	Connected    bool               `json:"connected"`
	Selected     *model.Network     `json:"selected,omitempty"`
	ActiveView   View               `json:"active_view"`
	DrawerOpen   bool               `json:"drawer_open"`
	ShowMap      bool               `json:"show_map"`
	UserLocation *model.Coordinates `json:"user_location,omitempty"`
	Viewport     model.Viewport     `json:"viewport"`
}

// Initial is the state at process start.
func Initial() State {
	return State{
		Capturing:  true,
		ActiveView: ViewAnalyzer,
		Viewport:   model.Viewport{Zoom: DefaultZoom},
	}
}

// SelectView switches section and always closes the drawer.
func (s State) SelectView(v View) State {
	s.ActiveView = v
	s.DrawerOpen = false
	return s
}

func (s State) ToggleDrawer() State {
	s.DrawerOpen = !s.DrawerOpen
	return s
}

// Connect records n as the selected network. There is no way back to the
// disconnected state within a session.
func (s State) Connect(n model.Network) State {
	sel := n
	if n.Coordinates != nil {
		c := *n.Coordinates
		sel.Coordinates = &c
	}
	s.Selected = &sel
	s.Connected = true
	return s
}

func (s State) ToggleCapture() State {
	s.Capturing = !s.Capturing
	return s
}

func (s State) ToggleMap() State {
	s.ShowMap = !s.ShowMap
	return s
}

// Locate centers the viewport on the user's position.
func (s State) Locate(c model.Coordinates) State {
	s.UserLocation = &c
	s.Viewport.Center = c
	return s
}

// clone detaches pointer fields so callers cannot mutate the owner's copy.
func (s State) clone() State {
	if s.Selected != nil {
		s = s.Connect(*s.Selected)
	}
	if s.UserLocation != nil {
		c := *s.UserLocation
		s.UserLocation = &c
	}
	return s
}
