package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kisy/netan/pkg/directory"
	"github.com/kisy/netan/pkg/geo"
	"github.com/kisy/netan/pkg/model"
)

// Metrics is the part of the aggregator the session drives.
type Metrics interface {
	Start()
	Stop()
	ClearHistory()
}

// Controller owns the session state. Transitions are serialized on opMu so
// each one runs to completion before the next starts; mu only guards reads
// and writes of state, so snapshot listeners may call State while a
// transition is driving the aggregator.
type Controller struct {
	dir     *directory.Directory
	metrics Metrics
	locator geo.Locator
	log     zerolog.Logger

	opMu   sync.Mutex
	closed bool

	mu    sync.Mutex
	state State
}

func NewController(dir *directory.Directory, metrics Metrics, locator geo.Locator, log zerolog.Logger) *Controller {
	return &Controller{
		dir:     dir,
		metrics: metrics,
		locator: locator,
		log:     log.With().Str("component", "session").Logger(),
		state:   Initial(),
	}
}

// SetCapturing overrides the initial capture flag before the session starts.
func (c *Controller) SetCapturing(on bool) {
	c.apply(func(s State) State {
		s.Capturing = on
		return s
	})
}

// SetZoom overrides the initial map zoom.
func (c *Controller) SetZoom(zoom float64) {
	c.apply(func(s State) State {
		s.Viewport.Zoom = zoom
		return s
	})
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) Directory() *directory.Directory {
	return c.dir
}

func (c *Controller) SelectView(v View) State {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.apply(func(s State) State { return s.SelectView(v) })
}

func (c *Controller) ToggleDrawer() State {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.apply(State.ToggleDrawer)
}

// ToggleMap switches between the network list and the map. Each switch to the
// map asks the location service once.
func (c *Controller) ToggleMap(ctx context.Context) State {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	st := c.apply(State.ToggleMap)
	if !st.ShowMap {
		return st
	}
	pos := geo.Resolve(ctx, c.locator, c.log)
	return c.apply(func(s State) State { return s.Locate(pos) })
}

// Connect selects n and starts metrics aggregation on the first connect.
func (c *Controller) Connect(n model.Network) State {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	wasConnected := c.State().Connected
	st := c.apply(func(s State) State { return s.Connect(n) })
	if !wasConnected && !c.closed {
		c.metrics.Start()
	}
	c.log.Info().Str("ssid", n.SSID).Str("security", string(n.Security)).Msg("connected to network")
	return st
}

// ConnectIndex selects the directory entry at the zero-based index i.
func (c *Controller) ConnectIndex(i int) (State, error) {
	n, err := c.dir.Get(i)
	if err != nil {
		return c.State(), err
	}
	return c.Connect(n), nil
}

func (c *Controller) ConnectSSID(ssid string) (State, error) {
	n, err := c.dir.Lookup(ssid)
	if err != nil {
		return c.State(), err
	}
	return c.Connect(n), nil
}

// AddNetwork appends a user-specified network to the directory and connects
// to it, as submitting the map's new-network form does.
func (c *Controller) AddNetwork(n model.Network) (State, error) {
	n, err := directory.Normalize(n)
	if err != nil {
		return c.State(), err
	}
	if err := c.dir.Add(n); err != nil {
		return c.State(), err
	}
	return c.Connect(n), nil
}

// ToggleCapture flips capturing. Turning capture back on clears the recorded
// history first; turning it off leaves the subscription running.
func (c *Controller) ToggleCapture() State {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.State().Capturing {
		c.metrics.ClearHistory()
	}
	st := c.apply(State.ToggleCapture)
	c.log.Info().Bool("capturing", st.Capturing).Msg("capture toggled")
	return st
}

// Close ends the session and releases the metrics subscription. It is safe to
// call more than once.
func (c *Controller) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.metrics.Stop()
}

func (c *Controller) apply(fn func(State) State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = fn(c.state)
	return c.state.clone()
}
