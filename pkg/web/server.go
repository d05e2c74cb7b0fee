package web

import (
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kisy/netan/pkg/directory"
	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/report"
	"github.com/kisy/netan/pkg/session"
	"github.com/kisy/netan/pkg/stats"
	"github.com/kisy/netan/pkg/timing"
)

//go:embed index.html
var htmlContent []byte

//go:embed static
var staticFiles embed.FS

const maxBeaconSize = 1 << 20

// MapSettings is handed to the page for the map widget.
type MapSettings struct {
	Style string `json:"style"`
	Token string `json:"token"`
}

type Server struct {
	ctl    *session.Controller
	agg    *stats.Aggregator
	buf    *timing.Buffer
	reg    *prometheus.Registry
	mapCfg MapSettings
	log    zerolog.Logger
}

func NewServer(ctl *session.Controller, agg *stats.Aggregator, buf *timing.Buffer, reg *prometheus.Registry, mapCfg MapSettings, log zerolog.Logger) *Server {
	return &Server{
		ctl:    ctl,
		agg:    agg,
		buf:    buf,
		reg:    reg,
		mapCfg: mapCfg,
		log:    log.With().Str("component", "web").Logger(),
	}
}

type stateResponse struct {
	State session.State `json:"state"`
	Map   MapSettings   `json:"map"`
}

type statsResponse struct {
	StartTime      time.Time             `json:"start_time"`
	Connected      bool                  `json:"connected"`
	Capturing      bool                  `json:"capturing"`
	TotalFormatted string                `json:"total_formatted"`
	Dropped        uint64                `json:"dropped"`
	Snapshot       model.MetricsSnapshot `json:"snapshot"`
	Kinds          []model.KindStats     `json:"kinds"`
}

type connectRequest struct {
	Index *int   `json:"index,omitempty"`
	SSID  string `json:"ssid,omitempty"`
}

type addNetworkRequest struct {
	SSID      string   `json:"ssid"`
	Security  string   `json:"security"`
	Strength  int      `json:"strength"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

type viewRequest struct {
	View string `json:"view"`
}

// RegisterHandlers wires every route onto mux. Page, asset and API requests
// go through the timing middleware so the dashboard measures its own loads.
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	record := func(h http.Handler) http.Handler { return timing.Middleware(s.buf, h) }

	mux.Handle("/", record(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write(htmlContent)
	})))

	mux.Handle("/static/", record(http.FileServer(http.FS(staticFiles))))

	mux.Handle("/api/state", record(http.HandlerFunc(s.handleState)))
	mux.Handle("/api/networks", record(http.HandlerFunc(s.handleNetworks)))
	mux.Handle("/api/connect", record(http.HandlerFunc(s.handleConnect)))
	mux.Handle("/api/view", record(http.HandlerFunc(s.handleView)))
	mux.Handle("/api/drawer/toggle", record(post(s.handleToggleDrawer)))
	mux.Handle("/api/map/toggle", record(post(s.handleToggleMap)))
	mux.Handle("/api/capture/toggle", record(post(s.handleToggleCapture)))
	mux.Handle("/api/stats", record(http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/requests", record(http.HandlerFunc(s.handleRequests)))

	// Beacons carry their own timings; recording them again would double count.
	mux.HandleFunc("/api/timings", s.handleTimings)
	// Hijacked connection, so no timing wrapper.
	mux.HandleFunc("/ws", HandleWebSocket(s))
	if s.reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.ctl.State()))
}

func (s *Server) stateResponse(st session.State) stateResponse {
	return stateResponse{State: st, Map: s.mapCfg}
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dir := s.ctl.Directory()
		if r.URL.Query().Get("markers") != "" {
			writeJSON(w, http.StatusOK, nonNil(dir.Markers()))
			return
		}
		writeJSON(w, http.StatusOK, dir.List())
	case http.MethodPost:
		var req addNetworkRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		n := model.Network{
			SSID:     req.SSID,
			Security: model.Security(req.Security),
			Strength: req.Strength,
		}
		if req.Latitude != nil && req.Longitude != nil {
			n.Coordinates = &model.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
		}
		st, err := s.ctl.AddNetwork(n)
		if err != nil {
			writeError(w, err)
			return
		}
		s.log.Info().Str("ssid", req.SSID).Msg("API: network added")
		writeJSON(w, http.StatusCreated, s.stateResponse(st))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req connectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var (
		st  session.State
		err error
	)
	switch {
	case req.Index != nil:
		st, err = s.ctl.ConnectIndex(*req.Index)
	case req.SSID != "":
		st, err = s.ctl.ConnectSSID(req.SSID)
	default:
		http.Error(w, "Missing index or ssid", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(st))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req viewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := session.ParseView(req.View)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(s.ctl.SelectView(v)))
}

func (s *Server) handleToggleDrawer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.ctl.ToggleDrawer()))
}

func (s *Server) handleToggleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.ctl.ToggleMap(r.Context())))
}

func (s *Server) handleToggleCapture(w http.ResponseWriter, r *http.Request) {
	st := s.ctl.ToggleCapture()
	s.log.Info().Bool("capturing", st.Capturing).Msg("API: capture toggled")
	writeJSON(w, http.StatusOK, s.stateResponse(st))
}

func (s *Server) statsBody() statsResponse {
	st := s.ctl.State()
	snap := s.agg.Snapshot()
	return statsResponse{
		StartTime:      s.agg.GetStartTime(),
		Connected:      st.Connected,
		Capturing:      st.Capturing,
		TotalFormatted: stats.FormatBytes(snap.TotalBytes),
		Dropped:        s.buf.Dropped(),
		Snapshot:       snap,
		Kinds:          nonNil(s.agg.ByKind()),
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statsBody())
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	report.WriteRequests(w, s.agg.Snapshot())
}

// handleTimings ingests PerformanceResourceTiming entries posted by a page.
func (s *Server) handleTimings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBeaconSize)
	var entries []model.ResourceEntry
	if !decodeJSON(w, r, &entries) {
		return
	}
	err := s.buf.Record(entries...)
	switch {
	case errors.Is(err, timing.ErrBufferFull):
		s.log.Warn().Int("entries", len(entries)).Msg("resource timing buffer full, entries dropped")
	case err != nil:
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, directory.ErrNoSuchNetwork):
		status = http.StatusNotFound
	case errors.Is(err, directory.ErrNoSSID),
		errors.Is(err, directory.ErrBadSecurity),
		errors.Is(err, directory.ErrBadStrength),
		errors.Is(err, session.ErrUnknownView),
		errors.Is(err, timing.ErrInvalidEntry):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
