package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kisy/netan/pkg/directory"
	"github.com/kisy/netan/pkg/metrics"
	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/session"
	"github.com/kisy/netan/pkg/stats"
	"github.com/kisy/netan/pkg/timing"
)

type fixture struct {
	srv *httptest.Server
	ctl *session.Controller
	agg *stats.Aggregator
	buf *timing.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	buf := timing.NewBuffer(0)
	agg := stats.NewAggregator(buf, log)
	ctl := session.NewController(directory.Default(), agg, nil, log)
	reg := metrics.NewRegistry(metrics.NewExporter(agg, ctl))

	s := NewServer(ctl, agg, buf, reg, MapSettings{Style: "style", Token: "pk.test"}, log)
	mux := http.NewServeMux()
	s.RegisterHandlers(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(func() {
		hs.Close()
		ctl.Close()
	})
	return &fixture{srv: hs, ctl: ctl, agg: agg, buf: buf}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestStateBeforeConnect(t *testing.T) {
	f := newFixture(t)
	res := decode[stateResponse](t, f.do(t, http.MethodGet, "/api/state", ""))
	if res.State.Connected || res.State.Selected != nil || !res.State.Capturing {
		t.Fatalf("unexpected initial state: %+v", res.State)
	}
	if res.Map.Token != "pk.test" {
		t.Fatalf("map settings missing: %+v", res.Map)
	}
}

func TestConnectByIndex(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/connect", `{"index":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	res := decode[stateResponse](t, resp)
	if !res.State.Connected || res.State.Selected.SSID != "Office WiFi" {
		t.Fatalf("unexpected state: %+v", res.State)
	}
	if !f.agg.Running() {
		t.Fatalf("aggregator not started on connect")
	}
}

func TestConnectErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		method, body string
		status       int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{}`, http.StatusBadRequest},
		{http.MethodPost, `{"index":42}`, http.StatusNotFound},
		{http.MethodPost, `{"ssid":"nope"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		resp := f.do(t, c.method, "/api/connect", c.body)
		resp.Body.Close()
		if resp.StatusCode != c.status {
			t.Fatalf("%s %q: status %d, want %d", c.method, c.body, resp.StatusCode, c.status)
		}
	}
}

func TestAddNetwork(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/networks", `{"ssid":"Cafe","lat":40.71,"lng":-74.0}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	res := decode[stateResponse](t, resp)
	if res.State.Selected == nil || res.State.Selected.SSID != "Cafe" || res.State.Selected.Coordinates == nil {
		t.Fatalf("unexpected selection: %+v", res.State.Selected)
	}

	nets := decode[[]model.Network](t, f.do(t, http.MethodGet, "/api/networks", ""))
	if len(nets) != 5 || nets[4].SSID != "Cafe" {
		t.Fatalf("network not listed: %+v", nets)
	}

	resp = f.do(t, http.MethodPost, "/api/networks", `{"security":"WPA2"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing ssid: status %d", resp.StatusCode)
	}
}

func TestViewAndDrawer(t *testing.T) {
	f := newFixture(t)
	res := decode[stateResponse](t, f.do(t, http.MethodPost, "/api/drawer/toggle", ""))
	if !res.State.DrawerOpen {
		t.Fatalf("drawer not opened")
	}
	res = decode[stateResponse](t, f.do(t, http.MethodPost, "/api/view", `{"view":"about"}`))
	if res.State.DrawerOpen || res.State.ActiveView != session.ViewAbout {
		t.Fatalf("unexpected state: %+v", res.State)
	}
	resp := f.do(t, http.MethodPost, "/api/view", `{"view":"settings"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown view: status %d", resp.StatusCode)
	}
}

func TestMapToggleUsesFallback(t *testing.T) {
	f := newFixture(t)
	res := decode[stateResponse](t, f.do(t, http.MethodPost, "/api/map/toggle", ""))
	if !res.State.ShowMap || res.State.UserLocation == nil {
		t.Fatalf("unexpected state: %+v", res.State)
	}
	lng, lat := res.State.UserLocation.Pair()
	if lng != -74.006 || lat != 40.7128 {
		t.Fatalf("fallback = (%v, %v)", lng, lat)
	}
}

func TestTimingsIngestAndStats(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/connect", `{"ssid":"Home Network"}`)
	resp.Body.Close()

	f.buf.Clear()
	body := `[
		{"name":"https://cdn.example.com/three.js","initiatorType":"script","duration":20.4,"transferSize":1024,"startTime":5},
		{"name":"https://tiles.example.com/1.png","initiatorType":"img","duration":9.6,"transferSize":512,"startTime":7}
	]`
	resp = f.do(t, http.MethodPost, "/api/timings", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ingest status %d", resp.StatusCode)
	}

	snap := f.agg.Snapshot()
	if len(snap.Records) != 2 || snap.TotalBytes != 1536 || snap.AverageDurationMs != 15 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	st := decode[statsResponse](t, f.do(t, http.MethodGet, "/api/stats", ""))
	// the stats request itself is recorded only after it has been answered
	if st.TotalFormatted != "1.50 KB" || len(st.Snapshot.Records) != 2 || !st.Connected {
		t.Fatalf("unexpected stats: %+v", st)
	}

	resp = f.do(t, http.MethodPost, "/api/timings", `[{"name":"","duration":1}]`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid entry: status %d", resp.StatusCode)
	}
}

func TestCaptureToggleClearsHistory(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/connect", `{"index":0}`).Body.Close()
	f.do(t, http.MethodPost, "/api/timings", `[{"name":"/x.js","initiatorType":"script","duration":3,"transferSize":10}]`).Body.Close()

	res := decode[stateResponse](t, f.do(t, http.MethodPost, "/api/capture/toggle", ""))
	if res.State.Capturing {
		t.Fatalf("capture still on")
	}
	before := len(f.agg.Snapshot().Records)
	if before == 0 {
		t.Fatalf("stopping capture dropped history")
	}

	res = decode[stateResponse](t, f.do(t, http.MethodPost, "/api/capture/toggle", ""))
	if !res.State.Capturing {
		t.Fatalf("capture still off")
	}
	// only the toggle request itself can have been recorded since the clear
	for _, r := range f.agg.Snapshot().Records {
		if r.Name != "/api/capture/toggle" {
			t.Fatalf("record survived clear: %+v", r)
		}
	}
}

func TestPagesAreRecorded(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/connect", `{"index":0}`).Body.Close()

	for _, p := range []string{"/", "/static/app.js"} {
		resp := f.do(t, http.MethodGet, p, "")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", p, resp.StatusCode)
		}
	}

	kinds := map[string]bool{}
	for _, r := range f.agg.Snapshot().Records {
		kinds[r.Kind] = true
	}
	if !kinds["navigation"] || !kinds["script"] {
		t.Fatalf("page loads not recorded: %+v", f.agg.Snapshot().Records)
	}
}

func TestRequestsTableAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/connect", `{"index":0}`).Body.Close()

	resp := f.do(t, http.MethodGet, "/api/requests", "")
	table, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(table), "/api/connect") {
		t.Fatalf("table missing connect request:\n%s", table)
	}

	resp = f.do(t, http.MethodGet, "/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "netan_connected 1") {
		t.Fatalf("metrics missing netan_connected:\n%s", body)
	}
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/connect", `{"index":0}`).Body.Close()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readType := func(want string) model.WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			var msg model.WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("read: %v", err)
			}
			if msg.Type == want {
				return msg
			}
		}
	}

	readType("state")
	readType("stats")

	f.buf.Record(model.ResourceEntry{Name: "https://cdn.example.com/pushed.js", InitiatorType: "script", Duration: 1, TransferSize: 1})
	for pushed := false; !pushed; {
		var st statsResponse
		if err := json.Unmarshal(readType("stats").Payload, &st); err != nil {
			t.Fatalf("payload: %v", err)
		}
		for _, r := range st.Snapshot.Records {
			pushed = pushed || r.Name == "https://cdn.example.com/pushed.js"
		}
	}

	if err := conn.WriteJSON(model.WSMessage{Type: "toggle_drawer"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readType("state")
	var res stateResponse
	json.Unmarshal(msg.Payload, &res)
	if !res.State.DrawerOpen {
		t.Fatalf("drawer not toggled over websocket: %+v", res.State)
	}

	conn.WriteJSON(model.WSMessage{Type: "bogus"})
	readType("error")
}
