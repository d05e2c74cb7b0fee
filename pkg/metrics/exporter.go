package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/session"
)

// SnapshotSource is what the exporter reads on every scrape.
type SnapshotSource interface {
	Snapshot() model.MetricsSnapshot
	ByKind() []model.KindStats
}

type StateSource interface {
	State() session.State
}

// Exporter collects netan stats and exports them as Prometheus metrics
type Exporter struct {
	snaps  SnapshotSource
	states StateSource

	requests        prometheus.Gauge
	transferBytes   prometheus.Gauge
	averageDuration prometheus.Gauge
	connected       prometheus.Gauge
	capturing       prometheus.Gauge
	uptimeSeconds   prometheus.Gauge

	kindRequests *prometheus.GaugeVec
	kindBytes    *prometheus.GaugeVec

	startTime time.Time
}

// NewExporter creates a new Prometheus exporter
func NewExporter(snaps SnapshotSource, states StateSource) *Exporter {
	return &Exporter{
		snaps:     snaps,
		states:    states,
		startTime: time.Now(),

		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_resource_requests",
			Help: "Number of resource timing records in the current snapshot",
		}),
		transferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_transferred_bytes",
			Help: "Total bytes transferred by recorded resources",
		}),
		averageDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_average_duration_milliseconds",
			Help: "Mean load duration of recorded resources",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_connected",
			Help: "1 once a network has been selected",
		}),
		capturing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_capturing",
			Help: "1 while capture is on",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netan_uptime_seconds",
			Help: "netan uptime in seconds",
		}),

		kindRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netan_kind_requests",
				Help: "Recorded resources by initiator kind",
			},
			[]string{"kind"},
		),
		kindBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netan_kind_bytes",
				Help: "Transferred bytes by initiator kind",
			},
			[]string{"kind"},
		),
	}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	e.requests.Describe(ch)
	e.transferBytes.Describe(ch)
	e.averageDuration.Describe(ch)
	e.connected.Describe(ch)
	e.capturing.Describe(ch)
	e.uptimeSeconds.Describe(ch)

	e.kindRequests.Describe(ch)
	e.kindBytes.Describe(ch)
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	// kinds come and go with history clears
	e.kindRequests.Reset()
	e.kindBytes.Reset()

	snap := e.snaps.Snapshot()
	e.requests.Set(float64(len(snap.Records)))
	e.transferBytes.Set(float64(snap.TotalBytes))
	e.averageDuration.Set(snap.AverageDurationMs)

	for _, k := range e.snaps.ByKind() {
		kind := k.Kind
		if kind == "" {
			kind = "other"
		}
		e.kindRequests.WithLabelValues(kind).Add(float64(k.Requests))
		e.kindBytes.WithLabelValues(kind).Add(float64(k.TotalBytes))
	}

	st := e.states.State()
	e.connected.Set(boolValue(st.Connected))
	e.capturing.Set(boolValue(st.Capturing))

	e.uptimeSeconds.Set(time.Since(e.startTime).Seconds())

	e.requests.Collect(ch)
	e.transferBytes.Collect(ch)
	e.averageDuration.Collect(ch)
	e.connected.Collect(ch)
	e.capturing.Collect(ch)
	e.uptimeSeconds.Collect(ch)

	e.kindRequests.Collect(ch)
	e.kindBytes.Collect(ch)
}

// NewRegistry returns a private registry with the exporter and the Go
// runtime collectors registered.
func NewRegistry(e *Exporter) *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(e, collectors.NewGoCollector())
	return r
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
