package stats

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kisy/netan/pkg/model"
)

// Source is the resource timing instrumentation the aggregator observes.
type Source interface {
	// Entries lists every entry currently visible, not only new ones.
	Entries() []model.ResourceEntry
	// Subscribe calls fn after each batch of newly completed loads.
	Subscribe(fn func()) (cancel func())
	// Clear discards all recorded entries.
	Clear()
}

// Aggregator keeps the current MetricsSnapshot for a Source. Every update is
// a full pass over the source, never an incremental merge.
type Aggregator struct {
	src Source
	log zerolog.Logger
	now func() time.Time

	// serializes full passes so a stale pass never overwrites a newer one
	umu sync.Mutex

	mu       sync.RWMutex
	snapshot model.MetricsSnapshot
	cancel   func()
	started  time.Time

	lmu       sync.Mutex
	listeners map[uint64]func(model.MetricsSnapshot)
	nextID    uint64
}

func NewAggregator(src Source, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		src:       src,
		log:       log.With().Str("component", "aggregator").Logger(),
		now:       time.Now,
		snapshot:  Compute(nil),
		listeners: make(map[uint64]func(model.MetricsSnapshot)),
	}
}

// Start subscribes to the source and runs an immediate first pass. Calling
// Start on a running aggregator is a no-op.
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	a.cancel = a.src.Subscribe(a.Update)
	a.started = a.now()
	a.mu.Unlock()

	a.log.Debug().Msg("observing resource timings")
	a.Update()
}

// Stop releases the source subscription. After Stop returns no further
// snapshot is produced by source notifications.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		a.log.Debug().Msg("stopped observing resource timings")
	}
}

func (a *Aggregator) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// Update recomputes the snapshot from the source's current contents and
// publishes it to listeners.
func (a *Aggregator) Update() {
	a.umu.Lock()
	defer a.umu.Unlock()

	raw := a.src.Entries()
	records := make([]model.TimingRecord, len(raw))
	for i, e := range raw {
		records[i] = MapEntry(e)
	}
	snap := Compute(records)
	snap.UpdatedAt = a.now()

	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()

	a.publish(snap)
}

// ClearHistory clears the source and recomputes, leaving an empty snapshot.
func (a *Aggregator) ClearHistory() {
	a.src.Clear()
	a.log.Info().Msg("resource timing history cleared")
	a.Update()
}

func (a *Aggregator) Snapshot() model.MetricsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := a.snapshot
	snap.Records = make([]model.TimingRecord, len(a.snapshot.Records))
	copy(snap.Records, a.snapshot.Records)
	return snap
}

func (a *Aggregator) GetStartTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// ByKind rolls the current snapshot up per initiator kind, largest first.
func (a *Aggregator) ByKind() []model.KindStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byKind := make(map[string]*model.KindStats)
	for _, r := range a.snapshot.Records {
		k, ok := byKind[r.Kind]
		if !ok {
			k = &model.KindStats{Kind: r.Kind}
			byKind[r.Kind] = k
		}
		k.Requests++
		k.TotalBytes += r.TransferredBytes
	}

	result := make([]model.KindStats, 0, len(byKind))
	for _, k := range byKind {
		result = append(result, *k)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalBytes != result[j].TotalBytes {
			return result[i].TotalBytes > result[j].TotalBytes
		}
		return result[i].Kind < result[j].Kind
	})
	return result
}

// Subscribe registers fn to receive every published snapshot.
func (a *Aggregator) Subscribe(fn func(model.MetricsSnapshot)) (cancel func()) {
	a.lmu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.lmu.Lock()
			delete(a.listeners, id)
			a.lmu.Unlock()
		})
	}
}

func (a *Aggregator) publish(snap model.MetricsSnapshot) {
	a.lmu.Lock()
	fns := make([]func(model.MetricsSnapshot), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// MapEntry normalizes a raw entry. Duration is rounded to the nearest whole
// millisecond; a zero transfer size is kept as-is.
func MapEntry(e model.ResourceEntry) model.TimingRecord {
	return model.TimingRecord{
		Name:             e.Name,
		Kind:             e.InitiatorType,
		DurationMs:       int64(math.Round(e.Duration)),
		TransferredBytes: e.TransferSize,
		StartOffsetMs:    e.StartTime,
	}
}

// Compute derives the rollups for records. The average is 0 for no records.
func Compute(records []model.TimingRecord) model.MetricsSnapshot {
	snap := model.MetricsSnapshot{Records: records}
	if snap.Records == nil {
		snap.Records = []model.TimingRecord{}
	}
	var totalDuration int64
	for _, r := range records {
		snap.TotalBytes += r.TransferredBytes
		totalDuration += r.DurationMs
	}
	if len(records) > 0 {
		snap.AverageDurationMs = float64(totalDuration) / float64(len(records))
	}
	return snap
}
