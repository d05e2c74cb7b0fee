package timing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kisy/netan/pkg/model"
)

// DefaultCapacity matches the browser's default resource timing buffer size.
const DefaultCapacity = 250

var (
	ErrInvalidEntry = errors.New("invalid resource entry")
	ErrBufferFull   = errors.New("resource timing buffer full")
)

// Buffer is an in-process resource timing source. It keeps every completed
// resource load until Clear is called.
type Buffer struct {
	mu       sync.Mutex
	entries  []model.ResourceEntry
	capacity int
	dropped  uint64
	origin   time.Time

	subs   map[uint64]func()
	nextID uint64

	// held while callbacks run; acquired before mu, never while holding it
	dispatchMu sync.Mutex
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		origin:   time.Now(),
		subs:     make(map[uint64]func()),
	}
}

// Origin is the time all StartTime offsets are relative to.
func (b *Buffer) Origin() time.Time {
	return b.origin
}

// Since returns the offset of t from the origin in milliseconds.
func (b *Buffer) Since(t time.Time) float64 {
	return float64(t.Sub(b.origin)) / float64(time.Millisecond)
}

// Record appends completed entries and notifies subscribers once for the
// batch. Entries that do not fit are dropped and ErrBufferFull is returned
// after the accepted ones are stored.
func (b *Buffer) Record(entries ...model.ResourceEntry) error {
	for i, e := range entries {
		if err := validate(e); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	room := b.capacity - len(b.entries)
	if room < 0 {
		room = 0
	}
	accepted := entries
	var full bool
	if len(accepted) > room {
		accepted = accepted[:room]
		b.dropped += uint64(len(entries) - room)
		full = true
	}
	b.entries = append(b.entries, accepted...)
	b.mu.Unlock()

	if len(accepted) == 0 {
		return ErrBufferFull
	}
	b.notify()

	if full {
		return ErrBufferFull
	}
	return nil
}

// Entries returns a copy of every entry currently held.
func (b *Buffer) Entries() []model.ResourceEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.ResourceEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear discards all recorded entries. Subscribers are not notified.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Dropped reports how many entries were rejected because the buffer was full.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Subscribe registers fn to be called after every recorded batch. The
// returned cancel func is idempotent; once it returns fn is never called
// again. It must not be called from within fn.
func (b *Buffer) Subscribe(fn func()) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			// wait out a dispatch that captured fn before removal
			b.dispatchMu.Lock()
			b.dispatchMu.Unlock()
		})
	}
}

func (b *Buffer) notify() {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	callbacks := make([]func(), 0, len(b.subs))
	for id := uint64(0); id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func validate(e model.ResourceEntry) error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	case e.Duration < 0:
		return fmt.Errorf("%w: negative duration %v", ErrInvalidEntry, e.Duration)
	case e.TransferSize < 0:
		return fmt.Errorf("%w: negative transfer size %d", ErrInvalidEntry, e.TransferSize)
	}
	return nil
}
