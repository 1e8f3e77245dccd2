package diagnostics

import "sync"

// DefaultHistorySize matches roughly two and a half minutes of snapshots
// at the aggregator's usual 5s period.
const DefaultHistorySize = 30

// History is a fixed-capacity rolling window of snapshots, oldest first.
// The connection manager is the only writer; readers get copies of the
// membership slice. Pause gates Update only; it never touches contents.
type History struct {
	mu       sync.Mutex
	capacity int
	buffer   []*Snapshot
	paused   bool
}

// NewHistory returns a buffer holding at most capacity snapshots. A
// non-positive capacity falls back to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity}
}

// Update appends a snapshot, evicting from the front once full. Paused
// state is read here, at call time, because pause toggles and snapshots
// arrive on independent goroutines. Nil snapshots and snapshots with an
// empty forest are dropped as noise so error frames never pollute the
// scrubber.
func (h *History) Update(s *Snapshot) {
	if s == nil || len(s.Entries) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return
	}
	h.buffer = append(h.buffer, s)
	for len(h.buffer) > h.capacity {
		h.buffer = h.buffer[1:]
	}
}

// Clear empties the buffer regardless of pause state. Reconnects and
// staleness both go through here.
func (h *History) Clear() {
	h.mu.Lock()
	h.buffer = nil
	h.mu.Unlock()
}

// SetPaused toggles whether Update records new snapshots. Existing
// contents are unaffected either way.
func (h *History) SetPaused(paused bool) {
	h.mu.Lock()
	h.paused = paused
	h.mu.Unlock()
}

// Paused reports the current pause state.
func (h *History) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Snapshots returns the current membership, oldest first. The returned
// slice is a copy; the snapshots themselves are shared and immutable.
func (h *History) Snapshots() []*Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Snapshot, len(h.buffer))
	copy(out, h.buffer)
	return out
}

// Len reports the number of buffered snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffer)
}

// At returns the snapshot at index i (0 = oldest), or nil when out of
// range. The scrubber may reference a step that eviction has removed.
func (h *History) At(i int) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.buffer) {
		return nil
	}
	return h.buffer[i]
}

// Latest returns the newest snapshot, or nil when empty.
func (h *History) Latest() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil
	}
	return h.buffer[len(h.buffer)-1]
}
