// Package panel holds the presentation state for the diagnostics screen:
// which nodes are expanded, which entry is selected, and which history
// step (if any) the display is pinned to. It reads monitor state and
// signals intent (pause, selection); it never mutates diagnostics data.
package panel

import (
	"sync"

	"rosdash/internal/diagnostics"
)

// Source provides the diagnostics data the presentation layer renders.
// The monitor implements it; tests substitute a fixture.
type Source interface {
	Latest() *diagnostics.Snapshot
	History() *diagnostics.History
}

// livePin means the display tracks the newest snapshot.
const livePin = -1

// Panel is the server-side view state for one diagnostics screen.
type Panel struct {
	mon Source

	mu       sync.Mutex
	expanded map[string]bool
	selected string
	pinned   int
}

// New returns a panel tracking the live snapshot with nothing expanded.
func New(mon Source) *Panel {
	return &Panel{
		mon:      mon,
		expanded: make(map[string]bool),
		pinned:   livePin,
	}
}

// Displayed returns the snapshot the screen should render: the pinned
// history step while paused, else the live snapshot. A pinned step that
// no longer exists (history cleared underneath) falls back to live rather
// than blanking the screen.
func (p *Panel) Displayed() *diagnostics.Snapshot {
	p.mu.Lock()
	pinned := p.pinned
	p.mu.Unlock()

	if pinned != livePin {
		if s := p.mon.History().At(pinned); s != nil {
			return s
		}
	}
	return p.mon.Latest()
}

// Toggle flips the expand state for the node with the given identity.
// State is keyed by RawName, not tree position, so it survives the
// wholesale tree rebuild every message causes.
func (p *Panel) Toggle(rawName string) {
	p.mu.Lock()
	p.expanded[rawName] = !p.expanded[rawName]
	p.mu.Unlock()
}

// Expanded reports whether the node is expanded.
func (p *Panel) Expanded(rawName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expanded[rawName]
}

// Select marks rawName as the selected entry and expands its ancestor
// chain in the currently displayed snapshot, leaving sibling expand
// state alone. Selecting an identity absent from the displayed snapshot
// still records it; the detail pane shows it once a snapshot containing
// it is displayed.
func (p *Panel) Select(rawName string) {
	chain := diagnostics.AncestorPath(p.displayedEntries(), rawName)

	p.mu.Lock()
	p.selected = rawName
	for _, id := range chain {
		p.expanded[id] = true
	}
	p.mu.Unlock()
}

// Selected returns the selected identity, empty when nothing is selected.
func (p *Panel) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Detail returns the entry matching the selection in the displayed
// snapshot, or nil when the selection is empty or absent from it.
func (p *Panel) Detail() *diagnostics.Entry {
	p.mu.Lock()
	selected := p.selected
	p.mu.Unlock()
	if selected == "" {
		return nil
	}
	return diagnostics.FindByRawName(p.displayedEntries(), selected)
}

// ErrorRows returns the displayed snapshot's leaves at error level or
// above, in tree traversal order.
func (p *Panel) ErrorRows() []*diagnostics.Entry {
	return filterLeaves(p.displayedEntries(), func(level int8) bool {
		return level >= diagnostics.LevelError
	})
}

// WarningRows returns the displayed snapshot's warning-level leaves, in
// tree traversal order.
func (p *Panel) WarningRows() []*diagnostics.Entry {
	return filterLeaves(p.displayedEntries(), func(level int8) bool {
		return level == diagnostics.LevelWarn
	})
}

// PinStep pauses history and pins the display to step i of the buffer.
// Out-of-range steps still pause; Displayed falls back to live.
func (p *Panel) PinStep(i int) {
	p.mu.Lock()
	p.pinned = i
	p.mu.Unlock()
	p.mon.History().SetPaused(true)
}

// Resume unpins and resumes tracking the newest snapshot. Snapshots that
// arrived while paused were never buffered and are not replayed.
func (p *Panel) Resume() {
	p.mu.Lock()
	p.pinned = livePin
	p.mu.Unlock()
	p.mon.History().SetPaused(false)
}

// Paused reports whether the display is pinned to history.
func (p *Panel) Paused() bool {
	return p.mon.History().Paused()
}

// PinnedStep returns the pinned history index, or -1 when live.
func (p *Panel) PinnedStep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinned
}

func (p *Panel) displayedEntries() []*diagnostics.Entry {
	if s := p.Displayed(); s != nil {
		return s.Entries
	}
	return nil
}

func filterLeaves(forest []*diagnostics.Entry, keep func(int8) bool) []*diagnostics.Entry {
	var rows []*diagnostics.Entry
	for _, leaf := range diagnostics.CollectLeaves(forest) {
		if keep(leaf.Level) {
			rows = append(rows, leaf)
		}
	}
	return rows
}
