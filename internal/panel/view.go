package panel

import (
	"rosdash/internal/diagnostics"
)

// TreeRow is one rendered line of the tree view.
type TreeRow struct {
	RawName     string `json:"raw_name"`
	Name        string `json:"name"`
	Depth       int    `json:"depth"`
	Icon        string `json:"icon"`
	Message     string `json:"message,omitempty"`
	HasChildren bool   `json:"has_children"`
	Expanded    bool   `json:"expanded"`
	Selected    bool   `json:"selected"`
}

// TreeRows flattens the displayed forest into visible rows: top-level
// entries always, children only under expanded parents.
func (p *Panel) TreeRows() []TreeRow {
	forest := p.displayedEntries()

	p.mu.Lock()
	expanded := make(map[string]bool, len(p.expanded))
	for k, v := range p.expanded {
		expanded[k] = v
	}
	selected := p.selected
	p.mu.Unlock()

	var rows []TreeRow
	var walk func(entries []*diagnostics.Entry, depth int)
	walk = func(entries []*diagnostics.Entry, depth int) {
		for _, e := range entries {
			rows = append(rows, TreeRow{
				RawName:     e.RawName,
				Name:        e.Name,
				Depth:       depth,
				Icon:        diagnostics.LevelIcon(e.Level),
				Message:     e.Message,
				HasChildren: !e.IsLeaf(),
				Expanded:    expanded[e.RawName],
				Selected:    e.RawName == selected,
			})
			if expanded[e.RawName] {
				walk(e.Children, depth+1)
			}
		}
	}
	walk(forest, 0)
	return rows
}

// ScrubberStep is one clickable point on the history scrubber.
type ScrubberStep struct {
	Index       int    `json:"index"`
	TimestampMS int64  `json:"timestamp"`
	Icon        string `json:"icon"`
	Pinned      bool   `json:"pinned"`
}

// ScrubberSteps exposes the rolling buffer as scrubber points, oldest
// first.
func (p *Panel) ScrubberSteps() []ScrubberStep {
	snapshots := p.mon.History().Snapshots()

	p.mu.Lock()
	pinned := p.pinned
	p.mu.Unlock()

	steps := make([]ScrubberStep, 0, len(snapshots))
	for i, s := range snapshots {
		steps = append(steps, ScrubberStep{
			Index:       i,
			TimestampMS: s.TimestampMS,
			Icon:        diagnostics.LevelIcon(s.Level),
			Pinned:      i == pinned,
		})
	}
	return steps
}

// DetailView is the side panel's rendering of the selected entry.
type DetailView struct {
	Name       string                 `json:"name"`
	Path       string                 `json:"path"`
	RawName    string                 `json:"raw_name"`
	HardwareID string                 `json:"hardware_id,omitempty"`
	Severity   string                 `json:"severity"`
	Icon       string                 `json:"icon"`
	Message    string                 `json:"message,omitempty"`
	Values     []diagnostics.KeyValue `json:"values,omitempty"`
}

// DetailFor builds the detail pane for an entry.
func DetailFor(e *diagnostics.Entry) *DetailView {
	if e == nil {
		return nil
	}
	return &DetailView{
		Name:       e.Name,
		Path:       e.Path,
		RawName:    e.RawName,
		HardwareID: e.HardwareID,
		Severity:   diagnostics.LevelLabel(e.Level),
		Icon:       diagnostics.LevelIcon(e.Level),
		Message:    e.Message,
		Values:     e.Values,
	}
}
