package diagnostics

import "encoding/json"

// Severity levels follow diagnostic_msgs/DiagnosticStatus, with -1 added
// for synthetic grouping nodes that carry no status report of their own.
const (
	LevelUnset int8 = -1
	LevelOK    int8 = 0
	LevelWarn  int8 = 1
	LevelError int8 = 2
	LevelStale int8 = 3
)

// Entry is one node in the reconstructed diagnostics tree. A record named
// "/robot/battery/cell1" produces a chain of three entries; only the
// terminal one carries the record's message and level.
type Entry struct {
	// Name is the display label: the last path segment, or the part after
	// ':' when the terminal segment carries a display override.
	Name string `json:"name"`
	// Path is the '/'-joined ancestor chain including this node, with any
	// ':suffix' stripped.
	Path string `json:"path"`
	// RawName is the original diagnostic name and the stable identity used
	// for selection and expand state across rebuilds. Grouping nodes carry
	// their path here until a record with that exact name arrives.
	RawName string `json:"raw_name"`
	// Message is empty for grouping nodes.
	Message string `json:"message"`
	// Level is LevelUnset for grouping nodes.
	Level      int8       `json:"severity_level"`
	HardwareID string     `json:"hardware_id,omitempty"`
	Values     []KeyValue `json:"values,omitempty"`
	// Children are in first-seen order.
	Children []*Entry `json:"children,omitempty"`
}

// KeyValue preserves the ordering of auxiliary diagnostic fields, which a
// plain map would lose.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// IsLeaf reports whether the entry has no children in the current tree.
// The severity tables are built from leaves only.
func (e *Entry) IsLeaf() bool {
	return len(e.Children) == 0
}

// Snapshot is one timestamped, fully built forest plus its aggregate level.
// Snapshots are immutable once built; the history buffer only changes
// membership, never contents.
type Snapshot struct {
	// TimestampMS is milliseconds since epoch, from the message header
	// stamp when present, else capture time.
	TimestampMS int64 `json:"timestamp"`
	// Level is the maximum severity found anywhere in the forest, or
	// LevelOK when the forest is empty.
	Level   int8     `json:"level"`
	Entries []*Entry `json:"diagnostics"`
}

// StatusRecord is one flat report inside an inbound DiagnosticArray.
// Optional fields use pointers so absence is distinguishable from zero:
// a missing level must become LevelUnset, not LevelOK.
type StatusRecord struct {
	Name       string          `json:"name"`
	Message    string          `json:"message"`
	Level      *int8           `json:"level"`
	HardwareID string          `json:"hardware_id"`
	Values     json.RawMessage `json:"values"`
}

// Stamp is a ROS 2 builtin_interfaces/Time.
type Stamp struct {
	Sec     int64 `json:"sec"`
	Nanosec int64 `json:"nanosec"`
}

// ArrayMessage is the wire shape of diagnostic_msgs/DiagnosticArray as
// delivered by the bridge. Status stays raw so a non-array payload can be
// detected and dropped without failing the whole decode.
type ArrayMessage struct {
	Header struct {
		Stamp *Stamp `json:"stamp"`
	} `json:"header"`
	Status json.RawMessage `json:"status"`
}

// Icon identifiers consumed by the templates. LevelIcon is part of the
// rendering contract: consumers map severity to these names, never to
// levels directly.
const (
	IconSuccess  = "success"
	IconWarning  = "warning"
	IconDanger   = "danger"
	IconQuestion = "question"
)

// LevelIcon maps a severity level to its display icon.
func LevelIcon(level int8) string {
	switch level {
	case LevelStale:
		return IconQuestion
	case LevelError:
		return IconDanger
	case LevelWarn:
		return IconWarning
	default:
		return IconSuccess
	}
}

// LevelLabel returns the human-readable severity name shown in the detail
// pane and tables.
func LevelLabel(level int8) string {
	switch level {
	case LevelOK:
		return "OK"
	case LevelWarn:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelStale:
		return "Stale"
	default:
		return "No data"
	}
}
