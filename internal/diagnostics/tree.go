package diagnostics

import (
	"encoding/json"
	"sort"
	"strings"
)

// BuildTree reconstructs the hierarchy from a flat list of slash-named
// status records. It is pure: the same input always yields a structurally
// identical forest, and nothing from previous calls is reused. The
// connection manager rebuilds the whole tree on every message rather than
// patching, so removals need no tracking.
func BuildTree(records []StatusRecord) []*Entry {
	var forest []*Entry

	for _, rec := range records {
		segments := splitName(rec.Name)
		if len(segments) == 0 {
			continue
		}

		level := &forest
		path := ""
		for i, seg := range segments {
			base, suffix := splitOverride(seg)
			if path == "" {
				path = base
			} else {
				path = path + "/" + base
			}

			node := findSibling(*level, base)
			if node == nil {
				node = &Entry{
					Name:    base,
					Path:    path,
					RawName: path,
					Level:   LevelUnset,
				}
				*level = append(*level, node)
			}

			if i == len(segments)-1 {
				// Terminal segment: this node carries the record. Matching
				// duplicates by segment string means a repeated full name in
				// one message overwrites; last record wins.
				if suffix != "" {
					node.Name = suffix
				}
				node.Message = rec.Message
				node.Level = LevelUnset
				if rec.Level != nil {
					node.Level = *rec.Level
				}
				node.HardwareID = rec.HardwareID
				node.RawName = rec.Name
				node.Values = normalizeValues(rec.Values)
			}

			level = &node.Children
		}
	}

	return forest
}

// splitName splits a diagnostic name on '/' and drops empty segments, so
// leading, trailing and doubled slashes never produce phantom nodes.
func splitName(name string) []string {
	parts := strings.Split(name, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// splitOverride separates a "base:display" segment. Matching and path
// construction always use the base; the display suffix only applies when
// the segment is terminal.
func splitOverride(seg string) (base, suffix string) {
	if idx := strings.Index(seg, ":"); idx >= 0 {
		return seg[:idx], seg[idx+1:]
	}
	return seg, ""
}

func findSibling(level []*Entry, base string) *Entry {
	for _, e := range level {
		// Match on the path segment, not the display name: a terminal
		// "b:display" node still groups with later "b" records.
		if lastSegment(e.Path) == base {
			return e
		}
	}
	return nil
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// normalizeValues accepts the two shapes the bridge is known to emit for
// the values field: an array of {key,value} pairs, or a plain object.
// Both collapse to one ordered key/value list; object keys are sorted so
// the result is deterministic. Absent or unparsable input yields nil.
func normalizeValues(raw json.RawMessage) []KeyValue {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var pairs []KeyValue
	if err := json.Unmarshal(raw, &pairs); err == nil {
		return pairs
	}

	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: obj[k]})
	}
	return out
}

// AggregateLevel returns the maximum severity anywhere in the forest.
// An empty forest reports LevelOK.
func AggregateLevel(forest []*Entry) int8 {
	level := LevelOK
	var walk func(entries []*Entry)
	walk = func(entries []*Entry) {
		for _, e := range entries {
			if e.Level > level {
				level = e.Level
			}
			walk(e.Children)
		}
	}
	walk(forest)
	if level < LevelOK {
		return LevelOK
	}
	return level
}

// CollectLeaves gathers childless entries in depth-first, first-seen
// order, which is the ordering the severity tables display.
func CollectLeaves(forest []*Entry) []*Entry {
	var leaves []*Entry
	var walk func(entries []*Entry)
	walk = func(entries []*Entry) {
		for _, e := range entries {
			if e.IsLeaf() {
				leaves = append(leaves, e)
				continue
			}
			walk(e.Children)
		}
	}
	walk(forest)
	return leaves
}

// FindByRawName locates the entry with the given identity in the forest,
// or nil if this snapshot has no such entry. Selection is by RawName, so
// it survives tree rebuilds and tolerates snapshots where the id is gone.
func FindByRawName(forest []*Entry, rawName string) *Entry {
	for _, e := range forest {
		if e.RawName == rawName {
			return e
		}
		if found := FindByRawName(e.Children, rawName); found != nil {
			return found
		}
	}
	return nil
}

// AncestorPath returns the RawNames of every node from a root down to and
// including the target, or nil when the target is absent. The tree view
// expands exactly this chain when a node is selected.
func AncestorPath(forest []*Entry, rawName string) []string {
	for _, e := range forest {
		if e.RawName == rawName {
			return []string{e.RawName}
		}
		if below := AncestorPath(e.Children, rawName); below != nil {
			return append([]string{e.RawName}, below...)
		}
	}
	return nil
}
