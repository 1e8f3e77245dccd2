package diagnostics

import (
	"encoding/json"
	"reflect"
	"testing"
)

func level(l int8) *int8 { return &l }

func record(name, message string, l int8) StatusRecord {
	return StatusRecord{Name: name, Message: message, Level: level(l)}
}

func TestBuildTreeNestedScenario(t *testing.T) {
	records := []StatusRecord{
		record("/robot/battery", "OK", 0),
		record("/robot/battery/cell1", "Low", 1),
	}

	forest := BuildTree(records)
	if len(forest) != 1 {
		t.Fatalf("expected one top-level entry, got %d", len(forest))
	}

	robot := forest[0]
	if robot.Name != "robot" || robot.Level != LevelUnset || robot.Message != "" {
		t.Fatalf("expected synthetic 'robot' grouping node, got %+v", robot)
	}
	if len(robot.Children) != 1 {
		t.Fatalf("expected one child under robot, got %d", len(robot.Children))
	}

	battery := robot.Children[0]
	if battery.Level != LevelOK || battery.Message != "OK" {
		t.Fatalf("expected battery OK, got level=%d message=%q", battery.Level, battery.Message)
	}
	if battery.RawName != "/robot/battery" {
		t.Fatalf("expected battery raw name '/robot/battery', got %q", battery.RawName)
	}
	if len(battery.Children) != 1 {
		t.Fatalf("expected one cell under battery, got %d", len(battery.Children))
	}

	cell := battery.Children[0]
	if cell.Name != "cell1" || cell.Level != LevelWarn || cell.Message != "Low" {
		t.Fatalf("unexpected cell1 node: %+v", cell)
	}

	if agg := AggregateLevel(forest); agg != LevelWarn {
		t.Fatalf("expected aggregate level 1, got %d", agg)
	}
}

func TestBuildTreeDeterministic(t *testing.T) {
	records := []StatusRecord{
		record("/robot/battery", "OK", 0),
		record("/robot/motors/left", "hot", 1),
		record("/robot/motors/right", "OK", 0),
	}

	first := BuildTree(records)
	second := BuildTree(records)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same input produced structurally different forests")
	}
}

func TestBuildTreeDisplayNameOverride(t *testing.T) {
	forest := BuildTree([]StatusRecord{record("a/b:c", "msg", 0)})
	if len(forest) != 1 {
		t.Fatalf("expected one top-level entry, got %d", len(forest))
	}
	a := forest[0]
	if a.Name != "a" || len(a.Children) != 1 {
		t.Fatalf("expected 'a' with one child, got %+v", a)
	}
	leaf := a.Children[0]
	if leaf.Name != "c" {
		t.Fatalf("expected display name 'c', got %q", leaf.Name)
	}
	if leaf.Path != "a/b" {
		t.Fatalf("expected path 'a/b', got %q", leaf.Path)
	}
	if leaf.RawName != "a/b:c" {
		t.Fatalf("expected raw name to keep the original string, got %q", leaf.RawName)
	}
}

func TestBuildTreeOverrideStillGroups(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("a/b:c", "first", 0),
		record("a/b/d", "second", 0),
	})
	a := forest[0]
	if len(a.Children) != 1 {
		t.Fatalf("expected 'b:c' and 'b/d' to share the 'b' node, got %d children", len(a.Children))
	}
	b := a.Children[0]
	if b.Name != "c" || b.Message != "first" {
		t.Fatalf("expected the overridden leaf to keep its data, got %+v", b)
	}
	if len(b.Children) != 1 || b.Children[0].Name != "d" {
		t.Fatalf("expected child 'd' under the shared node, got %+v", b.Children)
	}
}

func TestBuildTreeSlashEdgeCases(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("//robot///arm/", "ok", 0),
		record("standalone", "solo", 2),
	})
	if len(forest) != 2 {
		t.Fatalf("expected two top-level entries, got %d", len(forest))
	}
	if forest[0].Name != "robot" || len(forest[0].Children) != 1 || forest[0].Children[0].Name != "arm" {
		t.Fatalf("duplicate slashes produced phantom nodes: %+v", forest[0])
	}
	if forest[1].Name != "standalone" || forest[1].Level != LevelError || !forest[1].IsLeaf() {
		t.Fatalf("expected a single top-level leaf for a name with no slash, got %+v", forest[1])
	}
}

func TestBuildTreeDuplicateNameLastWins(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("/robot/gps", "first", 0),
		record("/robot/gps", "second", 2),
	})
	robot := forest[0]
	if len(robot.Children) != 1 {
		t.Fatalf("duplicate names must collapse to one node, got %d", len(robot.Children))
	}
	gps := robot.Children[0]
	if gps.Message != "second" || gps.Level != LevelError {
		t.Fatalf("expected last record to win, got %+v", gps)
	}
}

func TestBuildTreeMissingLevelIsUnset(t *testing.T) {
	forest := BuildTree([]StatusRecord{{Name: "bare", Message: "no level"}})
	if forest[0].Level != LevelUnset {
		t.Fatalf("missing level must become %d, got %d", LevelUnset, forest[0].Level)
	}
}

func TestNormalizeValues(t *testing.T) {
	pairs := normalizeValues(json.RawMessage(`[{"key":"voltage","value":"12.4"},{"key":"current","value":"1.1"}]`))
	want := []KeyValue{{Key: "voltage", Value: "12.4"}, {Key: "current", Value: "1.1"}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pair array not preserved in order: %+v", pairs)
	}

	obj := normalizeValues(json.RawMessage(`{"b":"2","a":"1"}`))
	wantObj := []KeyValue{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	if !reflect.DeepEqual(obj, wantObj) {
		t.Fatalf("object form not normalized deterministically: %+v", obj)
	}

	if got := normalizeValues(nil); got != nil {
		t.Fatalf("absent values must normalize to nil, got %+v", got)
	}
	if got := normalizeValues(json.RawMessage(`null`)); got != nil {
		t.Fatalf("null values must normalize to nil, got %+v", got)
	}
}

func TestAggregateLevelEmptyForest(t *testing.T) {
	if agg := AggregateLevel(nil); agg != LevelOK {
		t.Fatalf("empty forest must aggregate to 0, got %d", agg)
	}
}

func TestAggregateLevelIgnoresUnset(t *testing.T) {
	forest := BuildTree([]StatusRecord{{Name: "/a/b", Message: "no level"}})
	if agg := AggregateLevel(forest); agg != LevelOK {
		t.Fatalf("forest of unset levels must aggregate to 0, got %d", agg)
	}
}

func TestCollectLeavesOrder(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("/robot/motors/left", "a", 0),
		record("/robot/battery", "b", 1),
		record("/robot/motors/right", "c", 2),
	})
	leaves := CollectLeaves(forest)
	got := make([]string, 0, len(leaves))
	for _, l := range leaves {
		got = append(got, l.Name)
	}
	want := []string{"left", "right", "battery"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected depth-first first-seen order %v, got %v", want, got)
	}
}

func TestCollectLeavesOnePerTerminalRecord(t *testing.T) {
	records := []StatusRecord{
		record("/robot/battery", "parent with data", 0),
		record("/robot/battery/cell1", "leaf", 1),
		record("/robot/imu", "leaf", 0),
	}
	leaves := CollectLeaves(BuildTree(records))
	// battery gained a child, so only cell1 and imu remain leaves.
	if len(leaves) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(leaves))
	}
}

func TestFindByRawName(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("/robot/battery/cell1", "x", 0),
	})
	if e := FindByRawName(forest, "/robot/battery/cell1"); e == nil || e.Name != "cell1" {
		t.Fatalf("expected to find cell1, got %+v", e)
	}
	if e := FindByRawName(forest, "/robot/missing"); e != nil {
		t.Fatalf("expected nil for unknown raw name, got %+v", e)
	}
}

func TestAncestorPath(t *testing.T) {
	forest := BuildTree([]StatusRecord{
		record("/robot/battery/cell1", "x", 0),
		record("/robot/imu", "y", 0),
	})
	chain := AncestorPath(forest, "/robot/battery/cell1")
	want := []string{"robot", "robot/battery", "/robot/battery/cell1"}
	if !reflect.DeepEqual(chain, want) {
		t.Fatalf("expected chain %v, got %v", want, chain)
	}
	if AncestorPath(forest, "nope") != nil {
		t.Fatalf("expected nil chain for unknown target")
	}
}

func TestLevelIcon(t *testing.T) {
	cases := []struct {
		level int8
		want  string
	}{
		{LevelStale, IconQuestion},
		{LevelError, IconDanger},
		{LevelWarn, IconWarning},
		{LevelOK, IconSuccess},
		{LevelUnset, IconSuccess},
	}
	for _, tc := range cases {
		if got := LevelIcon(tc.level); got != tc.want {
			t.Fatalf("LevelIcon(%d) = %q, want %q", tc.level, got, tc.want)
		}
	}
}
