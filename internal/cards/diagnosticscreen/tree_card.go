// Package diagnosticscreen registers the cards composing the diagnostics
// screen: the entry tree, the severity tables, the detail pane and the
// history scrubber.
package diagnosticscreen

import (
	"github.com/gin-gonic/gin"

	cards "rosdash/internal/cards"
)

const treeCardTemplate = "cards/diagnostics_tree.html"

type treeCard struct{}

func init() {
	cards.Register(treeCard{})
}

func (treeCard) ID() string {
	return "diagnostics-tree"
}

func (treeCard) Template() string {
	return treeCardTemplate
}

func (treeCard) Screens() []cards.Screen {
	return []cards.Screen{cards.ScreenDiagnostics}
}

func (treeCard) Slot() cards.Slot {
	return cards.SlotPrimary
}

func (treeCard) FetchData(req *cards.Request) (gin.H, error) {
	data := gin.H{"rows": nil, "empty": true}
	if req == nil || req.Panel == nil {
		return data, nil
	}
	rows := req.Panel.TreeRows()
	data["rows"] = rows
	data["empty"] = len(rows) == 0
	return data, nil
}
