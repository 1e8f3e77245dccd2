package diagnosticscreen

import (
	"github.com/gin-gonic/gin"

	cards "rosdash/internal/cards"
	"rosdash/internal/diagnostics"
	"rosdash/internal/panel"
)

const (
	errorTableTemplate   = "cards/diagnostics_errors.html"
	warningTableTemplate = "cards/diagnostics_warnings.html"
)

type errorTableCard struct{}
type warningTableCard struct{}

func init() {
	cards.Register(errorTableCard{})
	cards.Register(warningTableCard{})
}

func (errorTableCard) ID() string              { return "diagnostics-errors" }
func (errorTableCard) Template() string        { return errorTableTemplate }
func (errorTableCard) Screens() []cards.Screen { return []cards.Screen{cards.ScreenDiagnostics} }
func (errorTableCard) Slot() cards.Slot        { return cards.SlotGrid }

func (errorTableCard) FetchData(req *cards.Request) (gin.H, error) {
	if req == nil || req.Panel == nil {
		return gin.H{"rows": nil, "title": "Errors"}, nil
	}
	return gin.H{
		"rows":  tableRows(req.Panel.ErrorRows()),
		"title": "Errors",
	}, nil
}

func (warningTableCard) ID() string              { return "diagnostics-warnings" }
func (warningTableCard) Template() string        { return warningTableTemplate }
func (warningTableCard) Screens() []cards.Screen { return []cards.Screen{cards.ScreenDiagnostics} }
func (warningTableCard) Slot() cards.Slot        { return cards.SlotGrid }

func (warningTableCard) FetchData(req *cards.Request) (gin.H, error) {
	if req == nil || req.Panel == nil {
		return gin.H{"rows": nil, "title": "Warnings"}, nil
	}
	return gin.H{
		"rows":  tableRows(req.Panel.WarningRows()),
		"title": "Warnings",
	}, nil
}

// tableRows projects leaf entries into the flat shape the table templates
// consume.
func tableRows(leaves []*diagnostics.Entry) []gin.H {
	rows := make([]gin.H, 0, len(leaves))
	for _, leaf := range leaves {
		rows = append(rows, gin.H{
			"raw_name": leaf.RawName,
			"name":     leaf.Name,
			"path":     leaf.Path,
			"message":  leaf.Message,
			"icon":     diagnostics.LevelIcon(leaf.Level),
			"severity": diagnostics.LevelLabel(leaf.Level),
		})
	}
	return rows
}

const detailCardTemplate = "cards/diagnostics_detail.html"

type detailCard struct{}

func init() {
	cards.Register(detailCard{})
}

func (detailCard) ID() string              { return "diagnostics-detail" }
func (detailCard) Template() string        { return detailCardTemplate }
func (detailCard) Screens() []cards.Screen { return []cards.Screen{cards.ScreenDiagnostics} }
func (detailCard) Slot() cards.Slot        { return cards.SlotGrid }

func (detailCard) FetchData(req *cards.Request) (gin.H, error) {
	data := gin.H{"detail": nil, "selected": ""}
	if req == nil || req.Panel == nil {
		return data, nil
	}
	data["selected"] = req.Panel.Selected()
	// The selection may not exist in the displayed snapshot; the template
	// shows a placeholder in that case.
	if detail := panel.DetailFor(req.Panel.Detail()); detail != nil {
		data["detail"] = detail
	}
	return data, nil
}
