package diagnosticscreen

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	cards "rosdash/internal/cards"
)

const scrubberCardTemplate = "cards/diagnostics_scrubber.html"

type scrubberCard struct{}

func init() {
	cards.Register(scrubberCard{})
}

func (scrubberCard) ID() string              { return "diagnostics-scrubber" }
func (scrubberCard) Template() string        { return scrubberCardTemplate }
func (scrubberCard) Screens() []cards.Screen { return []cards.Screen{cards.ScreenDiagnostics} }
func (scrubberCard) Slot() cards.Slot        { return cards.SlotFooter }

func (scrubberCard) FetchData(req *cards.Request) (gin.H, error) {
	data := gin.H{"steps": nil, "paused": false, "oldest": "", "newest": ""}
	if req == nil || req.Panel == nil {
		return data, nil
	}
	steps := req.Panel.ScrubberSteps()
	data["steps"] = steps
	data["paused"] = req.Panel.Paused()
	if len(steps) > 0 {
		data["oldest"] = humanize.Time(time.UnixMilli(steps[0].TimestampMS))
		data["newest"] = humanize.Time(time.UnixMilli(steps[len(steps)-1].TimestampMS))
	}
	return data, nil
}
