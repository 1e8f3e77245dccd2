package diagnosticscreen

import (
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	cards "rosdash/internal/cards"
)

const connectionCardTemplate = "cards/diagnostics_connection.html"

type connectionCard struct{}

func init() {
	cards.Register(connectionCard{})
}

func (connectionCard) ID() string              { return "diagnostics-connection" }
func (connectionCard) Template() string        { return connectionCardTemplate }
func (connectionCard) Screens() []cards.Screen { return []cards.Screen{cards.ScreenDiagnostics} }
func (connectionCard) Slot() cards.Slot        { return cards.SlotFooter }

func (connectionCard) FetchData(req *cards.Request) (gin.H, error) {
	data := gin.H{
		"state":       "disconnected",
		"connected":   false,
		"topic":       "",
		"lastMessage": "never",
		"warning":     "",
	}
	if req == nil || req.Monitor == nil {
		return data, nil
	}
	data["state"] = string(req.Monitor.State())
	data["connected"] = req.Monitor.Connected()
	data["topic"] = req.Monitor.TopicName()
	if last := req.Monitor.LastMessageAt(); !last.IsZero() {
		data["lastMessage"] = humanize.Time(last)
	}
	if req.Config != nil {
		data["warning"] = req.Config.NamespaceWarning
		if req.Config.BridgeURL() == "" {
			data["warning"] = "bridge host not configured"
		}
	}
	return data, nil
}
