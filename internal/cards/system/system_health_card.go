// Package system hosts the card showing the panel host's own resource
// usage alongside the robot's diagnostics.
package system

import (
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	cards "rosdash/internal/cards"
	"rosdash/internal/telemetry"
)

const systemHealthTemplate = "cards/system_health.html"

type systemHealthCard struct{}

func init() {
	cards.Register(systemHealthCard{})
}

func (systemHealthCard) ID() string {
	return "system-health"
}

func (systemHealthCard) Template() string {
	return systemHealthTemplate
}

func (systemHealthCard) Screens() []cards.Screen {
	return []cards.Screen{cards.ScreenDiagnostics}
}

func (systemHealthCard) Slot() cards.Slot {
	return cards.SlotFooter
}

func (systemHealthCard) FetchData(req *cards.Request) (gin.H, error) {
	data := gin.H{"available": false}
	if req == nil || req.Payload == nil {
		return data, nil
	}
	sample, ok := req.Payload["systemTelemetry"].(*telemetry.SystemTelemetry)
	if !ok || sample == nil {
		return data, nil
	}
	data["available"] = true
	data["cpuPercent"] = sample.CPUPercent
	data["memoryPercent"] = sample.MemoryPercent
	data["memoryUsed"] = humanize.IBytes(sample.MemoryUsed)
	data["memoryTotal"] = humanize.IBytes(sample.MemoryTotal)
	data["diskPercent"] = sample.DiskPercent
	data["diskUsed"] = humanize.IBytes(sample.DiskUsed)
	data["diskTotal"] = humanize.IBytes(sample.DiskTotal)
	data["sampledAt"] = humanize.Time(sample.SampledAt)
	return data, nil
}
