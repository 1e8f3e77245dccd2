// Package handlers wires the diagnostics panel's HTTP surface: the
// dashboard page built out of cards, and the JSON API the page's scripts
// call for navigation (selection, expand, pause, scrubbing).
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rosdash/internal/cards"
	"rosdash/internal/config"
	"rosdash/internal/middleware"
	"rosdash/internal/panel"
	"rosdash/internal/telemetry"
)

// PanelHandlers serves the diagnostics screen and its API.
type PanelHandlers struct {
	panel   *panel.Panel
	monitor cards.StatusSource
	cfg     *config.Config
	sampler *telemetry.Sampler
}

// NewPanelHandlers builds the handler set around the shared panel state.
func NewPanelHandlers(p *panel.Panel, mon cards.StatusSource, cfg *config.Config, sampler *telemetry.Sampler) *PanelHandlers {
	return &PanelHandlers{panel: p, monitor: mon, cfg: cfg, sampler: sampler}
}

func (h *PanelHandlers) cardRequest(c *gin.Context) *cards.Request {
	payload := gin.H{}
	if h.sampler != nil {
		payload["systemTelemetry"] = h.sampler.Latest()
	}
	return &cards.Request{
		Context: c,
		Panel:   h.panel,
		Monitor: h.monitor,
		Config:  h.cfg,
		Payload: payload,
	}
}

// Dashboard renders the diagnostics screen from its registered cards.
func (h *PanelHandlers) Dashboard(c *gin.Context) {
	req := h.cardRequest(c)
	renderables := cards.BuildRenderables(cards.ScreenDiagnostics, req)

	bySlot := map[cards.Slot][]cards.Renderable{}
	for _, r := range renderables {
		bySlot[r.Slot] = append(bySlot[r.Slot], r)
	}

	c.HTML(http.StatusOK, "diagnostics.html", gin.H{
		"title":     "Diagnostics",
		"namespace": h.cfg.Namespace,
		"warning":   h.cfg.NamespaceWarning,
		"primary":   bySlot[cards.SlotPrimary],
		"grid":      bySlot[cards.SlotGrid],
		"footer":    bySlot[cards.SlotFooter],
	})
}

// CardGET re-renders a single card, used by the page to refresh regions
// after a navigation action without reloading the screen.
func (h *PanelHandlers) CardGET(c *gin.Context) {
	cardID := middleware.SanitizeString(c.Param("card_id"))
	renderable, ok := cards.BuildRenderableByID(cards.ScreenDiagnostics, cardID, h.cardRequest(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown card"})
		return
	}
	c.HTML(http.StatusOK, renderable.Template, renderable.Data)
}

// APIStatus reports connection and display state.
func (h *PanelHandlers) APIStatus(c *gin.Context) {
	var lastMessage string
	if last := h.monitor.LastMessageAt(); !last.IsZero() {
		lastMessage = last.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{
		"state":             string(h.monitor.State()),
		"connected":         h.monitor.Connected(),
		"topic":             h.monitor.TopicName(),
		"bridge_url":        h.cfg.BridgeURL(),
		"namespace":         h.cfg.Namespace,
		"namespace_warning": h.cfg.NamespaceWarning,
		"paused":            h.panel.Paused(),
		"pinned_step":       h.panel.PinnedStep(),
		"history_len":       h.monitor.History().Len(),
		"last_message":      lastMessage,
	})
}

// APITree returns the displayed snapshot's visible tree rows.
func (h *PanelHandlers) APITree(c *gin.Context) {
	snapshot := h.panel.Displayed()
	resp := gin.H{
		"rows":     h.panel.TreeRows(),
		"selected": h.panel.Selected(),
	}
	if snapshot != nil {
		resp["timestamp"] = snapshot.TimestampMS
		resp["level"] = snapshot.Level
	}
	c.JSON(http.StatusOK, resp)
}

// APIErrors returns the error-level leaf table.
func (h *PanelHandlers) APIErrors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rows": h.panel.ErrorRows()})
}

// APIWarnings returns the warning-level leaf table.
func (h *PanelHandlers) APIWarnings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rows": h.panel.WarningRows()})
}

// APIHistory returns the scrubber steps.
func (h *PanelHandlers) APIHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"steps":  h.panel.ScrubberSteps(),
		"paused": h.panel.Paused(),
	})
}

// APIDetail returns the detail pane for the current selection.
func (h *PanelHandlers) APIDetail(c *gin.Context) {
	detail := panel.DetailFor(h.panel.Detail())
	if detail == nil {
		// Selection missing from the displayed snapshot is a normal
		// condition, not an error.
		c.JSON(http.StatusOK, gin.H{"detail": nil, "selected": h.panel.Selected()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": detail, "selected": h.panel.Selected()})
}

type selectRequest struct {
	RawName string `json:"raw_name" binding:"required"`
}

// APISelect selects an entry by identity and auto-expands its ancestors.
func (h *PanelHandlers) APISelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "raw_name is required"})
		return
	}
	h.panel.Select(middleware.SanitizeString(req.RawName))
	c.JSON(http.StatusOK, gin.H{"selected": h.panel.Selected()})
}

// APIToggle flips the expand state of one node.
func (h *PanelHandlers) APIToggle(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "raw_name is required"})
		return
	}
	rawName := middleware.SanitizeString(req.RawName)
	h.panel.Toggle(rawName)
	c.JSON(http.StatusOK, gin.H{"raw_name": rawName, "expanded": h.panel.Expanded(rawName)})
}

// APIPin pins the display to a history step and pauses accumulation.
func (h *PanelHandlers) APIPin(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("step"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid history step"})
		return
	}
	h.panel.PinStep(index)
	c.JSON(http.StatusOK, gin.H{"pinned_step": h.panel.PinnedStep(), "paused": true})
}

// APIResume unpins the display and resumes live tracking.
func (h *PanelHandlers) APIResume(c *gin.Context) {
	h.panel.Resume()
	c.JSON(http.StatusOK, gin.H{"pinned_step": h.panel.PinnedStep(), "paused": false})
}

// APIClearHistory empties the rolling buffer on user request.
func (h *PanelHandlers) APIClearHistory(c *gin.Context) {
	h.monitor.History().Clear()
	c.JSON(http.StatusOK, gin.H{"history_len": 0})
}

// APISystem returns the host telemetry sample.
func (h *PanelHandlers) APISystem(c *gin.Context) {
	if h.sampler == nil {
		c.JSON(http.StatusOK, gin.H{"telemetry": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"telemetry": h.sampler.Latest()})
}
