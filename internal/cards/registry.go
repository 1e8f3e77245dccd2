// Package cards implements the dashboard's renderable component registry.
// Each card declares the screens it appears on and fetches its own data;
// handlers hydrate a screen by building its renderables.
package cards

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"rosdash/internal/config"
	"rosdash/internal/diagnostics"
	"rosdash/internal/monitor"
	"rosdash/internal/panel"
)

// StatusSource is the connection-state surface cards and handlers render
// from; *monitor.Monitor implements it.
type StatusSource interface {
	State() monitor.State
	Connected() bool
	TopicName() string
	LastMessageAt() time.Time
	History() *diagnostics.History
	Latest() *diagnostics.Snapshot
}

// Screen identifies a UI surface that hosts cards.
type Screen string

const (
	ScreenDiagnostics Screen = "diagnostics"
)

// Slot identifies a layout region on the page.
type Slot string

const (
	SlotPrimary Slot = "primary"
	SlotGrid    Slot = "grid"
	SlotFooter  Slot = "footer"
)

// Request provides contextual data when rendering a card.
type Request struct {
	Context *gin.Context
	Panel   *panel.Panel
	Monitor StatusSource
	Config  *config.Config
	Payload gin.H
}

// Card describes a renderable dashboard component.
type Card interface {
	ID() string
	Template() string
	Screens() []Screen
	Slot() Slot
	FetchData(*Request) (gin.H, error)
}

// Renderable is the hydrated card data sent to templates.
type Renderable struct {
	ID       string
	Template string
	Data     gin.H
	Slot     Slot
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Screen][]Card)
)

// Register attaches a card to every screen it supports.
func Register(card Card) {
	if card == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, screen := range card.Screens() {
		if screen == "" {
			continue
		}
		registry[screen] = append(registry[screen], card)
	}
}

// BuildRenderables resolves cards for a screen and hydrates their templates with contextual data.
func BuildRenderables(screen Screen, req *Request) []Renderable {
	registryMu.RLock()
	cardsForScreen := append([]Card(nil), registry[screen]...)
	registryMu.RUnlock()

	if len(cardsForScreen) == 0 {
		return nil
	}

	renderables := make([]Renderable, 0, len(cardsForScreen))
	for _, card := range cardsForScreen {
		data, err := safeFetch(card, req)
		if err != nil {
			log.Printf("cards: unable to fetch data for %s: %v", safeID(card), err)
			continue
		}
		if data == nil {
			data = gin.H{}
		}
		renderables = append(renderables, Renderable{
			ID:       card.ID(),
			Template: card.Template(),
			Data:     data,
			Slot:     card.Slot(),
		})
	}
	return renderables
}

// BuildRenderableByID resolves a single card by ID for the given screen.
// It returns the hydrated renderable and true when the card exists.
func BuildRenderableByID(screen Screen, cardID string, req *Request) (Renderable, bool) {
	if strings.TrimSpace(cardID) == "" {
		return Renderable{}, false
	}
	registryMu.RLock()
	cardsForScreen := append([]Card(nil), registry[screen]...)
	registryMu.RUnlock()

	for _, card := range cardsForScreen {
		if card.ID() != cardID {
			continue
		}
		data, err := safeFetch(card, req)
		if err != nil {
			log.Printf("cards: unable to fetch data for %s: %v", cardID, err)
			return Renderable{}, false
		}
		if data == nil {
			data = gin.H{}
		}
		return Renderable{
			ID:       card.ID(),
			Template: card.Template(),
			Data:     data,
			Slot:     card.Slot(),
		}, true
	}
	return Renderable{}, false
}

func safeFetch(card Card, req *Request) (data gin.H, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cards: panic fetching %s: %v", safeID(card), r)
			data = gin.H{}
			err = nil
		}
	}()
	return card.FetchData(req)
}

func safeID(card Card) string {
	if card == nil {
		return "<nil>"
	}
	return card.ID()
}
