package cards

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubCard struct {
	id       string
	template string
	slot     Slot
	screens  []Screen
	data     gin.H
	err      error
}

func (c stubCard) ID() string        { return c.id }
func (c stubCard) Template() string  { return c.template }
func (c stubCard) Screens() []Screen { return c.screens }
func (c stubCard) Slot() Slot        { return c.slot }
func (c stubCard) FetchData(req *Request) (gin.H, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := gin.H{}
	for k, v := range c.data {
		out[k] = v
	}
	if req != nil && req.Payload != nil {
		for k, v := range req.Payload {
			out[k] = v
		}
	}
	return out, nil
}

type panicCard struct {
	id string
}

func (p panicCard) ID() string                            { return p.id }
func (p panicCard) Template() string                      { return "cards/panic.html" }
func (p panicCard) Screens() []Screen                     { return []Screen{ScreenDiagnostics} }
func (p panicCard) Slot() Slot                            { return SlotGrid }
func (p panicCard) FetchData(req *Request) (gin.H, error) { panic("boom") }

func withIsolatedRegistry(t *testing.T, fn func()) {
	t.Helper()
	registryMu.Lock()
	original := make(map[Screen][]Card, len(registry))
	for k, v := range registry {
		original[k] = append([]Card(nil), v...)
	}
	registry = make(map[Screen][]Card)
	registryMu.Unlock()

	defer func() {
		registryMu.Lock()
		registry = original
		registryMu.Unlock()
	}()

	fn()
}

func TestBuildRenderablesFiltersByScreen(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{
			id:       "tree-card",
			template: "cards/tree.html",
			slot:     SlotPrimary,
			screens:  []Screen{ScreenDiagnostics},
			data:     gin.H{"static": "ok"},
		})
		Register(stubCard{
			id:       "other-card",
			template: "cards/other.html",
			slot:     SlotPrimary,
			screens:  []Screen{"another"},
			data:     gin.H{"static": "nope"},
		})

		req := &Request{Payload: gin.H{"payload": "value"}}
		renderables := BuildRenderables(ScreenDiagnostics, req)
		if len(renderables) != 1 {
			t.Fatalf("expected 1 renderable, got %d", len(renderables))
		}
		got := renderables[0]
		if got.ID != "tree-card" {
			t.Fatalf("expected card ID tree-card, got %s", got.ID)
		}
		if got.Template != "cards/tree.html" {
			t.Fatalf("unexpected template %s", got.Template)
		}
		if got.Slot != SlotPrimary {
			t.Fatalf("unexpected slot %s", got.Slot)
		}
		if got.Data["payload"] != "value" {
			t.Fatalf("expected payload data to pass through, got %v", got.Data["payload"])
		}
	})
}

func TestBuildRenderablesSkipsFailingCards(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{
			id:       "healthy",
			template: "cards/healthy.html",
			slot:     SlotGrid,
			screens:  []Screen{ScreenDiagnostics},
			data:     gin.H{"ok": true},
		})
		Register(stubCard{
			id:      "broken",
			slot:    SlotGrid,
			screens: []Screen{ScreenDiagnostics},
			err:     errors.New("fetch failed"),
		})

		renderables := BuildRenderables(ScreenDiagnostics, &Request{})
		if len(renderables) != 1 {
			t.Fatalf("expected failing card to be skipped, got %d renderables", len(renderables))
		}
		if renderables[0].ID != "healthy" {
			t.Fatalf("unexpected card %s", renderables[0].ID)
		}
	})
}

func TestBuildRenderableByID(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{
			id:       "alpha",
			template: "cards/a.html",
			slot:     SlotFooter,
			screens:  []Screen{ScreenDiagnostics},
			data:     gin.H{"alpha": 1},
		})
		Register(stubCard{
			id:       "beta",
			template: "cards/b.html",
			slot:     SlotFooter,
			screens:  []Screen{ScreenDiagnostics},
			data:     gin.H{"beta": 2},
		})

		req := &Request{Payload: gin.H{"shared": "yes"}}
		renderable, ok := BuildRenderableByID(ScreenDiagnostics, "beta", req)
		if !ok {
			t.Fatalf("expected card beta to be resolved")
		}
		if renderable.ID != "beta" {
			t.Fatalf("unexpected card %s", renderable.ID)
		}
		if renderable.Data["beta"] != 2 {
			t.Fatalf("expected card data to include static field")
		}
		if renderable.Data["shared"] != "yes" {
			t.Fatalf("expected payload data to merge, got %v", renderable.Data["shared"])
		}

		if _, ok := BuildRenderableByID(ScreenDiagnostics, "missing", req); ok {
			t.Fatalf("expected missing card lookup to fail")
		}
		if _, ok := BuildRenderableByID(ScreenDiagnostics, "  ", req); ok {
			t.Fatalf("expected blank card id lookup to fail")
		}
	})
}

func TestSafeFetchRecoversPanics(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(panicCard{id: "boom"})

		data, err := safeFetch(panicCard{id: "boom"}, &Request{})
		if err != nil {
			t.Fatalf("recovered panic must not surface as an error: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("expected empty data after panic, got %#v", data)
		}

		// A panicking card still renders, just empty.
		renderables := BuildRenderables(ScreenDiagnostics, &Request{})
		if len(renderables) != 1 {
			t.Fatalf("expected panicking card to render empty, got %d", len(renderables))
		}
	})
}
