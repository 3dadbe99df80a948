package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nb-picture/backend/internal/dom"
	"github.com/nb-picture/backend/internal/events"
	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/picture"
	"github.com/nb-picture/backend/internal/testutil"
)

type harness struct {
	reg     *picture.Registry
	el      *dom.Element
	win     *dom.Window
	sched   *dom.ManualScheduler
	c       *Coordinator
	events  []events.Event
	applied []models.Picture
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		reg:   picture.NewRegistry(picture.NewCounterGenerator()),
		el:    dom.NewElement(),
		win:   dom.NewWindow(),
		sched: dom.NewManualScheduler(),
	}
	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) { h.events = append(h.events, e) })

	h.c = New(h.reg, bus, Deps{
		Image:     h.el,
		Window:    h.win,
		Scheduler: h.sched,
		Applier: SourceApplierFunc(func(_ string, p models.Picture) {
			h.applied = append(h.applied, p)
		}),
	}, opts)
	h.c.Init()
	return h
}

func (h *harness) load(width, height int) {
	h.el.SetLoaded(width, height)
	h.el.Fire(dom.EventLoad)
}

func (h *harness) areaIDs(t *testing.T) []string {
	t.Helper()
	areas, ok := h.reg.GetMapAreas(h.c.ID())
	require.True(t, ok)
	return models.AreaIDs(areas)
}

func (h *harness) highlighted(overlayID string) []string {
	areas, _ := h.reg.GetMapOverlayAreas(h.c.ID(), overlayID)
	return models.AreaIDs(areas)
}

func (h *harness) lastEvent(t *testing.T) events.Event {
	t.Helper()
	require.NotEmpty(t, h.events)
	return h.events[len(h.events)-1]
}

func mapAttrs(resize bool) Attrs {
	return Attrs{
		DefaultSource: "plan.png",
		Sources:       []any{[]any{"plan-large.png", "large"}},
		Map: map[string]any{
			"name":      "floor",
			"resize":    resize,
			"relCoords": true,
			"areas": []any{
				map[string]any{"shape": "rect", "coords": []any{0, 0, 0.5, 0.5}},
				map[string]any{"shape": "rect", "coords": []any{0.5, 0.5, 1, 1}},
			},
			"overlays": map[string]any{
				"markers": map[string]any{"alwaysOn": true},
				"canvas":  map[string]any{"click": true, "single": true},
			},
		},
	}
}

func TestInit(t *testing.T) {
	reg := picture.NewRegistry(picture.NewCounterGenerator())
	c := New(reg, events.NewBus(), Deps{Image: dom.NewElement(), Window: dom.NewWindow(), Scheduler: dom.NewManualScheduler()}, Options{})

	require.NoError(t, c.Update(mapAttrs(true)), "update before init is ignored")
	assert.Empty(t, c.ID())
	assert.Equal(t, Uninitialized, c.State())

	c.Init()
	id := c.ID()
	c.Init()
	assert.Equal(t, "nb-picture-1", id)
	assert.Equal(t, id, c.ID())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, Uninitialized, c.State())
}

func TestUpdateAndLoad(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.c.Update(mapAttrs(true)))
	assert.Equal(t, Loading, h.c.State())
	assert.Equal(t, "plan.png", h.el.Src())
	assert.Equal(t, 1, h.el.Listeners(dom.EventLoad))
	assert.Equal(t, 0, h.win.Listeners(), "window listener waits for the deferred step")
	assert.Empty(t, h.applied)

	assert.Equal(t, 1, h.sched.Flush())
	require.Len(t, h.applied, 1)
	assert.Equal(t, "plan.png", h.applied[0].Img.Srcset)
	assert.Empty(t, h.applied[0].Img.Usemap, "resizable maps are drawn, not bound with usemap")
	assert.Equal(t, 1, h.win.Listeners())

	assert.Equal(t, 0, h.c.Width(), "no size before load")

	h.load(200, 100)
	assert.Equal(t, Loaded, h.c.State())
	assert.Equal(t, 200, h.c.Width())
	assert.Equal(t, 100, h.c.Height())
	assert.Equal(t, 0, h.el.Listeners(dom.EventLoad), "image listeners detached after load")
	assert.Equal(t, 0, h.el.Listeners(dom.EventError))

	complete, _ := h.reg.GetPictureComplete(h.c.ID())
	assert.True(t, complete)

	area, ok := h.reg.GetMapArea(h.c.ID(), "nb-picture-map-area-2")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 100, 50}, area.AbsCoords)

	assert.Equal(t, h.areaIDs(t), h.highlighted("markers"))
	e := h.lastEvent(t)
	assert.Equal(t, events.BaseLoad, e.Type)
	assert.Equal(t, []string{"markers"}, e.Overlays)
}

func TestLoadViaReadyState(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))

	h.el.Fire(dom.EventReadyStateChange)
	assert.Equal(t, Loading, h.c.State(), "not complete yet")

	h.el.SetReadyState(dom.ReadyStateComplete)
	h.el.Fire(dom.EventReadyStateChange)
	assert.Equal(t, Loaded, h.c.State())
}

func TestErrorBeforeSourceIsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	attrs := mapAttrs(false)
	attrs.DefaultSource = ""
	require.NoError(t, h.c.Update(attrs))

	h.el.Fire(dom.EventError)
	assert.Equal(t, Loading, h.c.State())
	assert.Equal(t, 1, h.el.Listeners(dom.EventError))
}

func TestErrorClearsHighlightsAndBlocksInteraction(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))
	h.sched.Flush()

	first := h.areaIDs(t)[0]
	require.True(t, h.c.ClickArea(first))
	assert.Equal(t, []string{first}, h.highlighted("canvas"))
	assert.Equal(t, []string{"canvas"}, h.lastEvent(t).Overlays)

	h.el.Fire(dom.EventError)
	assert.Equal(t, Errored, h.c.State())
	assert.Empty(t, h.highlighted("canvas"))
	e := h.lastEvent(t)
	assert.Equal(t, events.BaseError, e.Type)
	assert.Equal(t, []string{"canvas"}, e.Overlays)
	assert.Equal(t, 0, h.el.Listeners(dom.EventError))
	assert.Equal(t, 0, h.c.Width())

	published := len(h.events)
	for _, id := range h.areaIDs(t) {
		assert.False(t, h.c.ClickArea(id))
		assert.False(t, h.c.FocusArea(id, false))
		assert.False(t, h.c.HoverArea(id, false))
	}
	assert.Len(t, h.events, published, "no events while errored")

	require.NoError(t, h.c.Update(mapAttrs(false)))
	assert.True(t, h.c.ClickArea(h.areaIDs(t)[0]))
}

func TestUpdateCancelsPreviousCycle(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.c.Update(mapAttrs(true)))
	require.NoError(t, h.c.Update(mapAttrs(true)))

	assert.Equal(t, 1, h.el.Listeners(dom.EventLoad), "no duplicate image listeners")
	assert.Equal(t, 1, h.sched.Flush(), "superseded deferred step cancelled")
	assert.Len(t, h.applied, 1)
	assert.Equal(t, 1, h.win.Listeners())

	require.NoError(t, h.c.Update(mapAttrs(true)))
	assert.Equal(t, 0, h.win.Listeners(), "window listener detached on update")
	h.sched.Flush()
	assert.Equal(t, 1, h.win.Listeners())
}

func TestStaleListenerIsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))

	// A listener captured before the update must not act on the new cycle.
	h.c.onImageLoad(h.c.generation - 1)
	h.el.SetLoaded(10, 10)
	h.c.onImageLoad(h.c.generation - 1)
	assert.Equal(t, Loading, h.c.State())
}

func TestResize(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(true)))
	h.sched.Flush()
	h.load(200, 100)

	h.el.SetSize(400, 200)
	h.win.Resize()

	area, _ := h.reg.GetMapArea(h.c.ID(), "nb-picture-map-area-2")
	assert.Equal(t, []float64{0, 0, 200, 100}, area.AbsCoords)
	markers, _ := h.reg.GetMapOverlayAreas(h.c.ID(), "markers")
	assert.Equal(t, []float64{0, 0, 200, 100}, markers[0].AbsCoords)

	e := h.lastEvent(t)
	assert.Equal(t, events.Resize, e.Type)
	assert.Equal(t, []string{"markers"}, e.Overlays)

	h.win.Resize()
	assert.Empty(t, h.lastEvent(t).Overlays, "same size changes nothing")
}

func TestResizeDebounce(t *testing.T) {
	h := newHarness(t, Options{ResizeDebounce: 50 * time.Millisecond})
	require.NoError(t, h.c.Update(mapAttrs(true)))
	h.sched.Flush()
	h.load(200, 100)
	published := len(h.events)

	h.el.SetSize(400, 200)
	h.win.Resize()
	h.win.Resize()
	assert.Len(t, h.events, published)
	assert.Equal(t, 1, h.sched.Pending())

	h.sched.Flush()
	assert.Len(t, h.events, published+1)
	assert.Equal(t, events.Resize, h.lastEvent(t).Type)
}

func TestNoWindowListenerWithoutResize(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))
	h.sched.Flush()
	assert.Equal(t, 0, h.win.Listeners())
}

func TestPictureWithoutMap(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))
	require.NoError(t, h.c.Update(Attrs{DefaultSource: "photo.jpg", Sources: []any{}}))

	_, ok := h.reg.GetMap(h.c.ID())
	assert.False(t, ok)

	h.sched.Flush()
	h.load(50, 50)
	assert.Equal(t, Loaded, h.c.State())
	assert.Empty(t, h.lastEvent(t).Overlays)
	assert.False(t, h.c.ClickArea("anything"))
}

func TestInvalidAttrs(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.c.Update(Attrs{DefaultSource: "a.jpg", Sources: "not-an-array"})
	var invalid *picture.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "sources", invalid.Field)

	err = h.c.Update(Attrs{DefaultSource: "a.jpg", Sources: []any{}, Map: []any{}})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "map", invalid.Field)
}

func TestInteractionEvents(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(false)))
	h.sched.Flush()
	h.load(200, 100)
	ids := h.areaIDs(t)

	assert.True(t, h.c.ClickArea(ids[0]))
	assert.True(t, h.c.ClickArea(ids[1]))
	assert.Equal(t, []string{ids[1]}, h.highlighted("canvas"))

	assert.False(t, h.c.FocusArea(ids[0], false))
	e := h.lastEvent(t)
	assert.Equal(t, events.FocusArea, e.Type)
	assert.Equal(t, ids[0], e.AreaID)
	assert.Empty(t, e.Overlays)

	assert.False(t, h.c.HoverArea(ids[0], true))
	e = h.lastEvent(t)
	assert.Equal(t, events.HoverArea, e.Type)
	assert.True(t, e.Blur)
}

func TestDestroy(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(true)))

	h.c.Destroy()
	h.c.Destroy()
	assert.Equal(t, Destroyed, h.c.State())
	assert.Equal(t, 0, h.reg.Len())
	assert.Equal(t, 0, h.el.Listeners(dom.EventLoad))
	assert.Equal(t, 0, h.sched.Flush(), "deferred step cancelled")
	assert.Empty(t, h.applied)
	assert.Equal(t, 0, h.win.Listeners())

	h.load(10, 10)
	assert.Equal(t, Destroyed, h.c.State())
	assert.ErrorIs(t, h.c.Update(mapAttrs(true)), ErrDestroyed)
	assert.False(t, h.c.ClickArea("nb-picture-map-area-2"))

	image, cycle := h.c.Listeners()
	assert.Zero(t, image)
	assert.Zero(t, cycle)
}

func TestDestroyDetachesWindowListener(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.c.Update(mapAttrs(true)))
	h.sched.Flush()
	h.load(200, 100)
	require.Equal(t, 1, h.win.Listeners())

	h.c.Destroy()
	assert.Equal(t, 0, h.win.Listeners())
}

func TestProbeDrivenLoad(t *testing.T) {
	store := testutil.NewMockStore()
	store.AddImage("plan.png", 80, 60)

	reg := picture.NewRegistry(picture.NewCounterGenerator())
	el := dom.NewElement()
	sched := dom.NewManualScheduler()
	c := New(reg, events.NewBus(), Deps{
		Image:     el,
		Window:    dom.NewWindow(),
		Scheduler: sched,
		Applier:   dom.NewProbe(el, store),
	}, Options{})
	c.Init()

	require.NoError(t, c.Update(mapAttrs(true)))
	sched.Flush()

	assert.Equal(t, Loaded, c.State())
	assert.Equal(t, 80, c.Width())
	area, _ := reg.GetMapArea(c.ID(), "nb-picture-map-area-2")
	assert.Equal(t, []float64{0, 0, 40, 30}, area.AbsCoords)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "unknown", State(42).String())
}
