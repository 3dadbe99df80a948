package picture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nb-picture/backend/internal/geometry"
	"github.com/nb-picture/backend/internal/models"
)

func strPtr(s string) *string { return &s }

func newTestRegistry(opts ...Option) *Registry {
	return NewRegistry(NewCounterGenerator(), opts...)
}

// relativeMap mirrors a definition decoded from YAML.
func relativeMap() map[string]any {
	return map[string]any{
		"name":      "floor",
		"resize":    true,
		"relCoords": true,
		"areas": []any{
			map[string]any{"shape": "rect", "coords": []any{0, 0, 0.5, 0.5}, "title": "Kitchen"},
			map[string]any{"shape": "circle", "coords": []any{0.75, 0.5, 0.1}, "href": "/room/2", "data": map[string]any{"room": 2}},
		},
		"overlays": map[string]any{
			"markers": map[string]any{"alwaysOn": true},
			"canvas":  map[string]any{"click": true, "single": true, "fill": true, "fillColor": "FF0000"},
			"inert":   map[string]any{"show": false},
		},
	}
}

func TestCreateAndDestroyPicture(t *testing.T) {
	r := newTestRegistry()

	id := r.CreatePicture()
	assert.Equal(t, "nb-picture-1", id)
	assert.Equal(t, 1, r.Len())

	p, ok := r.GetPicture(id)
	require.True(t, ok)
	assert.Equal(t, id, p.ID)
	assert.False(t, p.Complete)

	r.DestroyPicture(id)
	r.DestroyPicture("unknown")
	_, ok = r.GetPicture(id)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestSetPicture(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	err := r.SetPicture(id, PictureInput{
		DefaultSource: "small.jpg",
		Sources:       []any{[]any{"xlarge.jpg", "xlarge"}, []any{"large.jpg", "large"}, []string{"other.jpg", "unknown"}},
		Alt:           strPtr("A house"),
	})
	require.NoError(t, err)

	p, _ := r.GetPicture(id)
	assert.Equal(t, []models.Source{
		{Srcset: "other.jpg"},
		{Srcset: "large.jpg", Media: "only screen and (min-width: 992px)"},
		{Srcset: "xlarge.jpg", Media: "only screen and (min-width: 1440px)"},
		{Srcset: "small.jpg"},
	}, p.Sources)
	assert.Equal(t, models.Img{Srcset: "small.jpg", Alt: "A house"}, p.Img)

	fb, ok := p.Fallback()
	require.True(t, ok)
	assert.Equal(t, "small.jpg", fb.Srcset)
}

func TestSetPictureDefaults(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	require.NoError(t, r.SetPicture(id, PictureInput{DefaultSource: "a.jpg", Sources: []any{}}))
	p, _ := r.GetPicture(id)
	assert.Equal(t, "", p.Img.Alt)
	assert.Equal(t, []models.Source{{Srcset: "a.jpg"}}, p.Sources)

	// Unknown pictures are not an error.
	assert.NoError(t, r.SetPicture("missing", PictureInput{Sources: []any{}}))
}

func TestSetPictureInvalidSources(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	for _, in := range []any{"not-an-array", nil, 42, map[string]any{"a": 1}} {
		err := r.SetPicture(id, PictureInput{DefaultSource: "a.jpg", Sources: in})
		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid, "input %v", in)
		assert.Equal(t, "sources", invalid.Field)
	}

	err := r.SetPicture(id, PictureInput{Sources: []any{[]any{1, "large"}}})
	var invalid *InvalidInputError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "srcset", invalid.Field)
}

func TestSetPictureUsemap(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	require.NoError(t, r.SetMap(id, map[string]any{"name": "plan", "areas": []any{}}))
	require.NoError(t, r.SetPicture(id, PictureInput{DefaultSource: "a.jpg", Sources: []any{}}))
	p, _ := r.GetPicture(id)
	assert.Equal(t, "#plan", p.Img.Usemap)

	require.NoError(t, r.SetMap(id, map[string]any{"name": "plan", "resize": true}))
	require.NoError(t, r.SetPicture(id, PictureInput{DefaultSource: "a.jpg", Sources: []any{}}))
	p, _ = r.GetPicture(id)
	assert.Empty(t, p.Img.Usemap)
}

func TestPictureComplete(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	complete, ok := r.GetPictureComplete(id)
	require.True(t, ok)
	assert.False(t, complete)

	r.SetPictureComplete(id, true)
	complete, _ = r.GetPictureComplete(id)
	assert.True(t, complete)

	_, ok = r.GetPictureComplete("missing")
	assert.False(t, ok)
}

func TestSetMap(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	require.NoError(t, r.SetMap(id, relativeMap()))

	m, ok := r.GetMap(id)
	require.True(t, ok)
	assert.Equal(t, "floor", m.Name)
	assert.True(t, m.RelCoords)
	require.Len(t, m.Areas, 2)

	a := m.Areas[0]
	assert.Equal(t, "nb-picture-map-area-2", a.ID)
	assert.Equal(t, geometry.Rectangle, a.Shape)
	assert.Equal(t, "#", a.Href)
	assert.Equal(t, "Kitchen", a.Title)
	assert.Equal(t, []float64{0, 0, 0.5, 0.5}, a.AbsCoords)
	assert.Equal(t, "/room/2", m.Areas[1].Href)

	// Inert overlays are dropped; the key becomes the overlay id.
	assert.Equal(t, []string{"canvas", "markers"}, r.OverlayIDs(id))
	canvas := m.Overlays["canvas"]
	assert.Equal(t, "canvas", canvas.ID)
	assert.True(t, canvas.Show)
	assert.True(t, canvas.Single)
	assert.Equal(t, map[string]any{"fill": true, "fillColor": "FF0000"}, canvas.Options)
	assert.Empty(t, canvas.Areas)
}

func TestSetMapGeneratesName(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	require.NoError(t, r.SetMap(id, models.MapSpec{}))
	m, _ := r.GetMap(id)
	assert.Equal(t, "nb-picture-map-2", m.Name)
}

func TestSetMapInvalid(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()

	err := r.SetMap(id, "not-an-object")
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "map", invalid.Field)

	assert.Error(t, r.SetMap(id, map[string]any{"areas": "nope"}))
}

func TestSetMapTouch(t *testing.T) {
	r := newTestRegistry(WithTouch(true))
	id := r.CreatePicture()

	require.NoError(t, r.SetMap(id, map[string]any{
		"overlays": map[string]any{"tooltips": map[string]any{"hover": true, "focus": true}},
	}))
	o, ok := r.GetMapOverlay(id, "tooltips")
	require.True(t, ok)
	assert.True(t, o.Click)
	assert.False(t, o.Hover)
	assert.False(t, o.Focus)
}

func TestClearMap(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))

	r.ClearMap(id)
	_, ok := r.GetMap(id)
	assert.False(t, ok)
	assert.Nil(t, r.OverlayIDs(id))
}

func TestResizeMap(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))

	assert.True(t, r.ResizeMap(id, 200, 100, true))
	a, _ := r.GetMapArea(id, "nb-picture-map-area-2")
	assert.Equal(t, []float64{0, 0, 100, 50}, a.AbsCoords)
	assert.Equal(t, []float64{0, 0, 0.5, 0.5}, a.Coords)

	circle, _ := r.GetMapArea(id, "nb-picture-map-area-3")
	assert.Equal(t, []float64{150, 50, 10}, circle.AbsCoords)

	assert.False(t, r.ResizeMap(id, 200, 100, true), "same size")
	assert.False(t, r.ResizeMap(id, 0, 100, true), "unknown size")
	assert.False(t, r.ResizeMap("missing", 200, 100, true))
}

func TestResizeMapAbsoluteCoords(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, map[string]any{
		"areas": []any{map[string]any{"shape": "rect", "coords": []any{1, 2, 3, 4}}},
	}))

	assert.False(t, r.ResizeMap(id, 200, 100, true))
	areas, _ := r.GetMapAreas(id)
	assert.Equal(t, []float64{1, 2, 3, 4}, areas[0].AbsCoords)
}

func TestResizeMapRefreshesHighlights(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	require.True(t, r.OnBaseLoad(id, "markers"))

	require.True(t, r.ResizeMap(id, 400, 200, true))
	highs, _ := r.GetMapOverlayAreas(id, "markers")
	require.Len(t, highs, 2)
	assert.Equal(t, []float64{0, 0, 200, 100}, highs[0].AbsCoords)
	assert.False(t, r.OnResize(id, "markers"), "copies already refreshed")
}

func TestGettersReturnCopies(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))

	areas, _ := r.GetMapAreas(id)
	areas[0].Coords[0] = 99
	areas[1].Data.(map[string]any)["room"] = 3

	m, _ := r.GetMap(id)
	m.Overlays["canvas"].Click = false

	fresh, _ := r.GetMapAreas(id)
	assert.Equal(t, 0.0, fresh[0].Coords[0])
	assert.Equal(t, 2, fresh[1].Data.(map[string]any)["room"])
	o, _ := r.GetMapOverlay(id, "canvas")
	assert.True(t, o.Click)
}

func TestSetMapAreaCreate(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	require.True(t, r.OnBaseLoad(id, "markers"))

	a, ok := r.SetMapArea(id, models.Area{Shape: geometry.Polygon, Coords: []float64{0, 0, 1, 0, 1, 1}})
	require.True(t, ok)
	assert.Equal(t, "nb-picture-map-area-4", a.ID)
	assert.Equal(t, "#", a.Href)
	assert.Equal(t, a.Coords, a.AbsCoords)

	areas, _ := r.GetMapAreas(id)
	assert.Len(t, areas, 3)

	markers, _ := r.GetMapOverlayAreas(id, "markers")
	assert.Equal(t, models.AreaIDs(areas), models.AreaIDs(markers))

	canvas, _ := r.GetMapOverlayAreas(id, "canvas")
	assert.Empty(t, canvas)
}

func TestSetMapAreaReplace(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	require.True(t, r.OnClickArea(id, "canvas", "nb-picture-map-area-2"))

	a, _ := r.GetMapArea(id, "nb-picture-map-area-2")
	_, changed := r.SetMapArea(id, a)
	assert.False(t, changed, "identical replacement")

	a.Title = "Dining"
	_, changed = r.SetMapArea(id, a)
	require.True(t, changed)

	h, ok := r.GetMapOverlayArea(id, "canvas", a.ID)
	require.True(t, ok)
	assert.Equal(t, "Dining", h.Title)

	_, changed = r.SetMapArea(id, models.Area{ID: "unknown"})
	assert.False(t, changed)
	_, changed = r.SetMapArea("missing", models.Area{})
	assert.False(t, changed)
}

func TestDeleteMapArea(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	require.True(t, r.OnBaseLoad(id, "markers"))

	assert.True(t, r.DeleteMapArea(id, "nb-picture-map-area-2"))
	assert.False(t, r.DeleteMapArea(id, "nb-picture-map-area-2"))

	areas, _ := r.GetMapAreas(id)
	assert.Equal(t, []string{"nb-picture-map-area-3"}, models.AreaIDs(areas))
	markers, _ := r.GetMapOverlayAreas(id, "markers")
	assert.Equal(t, []string{"nb-picture-map-area-3"}, models.AreaIDs(markers))
}

func TestOverlayAreas(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	areas, _ := r.GetMapAreas(id)

	assert.True(t, r.SetMapOverlayAreas(id, "markers", areas))
	assert.False(t, r.SetMapOverlayAreas(id, "markers", areas))

	assert.True(t, r.SetMapOverlayAreas(id, "canvas", areas))
	canvas, _ := r.GetMapOverlayAreas(id, "canvas")
	assert.Len(t, canvas, 1, "single overlays keep one area")

	assert.True(t, r.SetMapOverlayArea(id, "canvas", areas[1]))
	canvas, _ = r.GetMapOverlayAreas(id, "canvas")
	assert.Equal(t, []string{areas[1].ID}, models.AreaIDs(canvas))
	assert.False(t, r.SetMapOverlayArea(id, "canvas", areas[1]))
	assert.False(t, r.SetMapOverlayArea(id, "canvas", models.Area{}))

	_, ok := r.GetMapOverlayArea(id, "canvas", areas[0].ID)
	assert.False(t, ok)
	assert.False(t, r.SetMapOverlayAreas(id, "missing", areas))
}

func TestShowHideMapOverlay(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	require.True(t, r.OnBaseLoad(id, "markers"))

	assert.False(t, r.ShowMapOverlay(id, "markers"), "already shown")
	assert.True(t, r.HideMapOverlay(id, "markers"))
	assert.False(t, r.HideMapOverlay(id, "markers"))

	o, _ := r.GetMapOverlay(id, "markers")
	assert.False(t, o.Show)
	assert.Len(t, o.Areas, 2, "hiding keeps the highlighted set")

	assert.True(t, r.ShowMapOverlay(id, "markers"))
	assert.False(t, r.ShowMapOverlay(id, "missing"))
}

func TestInteractionTransitions(t *testing.T) {
	r := newTestRegistry()
	id := r.CreatePicture()
	require.NoError(t, r.SetMap(id, relativeMap()))
	first, second := "nb-picture-map-area-2", "nb-picture-map-area-3"

	assert.True(t, r.OnClickArea(id, "canvas", first))
	assert.True(t, r.OnClickArea(id, "canvas", second))
	highs, _ := r.GetMapOverlayAreas(id, "canvas")
	assert.Equal(t, []string{second}, models.AreaIDs(highs))

	assert.True(t, r.OnClickArea(id, "canvas", second))
	highs, _ = r.GetMapOverlayAreas(id, "canvas")
	assert.Empty(t, highs)

	assert.False(t, r.OnClickArea(id, "markers", first), "always-on ignores clicks")
	assert.False(t, r.OnHoverArea(id, "canvas", first, false), "hover disabled")
	assert.False(t, r.OnFocusArea(id, "canvas", first, false), "focus disabled")
	assert.False(t, r.OnClickArea(id, "missing", first))
	assert.False(t, r.OnClickArea("missing", "canvas", first))

	require.True(t, r.OnBaseLoad(id, "markers"))
	assert.True(t, r.OnBaseError(id, "markers"))
	assert.False(t, r.OnBaseError(id, "markers"))
}

func TestWithMediaQueries(t *testing.T) {
	r := newTestRegistry(WithMediaQueries(map[string]string{"wide": "(min-width: 2000px)"}))
	id := r.CreatePicture()

	require.NoError(t, r.SetPicture(id, PictureInput{DefaultSource: "a.jpg", Sources: []any{[]any{"b.jpg", "wide"}, []any{"c.jpg", "large"}}}))
	p, _ := r.GetPicture(id)
	assert.Equal(t, "", p.Sources[0].Media, "large is not configured")
	assert.Equal(t, "(min-width: 2000px)", p.Sources[1].Media)
	assert.Equal(t, map[string]string{"wide": "(min-width: 2000px)"}, r.MediaQueries())
}

func TestIDGenerators(t *testing.T) {
	g := NewCounterGenerator()
	assert.Equal(t, "nb-picture-1", g.NewID(PicturePrefix))
	assert.Equal(t, "nb-picture-map-2", g.NewID(MapPrefix))

	u := NewIDGenerator("uuid")
	id := u.NewID(AreaPrefix)
	assert.Len(t, id, len(AreaPrefix)+36)
	assert.NotEqual(t, id, u.NewID(AreaPrefix))

	_, ok := NewIDGenerator("counter").(*CounterGenerator)
	assert.True(t, ok)
}

func TestInvalidInputErrorMessage(t *testing.T) {
	err := &InvalidInputError{Field: "sources", Type: "Array"}
	assert.Equal(t, `expected attribute "sources" to evaluate to Array`, err.Error())
}
