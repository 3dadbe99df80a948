// Package highlight computes how an overlay's highlighted areas change in
// response to image and interaction events.
//
// Every function is pure: it reads an OverlayContext and returns a Result
// without touching the registry. Highlighted entries are always clones of
// the canonical areas.
package highlight

import (
	"slices"

	"github.com/nb-picture/backend/internal/models"
)

// OverlayContext is the resolved input of a transition.
type OverlayContext struct {
	Overlay    models.Overlay // switches only, Overlay.Areas is ignored
	Areas      []models.Area  // canonical map areas
	Highlights []models.Area  // currently highlighted copies
}

// NewContext builds a context from an overlay and the map's areas.
func NewContext(overlay models.Overlay, areas []models.Area) OverlayContext {
	return OverlayContext{
		Overlay:    overlay,
		Areas:      areas,
		Highlights: overlay.Areas,
	}
}

// Result is the outcome of a transition.
type Result struct {
	Changed bool
	New     []models.Area
	Old     []models.Area
}

func unchanged(ctx OverlayContext) Result {
	return Result{New: ctx.Highlights, Old: ctx.Highlights}
}

func changedTo(ctx OverlayContext, next []models.Area) Result {
	if next == nil {
		next = []models.Area{}
	}
	return Result{
		Changed: !models.AreasEqual(ctx.Highlights, next),
		New:     next,
		Old:     ctx.Highlights,
	}
}

func (ctx OverlayContext) area(id string) (models.Area, bool) {
	i := models.IndexOfArea(ctx.Areas, id)
	if i < 0 {
		return models.Area{}, false
	}
	return ctx.Areas[i], true
}

func (ctx OverlayContext) highlighted(id string) bool {
	return models.IndexOfArea(ctx.Highlights, id) > -1
}

// OnBaseLoad highlights every area of an always-on overlay.
func OnBaseLoad(ctx OverlayContext) Result {
	if !ctx.Overlay.AlwaysOn {
		return unchanged(ctx)
	}
	return changedTo(ctx, models.CloneAreas(ctx.Areas))
}

// OnBaseError clears the highlighted set.
func OnBaseError(ctx OverlayContext) Result {
	if len(ctx.Highlights) == 0 {
		return unchanged(ctx)
	}
	return changedTo(ctx, []models.Area{})
}

// OnResize re-copies highlighted areas from the canonical list so they pick
// up recomputed coordinates. Entries whose area no longer exists are dropped.
func OnResize(ctx OverlayContext) Result {
	if len(ctx.Highlights) == 0 {
		return unchanged(ctx)
	}
	next := make([]models.Area, 0, len(ctx.Highlights))
	for _, h := range ctx.Highlights {
		if a, ok := ctx.area(h.ID); ok {
			next = append(next, a.Clone())
		}
	}
	return changedTo(ctx, next)
}

// OnClickArea toggles the clicked area. Single-select overlays swap to the
// clicked area in one step, or clear when the highlighted area is clicked.
func OnClickArea(ctx OverlayContext, areaID string) Result {
	if ctx.Overlay.AlwaysOn || !ctx.Overlay.Click {
		return unchanged(ctx)
	}
	a, ok := ctx.area(areaID)
	if !ok {
		return unchanged(ctx)
	}

	if ctx.Overlay.Single {
		if ctx.highlighted(areaID) {
			return changedTo(ctx, []models.Area{})
		}
		return changedTo(ctx, []models.Area{a.Clone()})
	}

	if ctx.highlighted(areaID) {
		return changedTo(ctx, without(ctx.Highlights, areaID))
	}
	return changedTo(ctx, with(ctx.Highlights, a))
}

// OnFocusArea adds the area on focus and removes it on blur.
func OnFocusArea(ctx OverlayContext, areaID string, blur bool) Result {
	if ctx.Overlay.AlwaysOn || !ctx.Overlay.Focus {
		return unchanged(ctx)
	}
	return showOrHide(ctx, areaID, blur)
}

// OnHoverArea adds the area on mouse enter and removes it on mouse leave.
func OnHoverArea(ctx OverlayContext, areaID string, blur bool) Result {
	if ctx.Overlay.AlwaysOn || !ctx.Overlay.Hover {
		return unchanged(ctx)
	}
	return showOrHide(ctx, areaID, blur)
}

func showOrHide(ctx OverlayContext, areaID string, hide bool) Result {
	if hide {
		if !ctx.highlighted(areaID) {
			return unchanged(ctx)
		}
		return changedTo(ctx, without(ctx.Highlights, areaID))
	}

	a, ok := ctx.area(areaID)
	if !ok || ctx.highlighted(areaID) {
		return unchanged(ctx)
	}
	next := with(ctx.Highlights, a)
	if ctx.Overlay.Single {
		next = []models.Area{a.Clone()}
	}
	return changedTo(ctx, next)
}

// with returns clones of highs followed by a clone of a.
func with(highs []models.Area, a models.Area) []models.Area {
	next := make([]models.Area, 0, len(highs)+1)
	for _, h := range highs {
		next = append(next, h.Clone())
	}
	return append(next, a.Clone())
}

// without returns clones of highs minus the area with the given id.
func without(highs []models.Area, id string) []models.Area {
	next := make([]models.Area, 0, len(highs))
	for _, h := range highs {
		if h.ID != id {
			next = append(next, h.Clone())
		}
	}
	return slices.Clip(next)
}
