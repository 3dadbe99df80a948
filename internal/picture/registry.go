// Package picture owns the per-widget data model: the picture, its image
// map, the map's areas and the overlays highlighting them.
package picture

import (
	"slices"
	"sort"
	"sync"

	"github.com/nb-picture/backend/internal/geometry"
	"github.com/nb-picture/backend/internal/highlight"
	"github.com/nb-picture/backend/internal/models"
)

// PictureInput is the evaluated declarative input of a picture.
type PictureInput struct {
	DefaultSource string
	Sources       any // list of [srcset, breakpoint] pairs, large to small
	Alt           *string
}

type entry struct {
	picture models.Picture
	m       *models.Map
}

// Registry holds picture state keyed by picture id. Getters return copies,
// so callers can never mutate the canonical areas.
type Registry struct {
	mu           sync.RWMutex
	pictures     map[string]*entry
	ids          IDGenerator
	mediaQueries map[string]string
	touch        bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMediaQueries replaces the breakpoint mapping wholesale.
func WithMediaQueries(queries map[string]string) Option {
	return func(r *Registry) {
		r.mediaQueries = cloneQueries(queries)
	}
}

// WithTouch forces every overlay to react to clicks only, as on touch
// devices where focus and hover never fire reliably.
func WithTouch(touch bool) Option {
	return func(r *Registry) {
		r.touch = touch
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(ids IDGenerator, opts ...Option) *Registry {
	r := &Registry{
		pictures:     make(map[string]*entry),
		ids:          ids,
		mediaQueries: DefaultMediaQueries(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MediaQueries returns a copy of the breakpoint mapping.
func (r *Registry) MediaQueries() map[string]string {
	return cloneQueries(r.mediaQueries)
}

// CreatePicture registers a new picture and returns its id.
func (r *Registry) CreatePicture() string {
	id := r.ids.NewID(PicturePrefix)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pictures[id] = &entry{picture: models.Picture{ID: id}}
	return id
}

// DestroyPicture removes a picture with its map. Unknown ids are ignored.
func (r *Registry) DestroyPicture(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pictures, id)
}

// Len returns the number of registered pictures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pictures)
}

// GetPicture returns a copy of the picture.
func (r *Registry) GetPicture(id string) (models.Picture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.pictures[id]
	if !ok {
		return models.Picture{}, false
	}
	return e.picture.Clone(), true
}

// SetPicture rebuilds the picture's sources and image attributes.
func (r *Registry) SetPicture(id string, in PictureInput) error {
	specs, err := decodeSources(in.Sources)
	if err != nil {
		return err
	}

	alt := ""
	if in.Alt != nil {
		alt = *in.Alt
	}

	sources := make([]models.Source, 0, len(specs)+1)
	for i := len(specs) - 1; i >= 0; i-- {
		sources = append(sources, models.Source{
			Srcset: specs[i].Srcset,
			Media:  r.mediaQueries[specs[i].Breakpoint],
		})
	}
	sources = append(sources, models.Source{Srcset: in.DefaultSource})

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pictures[id]
	if !ok {
		return nil
	}

	usemap := ""
	if e.m != nil && !e.m.Resize && e.m.Name != "" {
		usemap = "#" + e.m.Name
	}

	e.picture.Sources = sources
	e.picture.Img = models.Img{
		Srcset: in.DefaultSource,
		Alt:    alt,
		Usemap: usemap,
	}
	return nil
}

// GetPictureComplete reports whether the picture's image load has ended.
func (r *Registry) GetPictureComplete(id string) (complete, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.pictures[id]
	if !ok {
		return false, false
	}
	return e.picture.Complete, true
}

// SetPictureComplete records whether the picture's image load has ended.
func (r *Registry) SetPictureComplete(id string, complete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.pictures[id]; ok {
		e.picture.Complete = complete
	}
}

// GetMap returns a deep copy of the picture's map.
func (r *Registry) GetMap(id string) (*models.Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.mapOf(id)
	if m == nil {
		return nil, false
	}
	return m.Clone(), true
}

// SetMap replaces the picture's map with one built from a declarative map
// input. Overlays that can never change state are dropped.
func (r *Registry) SetMap(id string, in any) error {
	spec, err := decodeMap(in)
	if err != nil {
		return err
	}

	m := &models.Map{
		Name:      spec.Name,
		Resize:    spec.Resize,
		RelCoords: spec.RelCoords,
		Areas:     make([]models.Area, 0, len(spec.Areas)),
		Overlays:  make(map[string]*models.Overlay, len(spec.Overlays)),
	}
	if m.Name == "" {
		m.Name = r.ids.NewID(MapPrefix)
	}

	for _, as := range spec.Areas {
		m.Areas = append(m.Areas, r.buildArea(areaFromSpec(as)))
	}

	for overlayID, os := range spec.Overlays {
		o := overlayFromSpec(overlayID, os)
		if r.touch {
			o.Click = true
			o.Focus = false
			o.Hover = false
		}
		if o.Interactive() {
			m.Overlays[overlayID] = &o
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.pictures[id]; ok {
		e.m = m
	}
	return nil
}

// ClearMap detaches the picture's map, if any.
func (r *Registry) ClearMap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.pictures[id]; ok {
		e.m = nil
	}
}

// ResizeMap recomputes absolute coordinates from relative ones for the given
// rendered size and refreshes the highlighted copies of resized areas.
// Reports whether any coordinates changed.
func (r *Registry) ResizeMap(id string, width, height float64, round bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapOf(id)
	if m == nil || !m.RelCoords || width == 0 || height == 0 {
		return false
	}

	dirty := false
	for i := range m.Areas {
		a := &m.Areas[i]
		coords := geometry.RelToAbs(a.Shape, a.Coords, width, height, round)
		if !slices.Equal(a.AbsCoords, coords) {
			dirty = true
		}
		a.AbsCoords = coords

		for _, o := range m.Overlays {
			if j := models.IndexOfArea(o.Areas, a.ID); j > -1 {
				if !slices.Equal(o.Areas[j].AbsCoords, coords) {
					dirty = true
				}
				o.Areas[j].AbsCoords = slices.Clone(coords)
			}
		}
	}
	return dirty
}

// GetMapAreas returns copies of the map's areas.
func (r *Registry) GetMapAreas(id string) ([]models.Area, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.mapOf(id)
	if m == nil {
		return nil, false
	}
	return models.CloneAreas(m.Areas), true
}

// GetMapArea returns a copy of one area.
func (r *Registry) GetMapArea(id, areaID string) (models.Area, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.mapOf(id)
	if m == nil {
		return models.Area{}, false
	}
	i := m.AreaIndex(areaID)
	if i < 0 {
		return models.Area{}, false
	}
	return m.Areas[i].Clone(), true
}

// SetMapArea creates an area when it has no id, or replaces the existing
// area with the same id. A created area is returned with its assigned id and
// is highlighted at once by always-on overlays. A replaced area is copied
// into every overlay already highlighting it.
func (r *Registry) SetMapArea(id string, area models.Area) (models.Area, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapOf(id)
	if m == nil {
		return models.Area{}, false
	}

	if area.ID == "" {
		a := r.buildArea(area)
		m.Areas = append(m.Areas, a)
		for _, o := range m.Overlays {
			if o.AlwaysOn {
				o.Areas = append(o.Areas, a.Clone())
			}
		}
		return a.Clone(), true
	}

	i := m.AreaIndex(area.ID)
	if i < 0 {
		return models.Area{}, false
	}

	a := area.Clone()
	if a.AbsCoords == nil {
		a.AbsCoords = slices.Clone(a.Coords)
	}
	if m.Areas[i].Equal(a) {
		return a.Clone(), false
	}
	m.Areas[i] = a

	for _, o := range m.Overlays {
		if j := models.IndexOfArea(o.Areas, a.ID); j > -1 {
			o.Areas[j] = a.Clone()
		}
	}
	return a.Clone(), true
}

// DeleteMapArea removes an area from the map and from every highlighted set.
func (r *Registry) DeleteMapArea(id, areaID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapOf(id)
	if m == nil {
		return false
	}

	dirty := false
	if i := m.AreaIndex(areaID); i > -1 {
		m.Areas = slices.Delete(m.Areas, i, i+1)
		dirty = true
	}
	for _, o := range m.Overlays {
		if j := models.IndexOfArea(o.Areas, areaID); j > -1 {
			o.Areas = slices.Delete(o.Areas, j, j+1)
			dirty = true
		}
	}
	return dirty
}

// OverlayIDs returns the ids of the map's overlays in sorted order.
func (r *Registry) OverlayIDs(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.mapOf(id)
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.Overlays))
	for overlayID := range m.Overlays {
		ids = append(ids, overlayID)
	}
	sort.Strings(ids)
	return ids
}

// GetMapOverlay returns a copy of an overlay.
func (r *Registry) GetMapOverlay(id, overlayID string) (models.Overlay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o := r.overlayOf(id, overlayID)
	if o == nil {
		return models.Overlay{}, false
	}
	return o.Clone(), true
}

// GetMapOverlayAreas returns copies of an overlay's highlighted areas.
func (r *Registry) GetMapOverlayAreas(id, overlayID string) ([]models.Area, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o := r.overlayOf(id, overlayID)
	if o == nil {
		return nil, false
	}
	return models.CloneAreas(o.Areas), true
}

// SetMapOverlayAreas replaces an overlay's highlighted set. A single-select
// overlay keeps only the first area.
func (r *Registry) SetMapOverlayAreas(id, overlayID string, areas []models.Area) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.overlayOf(id, overlayID)
	if o == nil {
		return false
	}

	next := models.CloneAreas(areas)
	if next == nil {
		next = []models.Area{}
	}
	if o.Single && len(next) > 1 {
		next = next[:1]
	}
	if models.AreasEqual(o.Areas, next) {
		return false
	}
	o.Areas = next
	return true
}

// GetMapOverlayArea returns a copy of one highlighted area.
func (r *Registry) GetMapOverlayArea(id, overlayID, areaID string) (models.Area, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o := r.overlayOf(id, overlayID)
	if o == nil {
		return models.Area{}, false
	}
	i := models.IndexOfArea(o.Areas, areaID)
	if i < 0 {
		return models.Area{}, false
	}
	return o.Areas[i].Clone(), true
}

// SetMapOverlayArea adds a copy of the area to an overlay's highlighted set,
// or replaces the copy with the same id.
func (r *Registry) SetMapOverlayArea(id, overlayID string, area models.Area) bool {
	if area.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.overlayOf(id, overlayID)
	if o == nil {
		return false
	}

	i := models.IndexOfArea(o.Areas, area.ID)
	switch {
	case i > -1:
		if o.Areas[i].Equal(area) {
			return false
		}
		o.Areas[i] = area.Clone()
	case o.Single:
		o.Areas = []models.Area{area.Clone()}
	default:
		o.Areas = append(o.Areas, area.Clone())
	}
	return true
}

// ShowMapOverlay makes an overlay visible.
func (r *Registry) ShowMapOverlay(id, overlayID string) bool {
	return r.setOverlayShow(id, overlayID, true)
}

// HideMapOverlay hides an overlay without touching its highlighted set.
func (r *Registry) HideMapOverlay(id, overlayID string) bool {
	return r.setOverlayShow(id, overlayID, false)
}

func (r *Registry) setOverlayShow(id, overlayID string, show bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.overlayOf(id, overlayID)
	if o == nil || o.Show == show {
		return false
	}
	o.Show = show
	return true
}

// OnBaseLoad applies the base image load transition to an overlay.
func (r *Registry) OnBaseLoad(id, overlayID string) bool {
	return r.transition(id, overlayID, highlight.OnBaseLoad)
}

// OnBaseError applies the base image error transition to an overlay.
func (r *Registry) OnBaseError(id, overlayID string) bool {
	return r.transition(id, overlayID, highlight.OnBaseError)
}

// OnResize refreshes an overlay's highlighted copies after a resize.
func (r *Registry) OnResize(id, overlayID string) bool {
	return r.transition(id, overlayID, highlight.OnResize)
}

// OnClickArea applies a click on an area to an overlay.
func (r *Registry) OnClickArea(id, overlayID, areaID string) bool {
	return r.transition(id, overlayID, func(ctx highlight.OverlayContext) highlight.Result {
		return highlight.OnClickArea(ctx, areaID)
	})
}

// OnFocusArea applies a keyboard focus or blur on an area to an overlay.
func (r *Registry) OnFocusArea(id, overlayID, areaID string, blur bool) bool {
	return r.transition(id, overlayID, func(ctx highlight.OverlayContext) highlight.Result {
		return highlight.OnFocusArea(ctx, areaID, blur)
	})
}

// OnHoverArea applies a mouse enter or leave on an area to an overlay.
func (r *Registry) OnHoverArea(id, overlayID, areaID string, blur bool) bool {
	return r.transition(id, overlayID, func(ctx highlight.OverlayContext) highlight.Result {
		return highlight.OnHoverArea(ctx, areaID, blur)
	})
}

// transition resolves the overlay context, runs fn and stores the result.
func (r *Registry) transition(id, overlayID string, fn func(highlight.OverlayContext) highlight.Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapOf(id)
	if m == nil {
		return false
	}
	o, ok := m.Overlays[overlayID]
	if !ok {
		return false
	}

	result := fn(highlight.NewContext(o.Clone(), models.CloneAreas(m.Areas)))
	if result.Changed {
		o.Areas = result.New
	}
	return result.Changed
}

func (r *Registry) mapOf(id string) *models.Map {
	e, ok := r.pictures[id]
	if !ok {
		return nil
	}
	return e.m
}

func (r *Registry) overlayOf(id, overlayID string) *models.Overlay {
	m := r.mapOf(id)
	if m == nil {
		return nil
	}
	return m.Overlays[overlayID]
}

// buildArea assigns a fresh id and fills in absolute coordinates when the
// input has none.
func (r *Registry) buildArea(a models.Area) models.Area {
	a = a.Clone()
	a.ID = r.ids.NewID(AreaPrefix)
	if a.AbsCoords == nil {
		a.AbsCoords = slices.Clone(a.Coords)
	}
	if a.Href == "" {
		a.Href = "#"
	}
	return a
}

func areaFromSpec(s models.AreaSpec) models.Area {
	a := models.Area{
		Shape:     geometry.ParseShape(s.Shape),
		Coords:    s.Coords,
		AbsCoords: s.AbsCoords,
		Href:      "#",
		Alt:       s.Alt,
		Title:     s.Title,
		Data:      s.Data,
	}
	if s.Href != nil {
		a.Href = *s.Href
	}
	if a.Coords == nil {
		a.Coords = []float64{}
	}
	return a
}

func overlayFromSpec(id string, s models.OverlaySpec) models.Overlay {
	o := models.Overlay{
		ID:             id,
		Show:           true,
		AlwaysOn:       s.AlwaysOn,
		Click:          s.Click,
		Focus:          s.Focus,
		Hover:          s.Hover,
		Single:         s.Single,
		DebounceResize: s.DebounceResize,
		Options:        s.Options,
		Areas:          []models.Area{},
	}
	if s.Show != nil {
		o.Show = *s.Show
	}
	return o
}
