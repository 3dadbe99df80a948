// Package coordinator drives one widget through its image load lifecycle
// and translates image, window and interaction events into registry
// transitions.
package coordinator

import (
	"errors"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/events"
	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/picture"
)

// ErrDestroyed is returned when updating a destroyed coordinator.
var ErrDestroyed = errors.New("coordinator destroyed")

// State is the load state of a widget.
type State int

const (
	Uninitialized State = iota
	Loading
	Loaded  // complete(success)
	Errored // complete(error)
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// Attrs are the evaluated declarative inputs of a widget. Sources and Map
// keep their loose shape so the registry can enforce the type contract.
type Attrs struct {
	DefaultSource string
	Sources       any
	Alt           *string
	Map           any // nil for widgets without an image map
}

// Options tunes a coordinator.
type Options struct {
	// ResizeDebounce delays resize handling until the window settled.
	// Zero handles every resize immediately.
	ResizeDebounce time.Duration
}

// Deps are the collaborators of a coordinator.
type Deps struct {
	Image     Image
	Window    Window
	Scheduler Scheduler
	Applier   SourceApplier
}

// Coordinator is the per-widget load state machine.
type Coordinator struct {
	mu       sync.Mutex
	registry *picture.Registry
	bus      *events.Bus
	deps     Deps
	opts     Options

	id          string
	initialized bool
	state       State
	generation  uint64
	resizable   bool

	cycle    scope // deferred work and window listeners of the current update
	image    scope // image listeners
	debounce func()
}

// New creates a coordinator. Init must be called before Update.
func New(registry *picture.Registry, bus *events.Bus, deps Deps, opts Options) *Coordinator {
	return &Coordinator{
		registry: registry,
		bus:      bus,
		deps:     deps,
		opts:     opts,
	}
}

// Init registers the widget's picture. Calling it again does nothing.
func (c *Coordinator) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized || c.state == Destroyed {
		return
	}
	c.initialized = true
	c.id = c.registry.CreatePicture()
	klog.V(2).Infof("[Coordinator %s] initialized", c.id)
}

// ID returns the picture id, empty before Init.
func (c *Coordinator) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// State returns the current load state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bus returns the widget's event bus.
func (c *Coordinator) Bus() *events.Bus {
	return c.bus
}

// Width returns the rendered image width once the image loaded, else zero.
func (c *Coordinator) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, _ := c.size()
	return w
}

// Height returns the rendered image height once the image loaded, else zero.
func (c *Coordinator) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, h := c.size()
	return h
}

func (c *Coordinator) size() (int, int) {
	if c.state != Loaded {
		return 0, 0
	}
	return c.deps.Image.Size()
}

// Update starts a new load cycle for attrs. Everything scheduled or attached
// by the previous cycle is cancelled first. Invalid attrs are returned as
// *picture.InvalidInputError. Before Init it does nothing.
func (c *Coordinator) Update(attrs Attrs) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Destroyed {
		return ErrDestroyed
	}
	if !c.initialized {
		return nil
	}

	c.cancelAll()
	c.generation++
	gen := c.generation

	c.state = Loading
	c.registry.SetPictureComplete(c.id, false)

	img := c.deps.Image
	c.image.add(img.AddListener(EventError, func() { c.onImageError(gen) }))
	c.image.add(img.AddListener(EventLoad, func() { c.onImageLoad(gen) }))
	c.image.add(img.AddListener(EventReadyStateChange, func() { c.onImageLoad(gen) }))

	c.resizable = false
	if attrs.Map != nil {
		if err := c.registry.SetMap(c.id, attrs.Map); err != nil {
			return err
		}
		if m, ok := c.registry.GetMap(c.id); ok {
			c.resizable = m.Resize
		}
	} else {
		c.registry.ClearMap(c.id)
	}

	err := c.registry.SetPicture(c.id, picture.PictureInput{
		DefaultSource: attrs.DefaultSource,
		Sources:       attrs.Sources,
		Alt:           attrs.Alt,
	})
	if err != nil {
		return err
	}

	p, _ := c.registry.GetPicture(c.id)
	img.SetSrcset(p.Img.Srcset)

	c.cycle.add(c.deps.Scheduler.Defer(func() { c.applySources(gen) }))
	klog.V(2).Infof("[Coordinator %s] update started (generation %d)", c.id, gen)
	return nil
}

// Destroy cancels all pending work, detaches every listener and releases the
// picture from the registry.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Destroyed {
		return
	}
	c.cancelAll()
	c.generation++
	c.state = Destroyed
	if c.initialized {
		c.registry.DestroyPicture(c.id)
	}
	klog.V(2).Infof("[Coordinator %s] destroyed", c.id)
}

// Listeners returns the number of attached image listeners and pending
// cycle registrations.
func (c *Coordinator) Listeners() (image, cycle int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image.len(), c.cycle.len()
}

func (c *Coordinator) cancelAll() {
	if c.debounce != nil {
		c.debounce()
		c.debounce = nil
	}
	c.cycle.drain()
	c.image.drain()
}

// applySources runs once after Update yielded. It hands the picture to the
// external resolver and starts watching the window for resizable maps.
func (c *Coordinator) applySources(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.resizable {
		c.cycle.add(c.deps.Window.AddResizeListener(func() { c.onWindowResize(gen) }))
	}
	id := c.id
	p, _ := c.registry.GetPicture(id)
	c.mu.Unlock()

	if c.deps.Applier != nil {
		c.deps.Applier.ApplySources(id, p)
	}
}

func (c *Coordinator) onImageError(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Loading || c.deps.Image.Src() == "" {
		c.mu.Unlock()
		return
	}

	c.state = Errored
	c.registry.SetPictureComplete(c.id, true)
	c.image.drain()

	changed := c.eachOverlay(func(overlayID string) bool {
		return c.registry.OnBaseError(c.id, overlayID)
	})
	e := events.Event{Type: events.BaseError, PictureID: c.id, Overlays: changed}
	klog.Warningf("[Coordinator %s] base image failed to load", c.id)
	c.mu.Unlock()

	c.bus.Publish(e)
}

func (c *Coordinator) onImageLoad(gen uint64) {
	c.mu.Lock()
	img := c.deps.Image
	if gen != c.generation || c.state != Loading || img.Src() == "" || !img.Complete() {
		c.mu.Unlock()
		return
	}

	c.state = Loaded
	c.registry.SetPictureComplete(c.id, true)
	c.image.drain()

	w, h := c.size()
	changed := c.diffOverlays(func() {
		c.registry.ResizeMap(c.id, float64(w), float64(h), true)
		for _, overlayID := range c.registry.OverlayIDs(c.id) {
			c.registry.OnBaseLoad(c.id, overlayID)
		}
	})
	e := events.Event{Type: events.BaseLoad, PictureID: c.id, Overlays: changed}
	klog.V(1).Infof("[Coordinator %s] base image loaded (%dx%d)", c.id, w, h)
	c.mu.Unlock()

	c.bus.Publish(e)
}

func (c *Coordinator) onWindowResize(gen uint64) {
	if c.opts.ResizeDebounce <= 0 {
		c.resize(gen)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	if c.debounce != nil {
		c.debounce()
	}
	c.debounce = c.deps.Scheduler.After(c.opts.ResizeDebounce, func() { c.resize(gen) })
}

func (c *Coordinator) resize(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Loaded {
		c.mu.Unlock()
		return
	}

	w, h := c.size()
	changed := c.diffOverlays(func() {
		c.registry.ResizeMap(c.id, float64(w), float64(h), true)
		for _, overlayID := range c.registry.OverlayIDs(c.id) {
			c.registry.OnResize(c.id, overlayID)
		}
	})
	e := events.Event{Type: events.Resize, PictureID: c.id, Overlays: changed}
	klog.V(2).Infof("[Coordinator %s] resized to %dx%d", c.id, w, h)
	c.mu.Unlock()

	c.bus.Publish(e)
}

// ClickArea applies a click on an area to every overlay. It reports whether
// any highlighted set changed.
func (c *Coordinator) ClickArea(areaID string) bool {
	return c.interact(events.ClickArea, areaID, false, func(overlayID string) bool {
		return c.registry.OnClickArea(c.id, overlayID, areaID)
	})
}

// FocusArea applies a focus, or a blur, on an area to every overlay.
func (c *Coordinator) FocusArea(areaID string, blur bool) bool {
	return c.interact(events.FocusArea, areaID, blur, func(overlayID string) bool {
		return c.registry.OnFocusArea(c.id, overlayID, areaID, blur)
	})
}

// HoverArea applies a mouse enter, or leave, on an area to every overlay.
func (c *Coordinator) HoverArea(areaID string, blur bool) bool {
	return c.interact(events.HoverArea, areaID, blur, func(overlayID string) bool {
		return c.registry.OnHoverArea(c.id, overlayID, areaID, blur)
	})
}

func (c *Coordinator) interact(t events.Type, areaID string, blur bool, apply func(overlayID string) bool) bool {
	c.mu.Lock()
	if c.state != Loading && c.state != Loaded {
		c.mu.Unlock()
		return false
	}
	changed := c.eachOverlay(apply)
	e := events.Event{Type: t, PictureID: c.id, AreaID: areaID, Blur: blur, Overlays: changed}
	c.mu.Unlock()

	c.bus.Publish(e)
	return len(changed) > 0
}

// eachOverlay runs fn for every overlay and returns the ids it reported as
// changed.
func (c *Coordinator) eachOverlay(fn func(overlayID string) bool) []string {
	changed := []string{}
	for _, overlayID := range c.registry.OverlayIDs(c.id) {
		if fn(overlayID) {
			changed = append(changed, overlayID)
		}
	}
	return changed
}

// diffOverlays runs fn and returns the overlays whose highlighted set differs
// afterwards. Resizing refreshes highlighted copies in place, so the
// transition results alone do not tell.
func (c *Coordinator) diffOverlays(fn func()) []string {
	before := make(map[string][]models.Area)
	for _, overlayID := range c.registry.OverlayIDs(c.id) {
		before[overlayID], _ = c.registry.GetMapOverlayAreas(c.id, overlayID)
	}

	fn()

	changed := []string{}
	for _, overlayID := range c.registry.OverlayIDs(c.id) {
		after, _ := c.registry.GetMapOverlayAreas(c.id, overlayID)
		if !models.AreasEqual(before[overlayID], after) {
			changed = append(changed, overlayID)
		}
	}
	return changed
}
