package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/coordinator"
	"github.com/nb-picture/backend/internal/dom"
	"github.com/nb-picture/backend/internal/events"
	"github.com/nb-picture/backend/internal/highlight"
	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/picture"
)

// DefaultMaxWidgets limits concurrent widgets to prevent memory exhaustion
const DefaultMaxWidgets = 100

// WidgetKeepAliveWindow is how long a recently used widget is protected from
// idle cleanup
const WidgetKeepAliveWindow = 5 * time.Minute

// ErrInvalidMode is returned for unknown widget modes.
var ErrInvalidMode = errors.New("invalid widget mode")

// Mode selects who loads a widget's base image.
type Mode string

const (
	// ModeProbe loads the image on the server from the image store.
	ModeProbe Mode = "probe"
	// ModeRemote waits for a connected client to report load events.
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode name. Empty selects ModeProbe.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeProbe:
		return ModeProbe, nil
	case ModeRemote:
		return ModeRemote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Recorder receives every event of every widget.
type Recorder interface {
	Record(e events.Event) error
	Forget(ctx context.Context, pictureID string) error
}

// Options configures a Manager.
type Options struct {
	MaxWidgets     int
	ResizeDebounce time.Duration
}

// Widget is one live widget: its coordinator and the headless element and
// window the coordinator watches.
type Widget struct {
	ID           string
	Definition   string
	Mode         Mode
	CreatedAt    time.Time
	LastAccessed time.Time

	Coordinator *coordinator.Coordinator
	Element     *dom.Element
	Window      *dom.Window

	unsubscribe func()
}

// Info is the listing view of a widget.
type Info struct {
	ID           string    `json:"id" msgpack:"id"`
	Definition   string    `json:"definition" msgpack:"definition"`
	Mode         Mode      `json:"mode" msgpack:"mode"`
	State        string    `json:"state" msgpack:"state"`
	Width        int       `json:"width" msgpack:"width"`
	Height       int       `json:"height" msgpack:"height"`
	CreatedAt    time.Time `json:"createdAt" msgpack:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed" msgpack:"lastAccessed"`
}

// Snapshot is the full rendering state of a widget.
type Snapshot struct {
	Info
	Picture models.Picture                 `json:"picture" msgpack:"picture"`
	Map     *models.Map                    `json:"map,omitempty" msgpack:"map,omitempty"`
	Markers map[string][]highlight.Marker `json:"markers,omitempty" msgpack:"markers,omitempty"`
}

// Manager handles live widgets.
type Manager struct {
	widgets   map[string]*Widget
	mu        sync.RWMutex
	registry  *picture.Registry
	scheduler coordinator.Scheduler
	opener    dom.Opener
	remote    coordinator.SourceApplier
	recorder  Recorder
	onRelease func(id string)
	opts      Options
}

// Option configures optional collaborators of a Manager.
type Option func(*Manager)

// WithOpener sets where probe-mode widgets read their images from.
func WithOpener(o dom.Opener) Option {
	return func(m *Manager) { m.opener = o }
}

// WithRemote sets the applier that forwards remote-mode widgets to clients.
func WithRemote(a coordinator.SourceApplier) Option {
	return func(m *Manager) { m.remote = a }
}

// WithRecorder records every widget event.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithReleaseHook calls fn after a widget was destroyed, evicted or cleaned
// up.
func WithReleaseHook(fn func(id string)) Option {
	return func(m *Manager) { m.onRelease = fn }
}

// NewManager creates a widget manager.
func NewManager(registry *picture.Registry, scheduler coordinator.Scheduler, opts Options, options ...Option) *Manager {
	if opts.MaxWidgets <= 0 {
		opts.MaxWidgets = DefaultMaxWidgets
	}
	m := &Manager{
		widgets:   make(map[string]*Widget),
		registry:  registry,
		scheduler: scheduler,
		opts:      opts,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Registry returns the picture registry shared by all widgets.
func (m *Manager) Registry() *picture.Registry {
	return m.registry
}

// Attrs converts a definition into coordinator inputs.
func Attrs(def *parser.Definition) coordinator.Attrs {
	return coordinator.Attrs{
		DefaultSource: def.DefaultSource,
		Sources:       def.Sources,
		Alt:           def.Alt,
		Map:           def.Map,
	}
}

// Validate checks a definition's attributes against a scratch registry.
// Type contract violations are returned as *picture.InvalidInputError.
func Validate(def *parser.Definition) error {
	r := picture.NewRegistry(picture.NewCounterGenerator())
	id := r.CreatePicture()
	if def.Map != nil {
		if err := r.SetMap(id, def.Map); err != nil {
			return err
		}
	}
	return r.SetPicture(id, picture.PictureInput{
		DefaultSource: def.DefaultSource,
		Sources:       def.Sources,
		Alt:           def.Alt,
	})
}

// Create starts a widget for a definition. Invalid definitions are returned
// as *picture.InvalidInputError and leave no widget behind.
func (m *Manager) Create(def *parser.Definition, mode Mode) (*Widget, error) {
	m.evictIfNeeded()

	el := dom.NewElement()
	win := dom.NewWindow()
	bus := events.NewBus()

	var applier coordinator.SourceApplier
	switch mode {
	case ModeProbe:
		if m.opener == nil {
			return nil, fmt.Errorf("%w: probe mode needs an image store", ErrInvalidMode)
		}
		applier = dom.NewProbe(el, m.opener)
	case ModeRemote:
		applier = m.remote
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	c := coordinator.New(m.registry, bus, coordinator.Deps{
		Image:     el,
		Window:    win,
		Scheduler: m.scheduler,
		Applier:   applier,
	}, coordinator.Options{ResizeDebounce: m.opts.ResizeDebounce})
	c.Init()

	now := time.Now()
	w := &Widget{
		ID:           c.ID(),
		Definition:   def.Name,
		Mode:         mode,
		CreatedAt:    now,
		LastAccessed: now,
		Coordinator:  c,
		Element:      el,
		Window:       win,
	}

	if m.recorder != nil {
		w.unsubscribe = bus.Subscribe(func(e events.Event) {
			if err := m.recorder.Record(e); err != nil {
				klog.Errorf("[Session %s] recording %s failed: %v", e.PictureID, e.Type, err)
			}
		})
	}

	// Register before the first update so a probe that completes at once
	// finds the widget.
	m.mu.Lock()
	m.widgets[w.ID] = w
	m.mu.Unlock()

	if err := c.Update(Attrs(def)); err != nil {
		m.Destroy(w.ID)
		return nil, err
	}

	klog.Infof("[Session] created widget %s from %q (%s)", w.ID, def.Name, mode)
	return w, nil
}

// Update re-runs a widget with a new definition.
func (m *Manager) Update(id string, def *parser.Definition) error {
	w, ok := m.touch(id)
	if !ok {
		return fmt.Errorf("widget not found: %s", id)
	}

	m.mu.Lock()
	w.Definition = def.Name
	m.mu.Unlock()

	return w.Coordinator.Update(Attrs(def))
}

// Destroy tears a widget down.
func (m *Manager) Destroy(id string) bool {
	m.mu.Lock()
	w, ok := m.widgets[id]
	if ok {
		delete(m.widgets, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.release(w)
	return true
}

func (m *Manager) release(w *Widget) {
	w.Coordinator.Destroy()
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	if m.recorder != nil {
		if err := m.recorder.Forget(context.Background(), w.ID); err != nil {
			klog.Errorf("[Session %s] forgetting events failed: %v", w.ID, err)
		}
	}
	if m.onRelease != nil {
		m.onRelease(w.ID)
	}
}

// Get returns a widget and marks it as used.
func (m *Manager) Get(id string) (*Widget, bool) {
	return m.touch(id)
}

// TouchWidget updates the LastAccessed timestamp for a widget.
func (m *Manager) TouchWidget(id string) bool {
	_, ok := m.touch(id)
	return ok
}

func (m *Manager) touch(id string) (*Widget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.widgets[id]
	if !ok {
		return nil, false
	}
	w.LastAccessed = time.Now()
	return w, true
}

// Len returns the number of live widgets.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// List returns every widget, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	widgets := make([]*Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		widgets = append(widgets, w)
	}
	m.mu.RUnlock()

	sort.Slice(widgets, func(i, j int) bool {
		if widgets[i].CreatedAt.Equal(widgets[j].CreatedAt) {
			return widgets[i].ID < widgets[j].ID
		}
		return widgets[i].CreatedAt.Before(widgets[j].CreatedAt)
	})

	list := make([]Info, 0, len(widgets))
	for _, w := range widgets {
		list = append(list, m.info(w))
	}
	return list
}

// Info returns the listing view of a widget.
func (m *Manager) Info(id string) (Info, bool) {
	m.mu.RLock()
	w, ok := m.widgets[id]
	m.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return m.info(w), true
}

func (m *Manager) info(w *Widget) Info {
	m.mu.RLock()
	definition, lastAccessed := w.Definition, w.LastAccessed
	m.mu.RUnlock()

	return Info{
		ID:           w.ID,
		Definition:   definition,
		Mode:         w.Mode,
		State:        w.Coordinator.State().String(),
		Width:        w.Coordinator.Width(),
		Height:       w.Coordinator.Height(),
		CreatedAt:    w.CreatedAt,
		LastAccessed: lastAccessed,
	}
}

// Snapshot returns the rendering state of a widget, including marker
// positions for every overlay.
func (m *Manager) Snapshot(id string) (*Snapshot, bool) {
	info, ok := m.Info(id)
	if !ok {
		return nil, false
	}
	p, ok := m.registry.GetPicture(id)
	if !ok {
		return nil, false
	}

	s := &Snapshot{Info: info, Picture: p}
	if mp, ok := m.registry.GetMap(id); ok {
		s.Map = mp
		s.Markers = make(map[string][]highlight.Marker, len(mp.Overlays))
		for overlayID, o := range mp.Overlays {
			s.Markers[overlayID] = highlight.Markers(o.Areas, info.Width, info.Height)
		}
	}
	return s, true
}

// ImageEvent applies an image state change reported by a client and fires
// the matching native event.
func (m *Manager) ImageEvent(id, event string, width, height int, readyState string) bool {
	w, ok := m.touch(id)
	if !ok {
		return false
	}

	switch event {
	case dom.EventLoad:
		w.Element.SetLoaded(width, height)
	case dom.EventReadyStateChange:
		if width > 0 && height > 0 {
			w.Element.SetSize(width, height)
		}
		w.Element.SetReadyState(readyState)
	case dom.EventError:
	default:
		return false
	}
	w.Element.Fire(event)
	return true
}

// Resize records a new rendered size and notifies the widget's window.
func (m *Manager) Resize(id string, width, height int) bool {
	w, ok := m.touch(id)
	if !ok {
		return false
	}
	w.Element.SetSize(width, height)
	w.Window.Resize()
	return true
}

// ReloadDefinition re-runs every widget bound to a changed definition, or
// destroys them when the definition was removed. It returns the number of
// widgets affected.
func (m *Manager) ReloadDefinition(def *parser.Definition, removed bool) int {
	m.mu.RLock()
	var ids []string
	for id, w := range m.widgets {
		if w.Definition == def.Name {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if removed {
			if m.Destroy(id) {
				n++
			}
			continue
		}
		if err := m.Update(id, def); err != nil {
			klog.Errorf("[Session %s] reload of %q failed: %v", id, def.Name, err)
			continue
		}
		n++
	}
	if n > 0 {
		klog.Infof("[Session] reloaded %d widget(s) for %q", n, def.Name)
	}
	return n
}

// evictIfNeeded removes the least recently used widgets when at capacity.
func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	if len(m.widgets) < m.opts.MaxWidgets {
		m.mu.Unlock()
		return
	}

	widgets := make([]*Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		widgets = append(widgets, w)
	}
	sort.Slice(widgets, func(i, j int) bool {
		return widgets[i].LastAccessed.Before(widgets[j].LastAccessed)
	})

	toFree := len(m.widgets) - m.opts.MaxWidgets + 1
	evicted := widgets[:toFree]
	for _, w := range evicted {
		delete(m.widgets, w.ID)
	}
	m.mu.Unlock()

	for _, w := range evicted {
		m.release(w)
		klog.Infof("[Manager] Evicted widget %s to stay under %d widgets", w.ID, m.opts.MaxWidgets)
	}
}

// CleanupIdleWidgets removes widgets unused for longer than maxIdle, but
// keeps widgets accessed within WidgetKeepAliveWindow. It returns the number
// of widgets removed.
func (m *Manager) CleanupIdleWidgets(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-max(maxIdle, WidgetKeepAliveWindow))

	m.mu.Lock()
	var idle []*Widget
	for id, w := range m.widgets {
		if w.LastAccessed.Before(cutoff) {
			idle = append(idle, w)
			delete(m.widgets, id)
		}
	}
	m.mu.Unlock()

	for _, w := range idle {
		m.release(w)
		klog.Infof("[Manager] Cleaned up idle widget %s (last accessed: %s ago)",
			w.ID, time.Since(w.LastAccessed).Round(time.Second))
	}
	return len(idle)
}

// Close destroys every widget.
func (m *Manager) Close() {
	m.mu.Lock()
	widgets := m.widgets
	m.widgets = make(map[string]*Widget)
	m.mu.Unlock()

	for _, w := range widgets {
		m.release(w)
	}
}
