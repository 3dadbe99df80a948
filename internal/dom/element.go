// Package dom provides headless stand-ins for the browser objects a widget
// coordinator talks to: the base image element, the window and the event
// loop's deferred work.
package dom

import (
	"sync"
)

// Native image events fired by Element.
const (
	EventError            = "error"
	EventLoad             = "load"
	EventReadyStateChange = "readystatechange"
)

// Ready states reported by an image element.
const (
	ReadyStateLoading  = "loading"
	ReadyStateComplete = "complete"
	ReadyStateLoaded   = "loaded"
)

type listener struct {
	id int
	fn func()
}

// listeners is an ordered listener list keyed by event name.
type listeners struct {
	mu     sync.Mutex
	next   int
	byName map[string][]listener
}

func (l *listeners) add(event string, fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byName == nil {
		l.byName = make(map[string][]listener)
	}
	id := l.next
	l.next++
	l.byName[event] = append(l.byName[event], listener{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		list := l.byName[event]
		for i, e := range list {
			if e.id == id {
				l.byName[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// snapshot returns the listeners for event so they can run unlocked.
func (l *listeners) snapshot(event string) []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.byName[event]
	fns := make([]func(), len(list))
	for i, e := range list {
		fns[i] = e.fn
	}
	return fns
}

func (l *listeners) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byName[event])
}

// Element is a headless <img>. Its state is driven by a remote client or by
// a probe, which then fire the matching native event.
type Element struct {
	mu         sync.RWMutex
	srcset     string
	complete   bool
	readyState string
	width      int
	height     int

	listeners listeners
}

// NewElement creates an element with no source assigned.
func NewElement() *Element {
	return &Element{}
}

// Src returns the assigned srcset.
func (e *Element) Src() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.srcset
}

// SetSrcset assigns a new source, which restarts loading.
func (e *Element) SetSrcset(srcset string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.srcset = srcset
	e.complete = false
	e.readyState = ReadyStateLoading
}

// Complete reports the complete flag or a finished ready state.
func (e *Element) Complete() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.complete || e.readyState == ReadyStateComplete || e.readyState == ReadyStateLoaded
}

// Size returns the rendered size.
func (e *Element) Size() (width, height int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.width, e.height
}

// SetLoaded marks the image as fully loaded at the given rendered size.
func (e *Element) SetLoaded(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.complete = true
	e.readyState = ReadyStateComplete
	e.width = width
	e.height = height
}

// SetReadyState records a ready state reported by a client.
func (e *Element) SetReadyState(state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readyState = state
}

// SetSize records a new rendered size, as after a layout change.
func (e *Element) SetSize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width = width
	e.height = height
}

// AddListener registers fn for a native event.
func (e *Element) AddListener(event string, fn func()) (remove func()) {
	return e.listeners.add(event, fn)
}

// Listeners returns the number of listeners registered for event.
func (e *Element) Listeners(event string) int {
	return e.listeners.count(event)
}

// Fire runs the listeners for event in registration order.
func (e *Element) Fire(event string) {
	for _, fn := range e.listeners.snapshot(event) {
		fn()
	}
}

// Window is a headless viewport.
type Window struct {
	listeners listeners
}

// NewWindow creates a window with no listeners.
func NewWindow() *Window {
	return &Window{}
}

// AddResizeListener registers fn for resize notifications.
func (w *Window) AddResizeListener(fn func()) (remove func()) {
	return w.listeners.add("resize", fn)
}

// Listeners returns the number of resize listeners.
func (w *Window) Listeners() int {
	return w.listeners.count("resize")
}

// Resize notifies every resize listener.
func (w *Window) Resize() {
	for _, fn := range w.listeners.snapshot("resize") {
		fn()
	}
}
