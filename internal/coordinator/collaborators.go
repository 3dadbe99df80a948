package coordinator

import (
	"time"

	"github.com/nb-picture/backend/internal/models"
)

// Native image events the coordinator listens for.
const (
	EventError            = "error"
	EventLoad             = "load"
	EventReadyStateChange = "readystatechange"
)

// Image is the base <img> element of a widget.
type Image interface {
	// Src returns the assigned src or srcset, empty before any assignment.
	Src() string
	// SetSrcset assigns the picture's fallback srcset.
	SetSrcset(srcset string)
	// Complete reports the native complete flag or a finished readyState.
	Complete() bool
	// Size returns the rendered width and height.
	Size() (width, height int)
	// AddListener registers fn for a native event and returns its removal.
	AddListener(event string, fn func()) (remove func())
}

// Window delivers viewport resize notifications.
type Window interface {
	AddResizeListener(fn func()) (remove func())
}

// Scheduler runs deferred work. Both methods return a cancel function that
// is safe to call after the work ran.
type Scheduler interface {
	// Defer runs fn after the current turn, once pending updates settled.
	Defer(fn func()) (cancel func())
	// After runs fn once d has elapsed.
	After(d time.Duration, fn func()) (cancel func())
}

// SourceApplier is the external responsive-image resolver. It picks the
// matching source for the picture and eventually makes the image fire load
// or error.
type SourceApplier interface {
	ApplySources(pictureID string, p models.Picture)
}

// SourceApplierFunc adapts a function to SourceApplier.
type SourceApplierFunc func(pictureID string, p models.Picture)

func (f SourceApplierFunc) ApplySources(pictureID string, p models.Picture) {
	f(pictureID, p)
}

// scope collects removal and cancel functions so they can be drained
// together.
type scope struct {
	cancels []func()
}

func (s *scope) add(fn func()) {
	if fn != nil {
		s.cancels = append(s.cancels, fn)
	}
}

// drain calls every collected function in reverse order and forgets them.
func (s *scope) drain() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
	s.cancels = nil
}

func (s *scope) len() int {
	return len(s.cancels)
}
