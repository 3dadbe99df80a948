package dom

import (
	"io"
	"strings"

	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/storage"
)

// Opener resolves a source reference to image bytes.
type Opener interface {
	Open(ref string) (io.ReadCloser, error)
}

// Probe loads a widget's base image on the server. It resolves the
// fallback source, reads the image header for its size and fires load on
// the element, or error when the source cannot be read.
type Probe struct {
	el     *Element
	opener Opener
}

// NewProbe creates a probe that drives el.
func NewProbe(el *Element, opener Opener) *Probe {
	return &Probe{el: el, opener: opener}
}

// ApplySources implements coordinator.SourceApplier.
func (p *Probe) ApplySources(pictureID string, pic models.Picture) {
	src := pic.Img.Srcset
	if fb, ok := pic.Fallback(); ok && fb.Srcset != "" {
		src = fb.Srcset
	}
	ref := FirstCandidate(src)

	width, height, err := p.measure(ref)
	if err != nil {
		klog.V(1).Infof("[Probe %s] cannot load %q: %v", pictureID, ref, err)
		p.el.Fire(EventError)
		return
	}

	p.el.SetLoaded(width, height)
	p.el.Fire(EventLoad)
}

func (p *Probe) measure(ref string) (int, int, error) {
	if ref == "" {
		return 0, 0, storage.ErrNotFound
	}
	rc, err := p.opener.Open(ref)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	cfg, _, err := storage.DecodeConfig(rc)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// FirstCandidate returns the URL of the first image candidate in a srcset.
func FirstCandidate(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
