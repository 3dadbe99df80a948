package parser

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// ChangeFunc is called after a definition was added, changed or removed.
// For removals only the name is set.
type ChangeFunc func(def *Definition, removed bool)

// Watcher keeps a catalog in sync with a definitions directory.
type Watcher struct {
	fs       *fsnotify.Watcher
	catalog  *Catalog
	onChange ChangeFunc
}

// NewWatcher starts watching dir. Call Run to process changes.
func NewWatcher(dir string, catalog *Catalog, onChange ChangeFunc) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Watcher{fs: fs, catalog: catalog, onChange: onChange}, nil
}

// Run processes file events until ctx is cancelled or the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			klog.Errorf("[Definitions] watch error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !IsDefinitionFile(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		name, ok := w.catalog.RemovePath(event.Name)
		if !ok {
			return
		}
		klog.Infof("[Definitions] removed %q", name)
		w.notify(&Definition{Name: name, Path: event.Name}, true)

	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		def, err := ParseDefinition(event.Name)
		if err != nil {
			klog.Errorf("[Definitions] reload failed: %v", err)
			return
		}
		if prev, ok := w.catalog.RemovePath(event.Name); ok && prev != def.Name {
			w.notify(&Definition{Name: prev, Path: event.Name}, true)
		}
		if err := w.catalog.Put(def); err != nil {
			klog.Errorf("[Definitions] reload failed: %v", err)
			return
		}
		klog.Infof("[Definitions] reloaded %q", def.Name)
		w.notify(def, false)
	}
}

func (w *Watcher) notify(def *Definition, removed bool) {
	if w.onChange != nil {
		w.onChange(def, removed)
	}
}
