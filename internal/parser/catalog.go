package parser

import (
	"sort"
	"sync"
)

// Catalog holds the known definitions by name.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*Definition)}
}

// Load scans dir and adds every definition found. It returns the number of
// definitions loaded.
func (c *Catalog) Load(dir string) (int, error) {
	defs, err := Scan(dir)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := c.Put(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

// Put adds or replaces a definition.
func (c *Catalog) Put(def *Definition) error {
	if def.Name == "" {
		return ErrNoName
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.Name] = def
	return nil
}

// Get returns a definition by name.
func (c *Catalog) Get(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	return def, ok
}

// List returns all definitions sorted by name.
func (c *Catalog) List() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]*Definition, 0, len(c.defs))
	for _, def := range c.defs {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Remove drops a definition by name.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.defs[name]; !ok {
		return false
	}
	delete(c.defs, name)
	return true
}

// RemovePath drops the definition loaded from path and returns its name.
func (c *Catalog) RemovePath(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, def := range c.defs {
		if def.Path == path {
			delete(c.defs, name)
			return name, true
		}
	}
	return "", false
}
