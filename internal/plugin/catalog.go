package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the table of parsers available for loading, keyed by name
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{descriptors: make(map[string]Descriptor)}
}

// Register adds d. Names are unique.
func (c *Catalog) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if d.New == nil {
		return fmt.Errorf("plugin %s: factory is required", d.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.descriptors[d.Name]; exists {
		return fmt.Errorf("plugin %s already registered", d.Name)
	}
	c.descriptors[d.Name] = d
	return nil
}

// MustRegister is Register for static tables; it panics on error
func (c *Catalog) MustRegister(d Descriptor) {
	if err := c.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for name
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[name]
	return d, ok
}

// Discover returns every descriptor ordered by name
func (c *Catalog) Discover() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the discoverable parser names, sorted
func (c *Catalog) Names() []string {
	descriptors := c.Discover()
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return names
}
