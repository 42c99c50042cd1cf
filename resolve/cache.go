package resolve

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wippyai/wasm-rebind/wasm"
)

// Cache holds decoded modules for the duration of one Resolve call. A
// module is reachable by its declared name and by its file name, which
// is how references to a declared name find their sibling file.
type Cache struct {
	entries *lru.Cache[string, *ParsedModule]
}

// NewCache creates a cache bounded to size entries.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, *ParsedModule](size)
	if err != nil {
		return nil, fmt.Errorf("create module cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the module registered under a declared or file name.
func (c *Cache) Get(name string) (*ParsedModule, bool) {
	return c.entries.Get(name)
}

// Add registers a decoded module under its name and, when different,
// under its file name.
func (c *Cache) Add(pm *ParsedModule) {
	c.entries.Add(pm.Name, pm)
	if pm.Path == "" {
		return
	}
	if stem := SimpleName(pm.Path); stem != pm.Name {
		c.entries.Add(stem, pm)
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// ModuleName returns the simple name of the module at path: its declared
// name if it has one, else the file name without extension.
func ModuleName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read module %s: %w", path, err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return "", fmt.Errorf("decode module %s: %w", path, err)
	}
	if m.Name != "" {
		return m.Name, nil
	}
	return SimpleName(path), nil
}
