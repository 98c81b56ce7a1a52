package resolver

import (
	"sync"

	"github.com/git-create-devben/velite/internal/document"
)

// Cache is the process-wide resolution cache mapping collection names to the
// ordered document lists currently believed correct. An entry is only trusted
// while no change has been observed for that collection's patterns; the
// rebuild coordinator discards stale entries before the next pass uses them.
//
// The cache is an explicit object with a defined lifetime (process start to
// process end or full restart) passed by reference, so multi-instance and
// test-isolated embeddings stay correct.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]*document.Document
}

// NewCache creates an empty resolution cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]*document.Document)}
}

// Get returns the cached document list for a collection name.
func (c *Cache) Get(name string) ([]*document.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs, ok := c.entries[name]
	return docs, ok
}

// Set stores the document list for a collection name, replacing any prior
// entry.
func (c *Cache) Set(name string, docs []*document.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = docs
}

// InvalidateForPath discards every entry whose stored list contains the given
// path, forcing the next resolution pass to re-glob those collections. It
// returns the names of the invalidated collections.
func (c *Cache) InvalidateForPath(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var invalidated []string
	for name, docs := range c.entries {
		for _, doc := range docs {
			if doc.Path == path {
				delete(c.entries, name)
				invalidated = append(invalidated, name)
				break
			}
		}
	}
	return invalidated
}

// Len returns the number of cached collections.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear discards all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]*document.Document)
}
