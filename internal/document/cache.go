package document

import "sync"

// Cache is the process-wide per-path document cache. It lives from process
// start until process end or a full configuration restart, and is passed by
// reference to the loader and the rebuild coordinator rather than held as
// package state, so test-isolated embeddings stay correct.
type Cache struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewCache creates an empty document cache.
func NewCache() *Cache {
	return &Cache{docs: make(map[string]*Document)}
}

// Get retrieves the document for a path.
func (c *Cache) Get(path string) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[path]
	return doc, ok
}

// Put stores a document under its path. The loader inserts documents only
// after parsing and validation complete, so a concurrent Get never observes a
// half-populated entry.
func (c *Cache) Put(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.Path] = doc
}

// Remove destroys the cache entry for a path. Called when the watcher reports
// the path changed or removed, forcing reconstruction on the next load.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, path)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Clear discards all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*Document)
}
