// Package assets accumulates files referenced by content records during
// parsing (for example images in markdown bodies) so the build orchestrator
// can copy them to the output location at the end of a pass.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Tracker is the asset side-channel: an original-path to public-path mapping
// populated during record parsing and read by the build orchestrator. Public
// names are content-hashed so unchanged assets keep stable URLs.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]string)}
}

// Add registers an asset by its original absolute path and returns its public
// path of the form "static/<name>.<hash8><ext>". Registering the same path
// twice is cheap and returns the recorded public path.
func (t *Tracker) Add(originalPath string) (string, error) {
	t.mu.Lock()
	if public, ok := t.entries[originalPath]; ok {
		t.mu.Unlock()
		return public, nil
	}
	t.mu.Unlock()

	content, err := os.ReadFile(originalPath)
	if err != nil {
		return "", fmt.Errorf("reading asset: %w", err)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])[:8]

	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	public := fmt.Sprintf("static/%s.%s%s", name, hash, ext)

	t.mu.Lock()
	t.entries[originalPath] = public
	t.mu.Unlock()
	return public, nil
}

// Snapshot returns a copy of the accumulated mapping. Entries persist across
// passes because cached documents are not re-parsed and would not re-register
// their assets.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of tracked assets.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
