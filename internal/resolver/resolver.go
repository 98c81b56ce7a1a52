// Package resolver maps collection declarations to their current document
// lists. Collections resolve independently and in parallel; a changed-path
// hint lets unaffected collections reuse their cached lists so an unrelated
// file change costs zero work for them.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/loader"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/schema"
)

// Metrics tracks resolution work. The counters double as the observable
// side-channel for incremental-rebuild behavior: a cache reuse must not move
// the glob counter.
type Metrics struct {
	GlobCalls int64
	CacheHits int64
}

// Resolver resolves all declared collections against the content root.
type Resolver struct {
	cfg        *config.Config
	root       string
	loader     *loader.Loader
	cache      *Cache
	validators map[string]schema.Validator
	logger     logging.Logger

	globCalls int64
	cacheHits int64
}

// New creates a resolver and compiles every collection schema up front, so
// schema errors surface before any file is touched.
func New(cfg *config.Config, l *loader.Loader, cache *Cache, logger logging.Logger) (*Resolver, error) {
	root, err := cfg.AbsRoot()
	if err != nil {
		return nil, fmt.Errorf("resolving content root: %w", err)
	}

	validators := make(map[string]schema.Validator, len(cfg.Collections))
	for _, col := range cfg.Collections {
		if col.Schema == "" {
			validators[col.Name] = schema.Any{}
			continue
		}
		v, err := schema.Compile(col.Schema)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", col.Name, err)
		}
		validators[col.Name] = v
	}

	return &Resolver{
		cfg:        cfg,
		root:       root,
		loader:     l,
		cache:      cache,
		validators: validators,
		logger:     logger.WithComponent("resolver"),
	}, nil
}

// Metrics returns a snapshot of the resolution counters.
func (r *Resolver) Metrics() Metrics {
	return Metrics{
		GlobCalls: atomic.LoadInt64(&r.globCalls),
		CacheHits: atomic.LoadInt64(&r.cacheHits),
	}
}

// Resolve produces the collection-name to document-list mapping for one pass.
// changed carries the single path that triggered an incremental pass, empty
// during a full build. All collections resolve in parallel and the pass waits
// for every branch to finish.
func (r *Resolver) Resolve(ctx context.Context, changed string) (map[string][]*document.Document, error) {
	result := make(map[string][]*document.Document, len(r.cfg.Collections))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, col := range r.cfg.Collections {
		wg.Add(1)
		go func(col config.Collection) {
			defer wg.Done()
			docs, err := r.resolveCollection(ctx, col, changed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("collection %q: %w", col.Name, err)
				}
				return
			}
			result[col.Name] = docs
		}(col)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// resolveCollection resolves one collection, reusing the cached list verbatim
// when the changed path cannot affect it.
func (r *Resolver) resolveCollection(ctx context.Context, col config.Collection, changed string) ([]*document.Document, error) {
	if changed != "" && !r.matches(col, changed) {
		if docs, ok := r.cache.Get(col.Name); ok {
			atomic.AddInt64(&r.cacheHits, 1)
			r.logger.Debug(ctx, "Reusing cached collection", "collection", col.Name, "files", len(docs))
			return docs, nil
		}
	}

	paths, err := r.glob(col)
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, len(paths))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		loadErr error
	)
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			// Unchanged files come back from the document cache; only
			// invalidated paths parse even within a re-scanned collection.
			doc, err := r.loader.Load(ctx, path, r.validators[col.Name])
			if err != nil {
				mu.Lock()
				if loadErr == nil {
					loadErr = err
				}
				mu.Unlock()
				return
			}
			docs[i] = doc
		}(i, path)
	}
	wg.Wait()
	if loadErr != nil {
		return nil, loadErr
	}

	r.cache.Set(col.Name, docs)
	return docs, nil
}

// glob matches the collection patterns over the content root, excluding
// directories, dotfiles, and underscore-prefixed files. Match order follows
// the matcher's walk order and is stable within one process run.
func (r *Resolver) glob(col config.Collection) ([]string, error) {
	atomic.AddInt64(&r.globCalls, 1)

	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range col.Patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(r.root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("matching pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if hiddenOrUnderscore(r.root, match) {
				continue
			}
			seen[match] = true
			paths = append(paths, match)
		}
	}
	return paths, nil
}

// matches reports whether the changed path falls under any of the
// collection's patterns.
func (r *Resolver) matches(col config.Collection, changed string) bool {
	rel, err := filepath.Rel(r.root, changed)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range col.Patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// hiddenOrUnderscore reports whether any path segment below root starts with
// a dot or an underscore.
func hiddenOrUnderscore(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(segment, ".") || strings.HasPrefix(segment, "_") {
			return true
		}
	}
	return false
}
