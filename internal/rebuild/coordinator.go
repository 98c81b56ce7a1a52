// Package rebuild drives watch mode: it subscribes to debounced file change
// batches, invalidates exactly the cached state the changed paths touch, and
// runs one build pass at a time until the context ends or the configuration
// file itself changes.
package rebuild

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/git-create-devben/velite/internal/build"
	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/resolver"
	"github.com/git-create-devben/velite/internal/watcher"
)

// ErrConfigChanged signals that the watched configuration file was modified.
// The caller is expected to reload the configuration and start a fresh
// coordinator, since collection declarations may have changed shape.
var ErrConfigChanged = errors.New("configuration file changed")

// DefaultDebounce is the window in which rapid successive writes collapse
// into one rebuild.
const DefaultDebounce = 200 * time.Millisecond

// Coordinator owns the watch loop. Rebuilds are strictly serialized: a batch
// arriving while a pass runs waits for the pass to finish.
type Coordinator struct {
	cfg      *config.Config
	builder  *build.Builder
	docs     *document.Cache
	resCache *resolver.Cache
	logger   logging.Logger
	debounce time.Duration

	mu sync.Mutex
}

// New creates a coordinator over the shared caches. docs and resCache must be
// the same instances the builder's resolver and loader use, otherwise
// invalidation is a no-op.
func New(cfg *config.Config, builder *build.Builder, docs *document.Cache, resCache *resolver.Cache, logger logging.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		builder:  builder,
		docs:     docs,
		resCache: resCache,
		logger:   logger.WithComponent("rebuild"),
		debounce: DefaultDebounce,
	}
}

// Run performs an initial full build and then watches the content root until
// ctx is cancelled or the configuration file changes. A failed pass is logged
// and the loop keeps running; broken content must not kill watch mode.
func (c *Coordinator) Run(ctx context.Context) error {
	if _, err := c.builder.Build(ctx, ""); err != nil {
		c.logger.Warn(ctx, err, "Initial build failed")
	}

	root, err := c.cfg.AbsRoot()
	if err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(c.debounce)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.AnyFilter(
		watcher.PathFilter(c.cfg.File),
		watcher.AllFilter(
			watcher.ContentFilter,
			watcher.NoHiddenFilter,
			watcher.NoUnderscoreFilter,
			watcher.ExcludeDirFilter(c.cfg.Output.Dir),
		),
	))

	batches := make(chan []watcher.ChangeEvent, 10)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		select {
		case batches <- events:
		case <-ctx.Done():
		}
		return nil
	})

	if err := fw.AddRecursive(root); err != nil {
		return err
	}
	if c.cfg.File != "" {
		// The config file usually lives outside the content root, so its
		// directory is watched separately.
		if err := fw.AddPath(filepath.Dir(c.cfg.File)); err != nil {
			c.logger.Warn(ctx, err, "Cannot watch config file", "path", c.cfg.File)
		}
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}
	c.logger.Info(ctx, "Watching for changes", "root", root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events := <-batches:
			if err := c.handleBatch(ctx, events); err != nil {
				return err
			}
		}
	}
}

// handleBatch invalidates state for one debounced batch and runs a pass.
// Returns ErrConfigChanged when the batch includes the config file; any other
// pass failure is swallowed after logging so watching continues.
func (c *Coordinator) handleBatch(ctx context.Context, events []watcher.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []string
	for _, ev := range events {
		if c.cfg.File != "" && filepath.Clean(ev.Path) == filepath.Clean(c.cfg.File) {
			return ErrConfigChanged
		}
		changed = append(changed, ev.Path)
	}
	if len(changed) == 0 {
		return nil
	}

	for _, path := range changed {
		c.docs.Remove(path)
		invalidated := c.resCache.InvalidateForPath(path)
		c.logger.Debug(ctx, "Invalidated cached state",
			"path", path, "collections", invalidated)
	}

	// A single changed file gets the scoped pass. A batch touching several
	// files falls back to a full pass: every collection re-globs, but only
	// the paths removed from the document cache above re-parse.
	hint := ""
	if len(changed) == 1 {
		hint = changed[0]
	}

	start := time.Now()
	if _, err := c.builder.Build(ctx, hint); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn(ctx, err, "Rebuild failed")
		return nil
	}
	c.logger.Info(ctx, "Rebuild complete",
		"files", len(changed), "duration", time.Since(start))
	return nil
}
