package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-create-devben/velite/internal/assets"
	"github.com/git-create-devben/velite/internal/build"
	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/loader"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/markdown"
	"github.com/git-create-devben/velite/internal/resolver"
	"github.com/git-create-devben/velite/internal/watcher"
)

type nullEmitter struct{}

func (nullEmitter) WriteData(string, map[string]any) error                 { return nil }
func (nullEmitter) WriteAssets(string, map[string]string) error            { return nil }
func (nullEmitter) WriteEntryManifest(string, string, []string) error      { return nil }

type watchStack struct {
	coordinator *Coordinator
	loader      *loader.Loader
	resolver    *resolver.Resolver
	docs        *document.Cache
}

func newWatchStack(t *testing.T, root string, strict bool, collections []config.Collection) *watchStack {
	t.Helper()
	cfg := &config.Config{
		Root:        root,
		Output:      config.OutputConfig{Dir: filepath.Join(root, ".velite")},
		Strict:      strict,
		Collections: collections,
		File:        filepath.Join(root, ".velite.yml"),
	}
	docs := document.NewCache()
	l := loader.New(cfg, docs, markdown.New(assets.NewTracker()))
	resCache := resolver.NewCache()
	r, err := resolver.New(cfg, l, resCache, logging.Nop())
	require.NoError(t, err)
	builder := build.New(cfg, r, nullEmitter{}, assets.NewTracker(), nil, logging.Nop())
	return &watchStack{
		coordinator: New(cfg, builder, docs, resCache, logging.Nop()),
		loader:      l,
		resolver:    r,
		docs:        docs,
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHandleBatchConfigChange(t *testing.T) {
	root := t.TempDir()
	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})

	err := s.coordinator.handleBatch(context.Background(), []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: filepath.Join(root, ".velite.yml")},
	})
	assert.ErrorIs(t, err, ErrConfigChanged)
	// No pass ran before the signal.
	assert.Equal(t, int64(0), s.loader.ParseCount())
}

func TestHandleBatchSingleChangeReparsesOnlyThatFile(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	writeFile(t, filepath.Join(root, "posts", "b.md"), "---\ntitle: B\n---\nbody\n")

	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}, Schema: "title: string"},
	})

	ctx := context.Background()
	_, err := s.coordinator.builder.Build(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(2), s.loader.ParseCount())

	writeFile(t, a, "---\ntitle: A2\n---\nbody\n")
	err = s.coordinator.handleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: a},
	})
	require.NoError(t, err)

	// Only the edited file parses again.
	assert.Equal(t, int64(3), s.loader.ParseCount())
}

func TestHandleBatchMultipleChangesReparseOnlyThoseFiles(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	b := writeFile(t, filepath.Join(root, "posts", "b.md"), "---\ntitle: B\n---\nbody\n")
	writeFile(t, filepath.Join(root, "pages", "p.md"), "---\ntitle: P\n---\nbody\n")

	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}, Schema: "title: string"},
		{Name: "pages", Patterns: []string{"pages/**/*.md"}, Schema: "title: string"},
	})

	ctx := context.Background()
	_, err := s.coordinator.builder.Build(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(3), s.loader.ParseCount())

	writeFile(t, a, "---\ntitle: A2\n---\nbody\n")
	writeFile(t, b, "---\ntitle: B2\n---\nbody\n")
	err = s.coordinator.handleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: a},
		{Type: watcher.EventTypeModified, Path: b},
	})
	require.NoError(t, err)

	// The batch forces a full pass, but the untouched pages file comes back
	// from the document cache rather than parsing a third time.
	assert.Equal(t, int64(5), s.loader.ParseCount())
}

func TestHandleBatchUnrelatedCollectionReusesCache(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	writeFile(t, filepath.Join(root, "pages", "p.md"), "---\ntitle: P\n---\nbody\n")

	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
		{Name: "pages", Patterns: []string{"pages/**/*.md"}},
	})

	ctx := context.Background()
	_, err := s.coordinator.builder.Build(ctx, "")
	require.NoError(t, err)
	after := s.resolver.Metrics()
	require.Equal(t, int64(2), after.GlobCalls)

	writeFile(t, a, "---\ntitle: A2\n---\nbody\n")
	err = s.coordinator.handleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: a},
	})
	require.NoError(t, err)

	m := s.resolver.Metrics()
	assert.Equal(t, int64(3), m.GlobCalls)
	assert.Equal(t, int64(1), m.CacheHits)
}

func TestHandleBatchDeletedFileDropsRecords(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	writeFile(t, filepath.Join(root, "posts", "b.md"), "---\ntitle: B\n---\nbody\n")

	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})

	ctx := context.Background()
	_, err := s.coordinator.builder.Build(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, s.docs.Len())

	require.NoError(t, os.Remove(a))
	err = s.coordinator.handleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeDeleted, Path: a},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.docs.Len())
}

func TestHandleBatchFailedPassKeepsWatching(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")

	s := newWatchStack(t, root, true, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}, Schema: "title: string"},
	})

	ctx := context.Background()
	_, err := s.coordinator.builder.Build(ctx, "")
	require.NoError(t, err)

	// Break the file: strict mode turns the diagnostic into a pass failure,
	// which the coordinator absorbs.
	writeFile(t, a, "---\ntitle: 42\n---\nbody\n")
	err = s.coordinator.handleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: a},
	})
	assert.NoError(t, err)
}

func TestHandleBatchEmptyIsNoop(t *testing.T) {
	root := t.TempDir()
	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})

	err := s.coordinator.handleBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.loader.ParseCount())
}

func TestRunStopsOnConfigChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	cfgPath := writeFile(t, filepath.Join(root, ".velite.yml"), "root: .\n")

	s := newWatchStack(t, root, false, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})
	s.coordinator.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.coordinator.Run(ctx) }()

	// Give the watcher a moment to arm before touching the config.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, cfgPath, "root: .\nstrict: true\n")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConfigChanged)
	case <-ctx.Done():
		t.Fatal("coordinator did not stop on config change")
	}
}
