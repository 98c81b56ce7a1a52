package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-create-devben/velite/internal/assets"
	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/loader"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/markdown"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestSetup(t *testing.T, root string, collections []config.Collection) (*Resolver, *loader.Loader, *Cache, *document.Cache) {
	t.Helper()
	cfg := &config.Config{
		Root:        root,
		Output:      config.OutputConfig{Dir: ".velite"},
		Collections: collections,
	}
	docs := document.NewCache()
	l := loader.New(cfg, docs, markdown.New(assets.NewTracker()))
	cache := NewCache()
	r, err := New(cfg, l, cache, logging.Nop())
	require.NoError(t, err)
	return r, l, cache, docs
}

func TestResolveFullPass(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody a\n")
	writeFile(t, filepath.Join(root, "posts", "b.md"), "---\ntitle: B\n---\nbody b\n")
	writeFile(t, filepath.Join(root, "site.yml"), "name: Site\n")

	r, _, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}, Schema: "title: string"},
		{Name: "site", Patterns: []string{"site.yml"}, Single: true},
	})

	result, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Len(t, result["posts"], 2)
	assert.Len(t, result["site"], 1)

	// Glob match order is stable: lexical walk order.
	assert.Equal(t, filepath.Join(root, "posts", "a.md"), result["posts"][0].Path)
	assert.Equal(t, filepath.Join(root, "posts", "b.md"), result["posts"][1].Path)
}

func TestResolveIdempotence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")

	r, _, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}, Schema: "title: string"},
	})

	first, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, second["posts"], len(first["posts"]))
	for i := range first["posts"] {
		assert.Equal(t, first["posts"][i].Path, second["posts"][i].Path)
		firstValues, _ := first["posts"][i].Result()
		secondValues, _ := second["posts"][i].Result()
		assert.Equal(t, firstValues, secondValues)
	}
}

func TestResolveIncrementality(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "---\ntitle: A\n---\nbody\n")
	changed := writeFile(t, filepath.Join(root, "pages", "p.md"), "---\ntitle: P\n---\nbody\n")

	r, l, cache, docs := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
		{Name: "pages", Patterns: []string{"pages/**/*.md"}},
	})

	first, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	globsAfterFull := r.Metrics().GlobCalls
	parsesAfterFull := l.ParseCount()
	assert.Equal(t, int64(2), globsAfterFull)
	assert.Equal(t, int64(2), parsesAfterFull)

	// The watcher invalidates changed paths before asking for a scoped pass.
	docs.Remove(changed)
	cache.InvalidateForPath(changed)

	// A pass scoped to a pages file must not re-glob or re-parse posts.
	second, err := r.Resolve(context.Background(), changed)
	require.NoError(t, err)

	metrics := r.Metrics()
	assert.Equal(t, globsAfterFull+1, metrics.GlobCalls, "only the matching collection re-globs")
	assert.Equal(t, int64(1), metrics.CacheHits)
	assert.Equal(t, parsesAfterFull+1, l.ParseCount(), "only the changed file re-parses")

	// The cached list is returned verbatim for the unaffected collection.
	require.Len(t, second["posts"], 1)
	assert.Same(t, first["posts"][0], second["posts"][0])
}

func TestResolveExcludesHiddenAndUnderscore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "body\n")
	writeFile(t, filepath.Join(root, "posts", "_draft.md"), "body\n")
	writeFile(t, filepath.Join(root, "posts", ".hidden.md"), "body\n")
	writeFile(t, filepath.Join(root, "posts", "_wip", "b.md"), "body\n")

	r, _, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})

	result, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, result["posts"], 1)
	assert.Equal(t, filepath.Join(root, "posts", "a.md"), result["posts"][0].Path)
}

func TestResolveSamePathInMultipleCollections(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "guide.md"), "---\ntitle: 42\n---\nbody\n")

	r, l, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "docs", Patterns: []string{"docs/**/*.md"}, Schema: "title: string"},
		{Name: "everything", Patterns: []string{"**/*.md"}, Schema: "title: string"},
	})

	result, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, result["docs"], 1)
	require.Len(t, result["everything"], 1)

	// Both collections share the same document via the per-path cache, even
	// when they resolve concurrently within one pass: the file parses and
	// validates once, so the schema failure surfaces as a single diagnostic.
	assert.Same(t, result["docs"][0], result["everything"][0])
	assert.Equal(t, int64(1), l.ParseCount())
	assert.Len(t, result["docs"][0].Messages(), 1)
}

func TestResolveDedupesOverlappingPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "posts", "a.md"), "body\n")

	r, _, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md", "posts/a.md"}},
	})

	result, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, result["posts"], 1)
}

func TestNewRejectsBadSchema(t *testing.T) {
	cfg := &config.Config{
		Root:   t.TempDir(),
		Output: config.OutputConfig{Dir: ".velite"},
		Collections: []config.Collection{
			{Name: "posts", Patterns: []string{"**/*.md"}, Schema: "title: string &"},
		},
	}
	docs := document.NewCache()
	l := loader.New(cfg, docs, markdown.New(assets.NewTracker()))

	_, err := New(cfg, l, NewCache(), logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `collection "posts"`)
}

func TestMatches(t *testing.T) {
	root := t.TempDir()
	r, _, _, _ := newTestSetup(t, root, []config.Collection{
		{Name: "posts", Patterns: []string{"posts/**/*.md"}},
	})
	col := config.Collection{Patterns: []string{"posts/**/*.md"}}

	assert.True(t, r.matches(col, filepath.Join(root, "posts", "a.md")))
	assert.True(t, r.matches(col, filepath.Join(root, "posts", "nested", "b.md")))
	assert.False(t, r.matches(col, filepath.Join(root, "pages", "a.md")))
	assert.False(t, r.matches(col, "/elsewhere/a.md"))
}

func TestCacheInvalidateForPath(t *testing.T) {
	cache := NewCache()
	a := document.New("/content/a.md")
	b := document.New("/content/b.md")

	cache.Set("posts", []*document.Document{a, b})
	cache.Set("pages", []*document.Document{b})

	invalidated := cache.InvalidateForPath("/content/a.md")
	assert.ElementsMatch(t, []string{"posts"}, invalidated)

	_, ok := cache.Get("posts")
	assert.False(t, ok)
	_, ok = cache.Get("pages")
	assert.True(t, ok)
}
