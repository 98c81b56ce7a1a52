// Package loader turns one raw content file into a document with validated
// records. Parsing is extension-dispatched: markdown files yield a single
// record built from front-matter plus the rendered body, data files yield a
// single record or an ordered sequence when their top level is array-shaped.
//
// Validation failures never abort a load. Every issue becomes a diagnostic
// message on the document and the failed record is dropped from the result,
// so sibling records and sibling files always complete.
//
// The document cache is authoritative: a cached path is returned without
// touching the file, and removing a path from the cache is how callers force
// a re-parse. The rebuild coordinator does exactly that for every path in a
// change batch.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/markdown"
	"github.com/git-create-devben/velite/internal/schema"
)

// Loader parses content files and validates their records. It owns no output:
// its only side effect is populating documents in the shared cache.
type Loader struct {
	cfg   *config.Config
	docs  *document.Cache
	md    *markdown.Renderer
	group singleflight.Group

	// parses counts actual parse attempts, excluding cache hits. Used to
	// observe incrementality.
	parses int64
}

// New creates a loader over the shared document cache.
func New(cfg *config.Config, docs *document.Cache, md *markdown.Renderer) *Loader {
	return &Loader{cfg: cfg, docs: docs, md: md}
}

// ParseCount returns the number of parse attempts so far.
func (l *Loader) ParseCount() int64 {
	return atomic.LoadInt64(&l.parses)
}

// Load produces the document for path with its result populated.
//
// Concurrent loads of one uncached path collapse into a single parse, so a
// file claimed by several collections is parsed and validated exactly once
// per pass. The first arriving collection's validator is the one applied;
// declaring conflicting schemas over one path is unsupported.
func (l *Loader) Load(ctx context.Context, path string, validator schema.Validator) (*document.Document, error) {
	if doc, ok := l.docs.Get(path); ok {
		return doc, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, _, _ := l.group.Do(path, func() (interface{}, error) {
		if doc, ok := l.docs.Get(path); ok {
			return doc, nil
		}
		doc := document.New(path)
		l.parse(ctx, doc, validator)
		l.docs.Put(doc)
		return doc, nil
	})
	return v.(*document.Document), nil
}

// parse extracts and validates one file into a fresh document. Parse failures
// become diagnostics with an empty result, never errors.
func (l *Loader) parse(ctx context.Context, doc *document.Document, validator schema.Validator) {
	atomic.AddInt64(&l.parses, 1)

	records, parseErr := l.extract(doc.Path)
	if parseErr != nil {
		doc.AddMessage(parseErr.Error(), l.locate(doc.Path, "", ""))
		doc.SetRecords(document.Records{})
		doc.SetResult(nil, false)
		return
	}
	doc.SetRecords(records)

	l.validate(ctx, doc, records, validator)
}

// validate fans out across the records of one file. Each branch captures its
// failures as diagnostics so siblings always complete; successful outputs are
// assembled in input order with failed entries dropped, not nulled in place.
func (l *Loader) validate(ctx context.Context, doc *document.Document, records document.Records, validator schema.Validator) {
	values := records.Values()
	outputs := make([]map[string]any, len(values))

	meta := &schema.Meta{
		Path:   doc.Path,
		Root:   l.cfg.Root,
		Output: l.cfg.Output.Dir,
	}

	var wg sync.WaitGroup
	for i, record := range values {
		wg.Add(1)
		go func(i int, record map[string]any) {
			defer wg.Done()

			contextPath := ""
			if records.IsMany() {
				contextPath = fmt.Sprintf("records[%d]", i)
			}

			out, issues := validator.Validate(ctx, record, contextPath, meta)
			if len(issues) > 0 {
				for _, issue := range issues {
					doc.AddMessage(issue.Message, l.locate(doc.Path, contextPath, issue.Path))
				}
				return
			}
			outputs[i] = out
		}(i, record)
	}
	wg.Wait()

	result := make([]map[string]any, 0, len(outputs))
	for _, out := range outputs {
		if out != nil {
			result = append(result, out)
		}
	}
	doc.SetResult(result, records.IsMany())
}

// locate builds a source locator relative to the content root when possible.
func (l *Loader) locate(path, contextPath, fieldPath string) string {
	display := path
	if root, err := l.cfg.AbsRoot(); err == nil {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			display = filepath.ToSlash(rel)
		}
	}
	return schema.Locator(display, contextPath, fieldPath)
}
