// Package build drives one resolution pass to completion: it resolves all
// collections, aggregates validated records, enforces cardinality rules,
// reports diagnostics, and hands the result to the output emitter unless a
// pre-output hook vetoes emission.
package build

import (
	"context"
	"fmt"
	"sort"

	"github.com/git-create-devben/velite/internal/assets"
	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/output"
	"github.com/git-create-devben/velite/internal/resolver"
)

// Aggregate is the final name-to-data mapping for one pass. A single
// collection maps to one record value, every other collection maps to an
// ordered record slice. It is built fresh every pass, never merged from a
// previous aggregate.
type Aggregate map[string]any

// Builder orchestrates build passes.
type Builder struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	emitter  output.Emitter
	tracker  *assets.Tracker
	hooks    Hooks
	logger   logging.Logger
}

// New creates a builder. hooks may be nil, which means "always proceed".
func New(cfg *config.Config, r *resolver.Resolver, emitter output.Emitter, tracker *assets.Tracker, hooks Hooks, logger logging.Logger) *Builder {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Builder{
		cfg:      cfg,
		resolver: r,
		emitter:  emitter,
		tracker:  tracker,
		hooks:    hooks,
		logger:   logger.WithComponent("build"),
	}
}

// Build runs one resolution pass. changed scopes an incremental pass to the
// path that triggered it; empty means a full build. The returned aggregate is
// complete even when emission was vetoed by the pre-output hook.
func (b *Builder) Build(ctx context.Context, changed string) (Aggregate, error) {
	resolved, err := b.resolver.Resolve(ctx, changed)
	if err != nil {
		return nil, err
	}

	messages := collectMessages(resolved)
	for _, msg := range messages {
		b.logger.Warn(ctx, nil, "Validation issue", "issue", msg.String())
	}
	if len(messages) > 0 && b.cfg.Strict {
		return nil, fmt.Errorf("strict mode: %d validation issue(s)", len(messages))
	}

	aggregate := make(Aggregate, len(resolved))
	for _, col := range b.cfg.Collections {
		value, err := aggregateCollection(col, resolved[col.Name])
		if err != nil {
			return nil, err
		}
		if col.Single && countRecords(resolved[col.Name]) > 1 {
			b.logger.Warn(ctx, nil, "Multiple records for single collection, using the first",
				"collection", col.Name)
		}
		aggregate[col.Name] = value
	}

	proceed, err := b.hooks.BeforeOutput(aggregate)
	if err != nil {
		return nil, fmt.Errorf("pre-output hook: %w", err)
	}

	if proceed {
		if err := b.emitter.WriteData(b.cfg.Output.Dir, aggregate); err != nil {
			return nil, err
		}
		if err := b.emitter.WriteEntryManifest(b.cfg.Output.Dir, b.cfg.File, b.collectionNames()); err != nil {
			return nil, err
		}
	} else {
		b.logger.Info(ctx, "Output vetoed by pre-output hook")
	}

	// Assets are copied even when data emission is vetoed.
	if err := b.emitter.WriteAssets(b.cfg.Output.Dir, b.tracker.Snapshot()); err != nil {
		return nil, err
	}

	if err := b.hooks.AfterOutput(aggregate); err != nil {
		return nil, fmt.Errorf("post-output hook: %w", err)
	}
	return aggregate, nil
}

// collectMessages gathers every diagnostic across every resolved file into
// one ordered report. A document shared by multiple collections reports once.
func collectMessages(resolved map[string][]*document.Document) []document.Message {
	seen := make(map[*document.Document]bool)
	var docs []*document.Document
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, doc := range resolved[name] {
			if doc == nil || seen[doc] {
				continue
			}
			seen[doc] = true
			docs = append(docs, doc)
		}
	}

	var messages []document.Message
	for _, doc := range docs {
		messages = append(messages, doc.Messages()...)
	}
	return messages
}

// aggregateCollection flattens the documents' results into the collection's
// aggregate value, honoring cardinality.
func aggregateCollection(col config.Collection, docs []*document.Document) (any, error) {
	records := flatten(docs)
	if col.Single {
		if len(records) == 0 {
			return nil, fmt.Errorf("no data resolved for collection %q", col.Name)
		}
		return records[0], nil
	}
	return records, nil
}

// flatten joins all validated results in file order, record order within a
// file preserved, absent values already dropped.
func flatten(docs []*document.Document) []map[string]any {
	records := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		values, _ := doc.Result()
		records = append(records, values...)
	}
	return records
}

func countRecords(docs []*document.Document) int {
	return len(flatten(docs))
}

func (b *Builder) collectionNames() []string {
	names := make([]string, 0, len(b.cfg.Collections))
	for _, col := range b.cfg.Collections {
		names = append(names, col.Name)
	}
	return names
}
