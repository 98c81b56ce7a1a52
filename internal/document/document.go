// Package document defines the in-memory representation of a single content
// file: its raw parsed records, accumulated diagnostics, and the validated
// result. Documents are the unit of caching for incremental rebuilds.
package document

import (
	"fmt"
	"sync"
)

// Message is a non-fatal diagnostic attached to a document, carrying a source
// locator such as "content/posts/a.yaml:records[1].title".
type Message struct {
	Text    string
	Locator string
}

// String formats the message with its locator for warning output.
func (m Message) String() string {
	if m.Locator == "" {
		return m.Text
	}
	return fmt.Sprintf("%s: %s", m.Locator, m.Text)
}

// Records holds the raw parsed content of a file. A file either yields a
// single structured value or an ordered sequence of values when its top level
// is array-shaped. The variant is fixed at parse time so downstream code never
// branches on an untyped runtime shape.
type Records struct {
	values []map[string]any
	many   bool
}

// Single wraps one structured value.
func Single(value map[string]any) Records {
	return Records{values: []map[string]any{value}}
}

// Many wraps an ordered sequence of values from an array-shaped source.
func Many(values []map[string]any) Records {
	return Records{values: values, many: true}
}

// IsMany reports whether the source was array-shaped.
func (r Records) IsMany() bool { return r.many }

// Values returns the ordered raw records. Input order is preserved.
func (r Records) Values() []map[string]any { return r.values }

// Len returns the number of raw records.
func (r Records) Len() int { return len(r.values) }

// Document tracks one physical content file across resolution passes. It is
// built once per parse: messages are appended and never cleared for the
// document's lifetime, and invalidating the path replaces the document
// wholesale rather than patching it in place.
type Document struct {
	Path string

	mu       sync.Mutex
	records  Records
	messages []Message
	result   []map[string]any
	many     bool
}

// New creates a document for the given canonical path.
func New(path string) *Document {
	return &Document{Path: path}
}

// SetRecords replaces the raw parsed content.
func (d *Document) SetRecords(r Records) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = r
}

// Records returns the raw parsed content.
func (d *Document) Records() Records {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records
}

// AddMessage appends a diagnostic. Safe for concurrent use by parallel
// record-validation branches.
func (d *Document) AddMessage(text, locator string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, Message{Text: text, Locator: locator})
}

// Messages returns a copy of all accumulated diagnostics in order.
func (d *Document) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.messages))
	copy(out, d.messages)
	return out
}

// SetResult overwrites the validated output. Failed records are dropped from
// the sequence by the caller, not nulled in place, so values contains only
// successful outputs in input order.
func (d *Document) SetResult(values []map[string]any, many bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = values
	d.many = many
}

// Result returns the validated output values in order, and whether the source
// was array-shaped. For a single-value source the slice has length zero (the
// record failed validation) or one.
func (d *Document) Result() ([]map[string]any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]any, len(d.result))
	copy(out, d.result)
	return out, d.many
}
