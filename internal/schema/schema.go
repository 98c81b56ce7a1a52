// Package schema defines the record-validation capability consumed by the
// loader. A Validator takes one raw record and either returns the validated
// value or a list of field-level issues; it never fails the pass itself.
package schema

import (
	"context"
	"fmt"
)

// Issue is a single field-level validation failure.
type Issue struct {
	// Path is the JSON path to the offending field, e.g. "tags[0]".
	// Empty when the issue concerns the record as a whole.
	Path string
	// Message describes the failure.
	Message string
}

// Meta carries the originating document path and resolved configuration so
// field-level transforms can access both.
type Meta struct {
	Path   string
	Root   string
	Output string
}

// Validator validates one record against a collection's declared schema.
// Implementations must be safe for concurrent use: records of the same file
// are validated in parallel.
type Validator interface {
	Validate(ctx context.Context, record map[string]any, contextPath string, meta *Meta) (map[string]any, []Issue)
}

// Any is the permissive validator used when a collection declares no schema.
// Every record passes through unchanged.
type Any struct{}

// Validate returns the record as-is.
func (Any) Validate(_ context.Context, record map[string]any, _ string, _ *Meta) (map[string]any, []Issue) {
	return record, nil
}

// Locator builds a source locator from the document path, the record's
// positional path, and the issue's field path.
func Locator(docPath, contextPath, fieldPath string) string {
	switch {
	case contextPath == "" && fieldPath == "":
		return docPath
	case contextPath == "":
		return fmt.Sprintf("%s:%s", docPath, fieldPath)
	case fieldPath == "":
		return fmt.Sprintf("%s:%s", docPath, contextPath)
	default:
		return fmt.Sprintf("%s:%s.%s", docPath, contextPath, fieldPath)
	}
}
