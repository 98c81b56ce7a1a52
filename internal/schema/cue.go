package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// CueValidator validates records against a CUE schema declared inline in the
// collection configuration. The schema is compiled once; each record is
// encoded, unified with the schema, and checked for concreteness so missing
// required fields surface as incomplete-value errors.
type CueValidator struct {
	cctx   *cue.Context
	schema cue.Value

	// CUE evaluation within one context is not safe for concurrent use, so
	// unification is serialized here while file IO and parsing still fan out.
	mu sync.Mutex
}

// Compile compiles a CUE schema source into a validator. The source is a bare
// struct body, e.g.:
//
//	title: string
//	date:  string
//	tags?: [...string]
func Compile(source string) (*CueValidator, error) {
	cctx := cuecontext.New()
	schema := cctx.CompileString(source)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}
	return &CueValidator{cctx: cctx, schema: schema}, nil
}

// Validate unifies the record with the schema. On success the unified value
// (schema defaults applied, unknown fields preserved) is decoded back into a
// map. On failure every contained CUE error becomes one Issue with its field
// path.
func (cv *CueValidator) Validate(_ context.Context, record map[string]any, contextPath string, _ *Meta) (map[string]any, []Issue) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	val := cv.cctx.Encode(record)
	if val.Err() != nil {
		return nil, []Issue{{Message: fmt.Sprintf("encoding record: %v", val.Err())}}
	}

	unified := cv.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, issuesFrom(err)
	}

	var out map[string]any
	if err := unified.Decode(&out); err != nil {
		return nil, issuesFrom(err)
	}
	return out, nil
}

// issuesFrom converts a CUE error list into issues with JSON-path locators.
func issuesFrom(err error) []Issue {
	cueErrs := cueerrors.Errors(err)
	if len(cueErrs) == 0 {
		return []Issue{{Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(cueErrs))
	for _, e := range cueErrs {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		// CUE sometimes includes the path in the message itself.
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		issues = append(issues, Issue{Path: path, Message: msg})
	}
	return issues
}

// formatPath converts a CUE error path (a flat string slice where numeric
// elements are array indices) to JSON-path notation, e.g.
// ["tags", "0"] -> "tags[0]".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if isIndex(part) && i > 0 {
			b.WriteString("[")
			b.WriteString(part)
			b.WriteString("]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
