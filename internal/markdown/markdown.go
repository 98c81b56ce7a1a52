// Package markdown renders content bodies to HTML. It is the transform
// capability invoked during record parsing, not a post-processing step:
// rendering happens before schema validation so the validated record already
// carries the final HTML, and image references are extracted into the asset
// side-channel along the way.
package markdown

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/git-create-devben/velite/internal/assets"
)

// Renderer converts markdown source to HTML with GFM extensions and rewrites
// relative image destinations to their tracked public paths.
type Renderer struct {
	md      goldmark.Markdown
	tracker *assets.Tracker
}

// New creates a renderer that registers extracted assets on the given tracker.
func New(tracker *assets.Tracker) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		tracker: tracker,
	}
}

// Render renders source to HTML. docPath locates the owning document so
// relative image references resolve against its directory. Unresolvable
// assets keep their original destination rather than failing the render.
func (r *Renderer) Render(source []byte, docPath string) (string, error) {
	reader := text.NewReader(source)
	node := r.md.Parser().Parse(reader)

	err := ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(img.Destination)
		if !isRelativeAsset(dest) {
			return ast.WalkContinue, nil
		}
		original := filepath.Join(filepath.Dir(docPath), filepath.FromSlash(dest))
		public, addErr := r.tracker.Add(original)
		if addErr != nil {
			return ast.WalkContinue, nil
		}
		img.Destination = []byte(public)
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walking markdown ast: %w", err)
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, node); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// isRelativeAsset reports whether an image destination points at a local file
// rather than an absolute URL or site-rooted path.
func isRelativeAsset(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return false
	}
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "data:") {
		return false
	}
	return true
}
