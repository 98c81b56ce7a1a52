package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/git-create-devben/velite/internal/document"
)

var frontMatterDelim = []byte("---")

// extract reads path and parses it into raw records. Array-shaped YAML and
// JSON sources yield Many; everything else yields Single.
func (l *Loader) extract(path string) (document.Records, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return document.Records{}, fmt.Errorf("reading file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdx":
		return l.extractMarkdown(raw, path)
	case ".yaml", ".yml":
		var data any
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return document.Records{}, fmt.Errorf("parsing yaml: %w", err)
		}
		return shape(data)
	case ".json":
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return document.Records{}, fmt.Errorf("parsing json: %w", err)
		}
		return shape(data)
	case ".toml":
		var data map[string]any
		if err := toml.Unmarshal(raw, &data); err != nil {
			return document.Records{}, fmt.Errorf("parsing toml: %w", err)
		}
		return document.Single(data), nil
	default:
		return document.Records{}, fmt.Errorf("unsupported file format %q", filepath.Ext(path))
	}
}

// extractMarkdown parses YAML front-matter and renders the body through the
// markdown capability. The record carries the front-matter fields plus the
// raw body under "content" and the rendered HTML under "html".
func (l *Loader) extractMarkdown(raw []byte, path string) (document.Records, error) {
	meta, body := splitFrontMatter(raw)

	record := make(map[string]any)
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &record); err != nil {
			return document.Records{}, fmt.Errorf("parsing front matter: %w", err)
		}
	}

	html, err := l.md.Render(body, path)
	if err != nil {
		return document.Records{}, fmt.Errorf("rendering body: %w", err)
	}

	record["content"] = string(bytes.TrimSpace(body))
	record["html"] = html
	return document.Single(record), nil
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// body. Files without front matter return a nil meta block.
func splitFrontMatter(raw []byte) (meta, body []byte) {
	if !bytes.HasPrefix(raw, frontMatterDelim) {
		return nil, raw
	}
	rest := raw[len(frontMatterDelim):]
	if len(rest) > 0 && rest[0] == '\r' {
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != '\n' {
		return nil, raw
	}
	rest = rest[1:]

	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return nil, raw
	}
	meta = rest[:end]
	body = rest[end+1+len(frontMatterDelim):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, body
}

// shape converts a decoded YAML/JSON value into the Single or Many variant.
// Array-shaped sources must contain objects; anything else is unusable as a
// record set.
func shape(data any) (document.Records, error) {
	switch v := data.(type) {
	case map[string]any:
		return document.Single(v), nil
	case []any:
		values := make([]map[string]any, 0, len(v))
		for i, item := range v {
			record, ok := item.(map[string]any)
			if !ok {
				return document.Records{}, fmt.Errorf("array element %d is not an object", i)
			}
			values = append(values, record)
		}
		return document.Many(values), nil
	default:
		return document.Records{}, fmt.Errorf("top-level value must be an object or an array of objects")
	}
}
