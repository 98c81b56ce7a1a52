// Package output writes build artifacts: one JSON data file per collection,
// extracted assets, and the entry manifest describing what was generated.
// Emission failures are fatal to the pass that requested them.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/git-create-devben/velite/internal/logging"
)

// Emitter is the output-emission collaborator invoked by the build
// orchestrator at fixed points in a pass.
type Emitter interface {
	// WriteData writes the aggregate mapping as one data file per
	// collection under dir.
	WriteData(dir string, aggregate map[string]any) error
	// WriteAssets copies every tracked asset from its original path to its
	// public path under dir.
	WriteAssets(dir string, assetMap map[string]string) error
	// WriteEntryManifest writes the manifest tying generated collections
	// back to the configuration that produced them.
	WriteEntryManifest(dir string, configPath string, collections []string) error
}

// Manifest is the entry manifest written at the end of a pass.
type Manifest struct {
	ConfigPath  string    `json:"configPath,omitempty"`
	Collections []string  `json:"collections"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// FSEmitter writes artifacts to the local filesystem.
type FSEmitter struct {
	logger logging.Logger
}

// NewFSEmitter creates a filesystem emitter.
func NewFSEmitter(logger logging.Logger) *FSEmitter {
	return &FSEmitter{logger: logger.WithComponent("output")}
}

// WriteData writes <dir>/<collection>.json for every aggregate entry.
func (e *FSEmitter) WriteData(dir string, aggregate map[string]any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for name, data := range aggregate {
		raw, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding collection %q: %w", name, err)
		}
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, append(raw, '\n'), 0644); err != nil {
			return fmt.Errorf("writing collection %q: %w", name, err)
		}
	}
	return nil
}

// WriteAssets copies tracked assets into dir, creating parent directories as
// needed. Public paths are relative to dir.
func (e *FSEmitter) WriteAssets(dir string, assetMap map[string]string) error {
	for original, public := range assetMap {
		dest := filepath.Join(dir, filepath.FromSlash(public))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating asset dir: %w", err)
		}
		if err := copyFile(original, dest); err != nil {
			return fmt.Errorf("copying asset %q: %w", original, err)
		}
	}
	return nil
}

// WriteEntryManifest writes <dir>/index.json.
func (e *FSEmitter) WriteEntryManifest(dir string, configPath string, collections []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	manifest := Manifest{
		ConfigPath:  configPath,
		Collections: collections,
		GeneratedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.json"), append(raw, '\n'), 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
