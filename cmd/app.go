package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/git-create-devben/velite/internal/assets"
	"github.com/git-create-devben/velite/internal/build"
	"github.com/git-create-devben/velite/internal/config"
	"github.com/git-create-devben/velite/internal/document"
	"github.com/git-create-devben/velite/internal/loader"
	"github.com/git-create-devben/velite/internal/logging"
	"github.com/git-create-devben/velite/internal/markdown"
	"github.com/git-create-devben/velite/internal/output"
	"github.com/git-create-devben/velite/internal/resolver"
)

// app holds one fully wired build stack. The caches are shared between the
// builder and the watch loop so invalidation reaches the right state.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	builder  *build.Builder
	docs     *document.Cache
	resCache *resolver.Cache
}

// newApp loads configuration and assembles the build pipeline.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: viper.GetString("log-format"),
		Output: os.Stderr,
	})

	tracker := assets.NewTracker()
	docs := document.NewCache()
	resCache := resolver.NewCache()

	l := loader.New(cfg, docs, markdown.New(tracker))
	r, err := resolver.New(cfg, l, resCache, logger)
	if err != nil {
		return nil, err
	}

	emitter := output.NewFSEmitter(logger)
	builder := build.New(cfg, r, emitter, tracker, nil, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		builder:  builder,
		docs:     docs,
		resCache: resCache,
	}, nil
}
