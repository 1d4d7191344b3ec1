package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/registry"
	"github.com/vk/connectome/internal/toolexec"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	registry  *registry.Registry
	converter config.Converter
	cfg       *Config
	// executor replaces the process runner; tests install a toolexec.Recorder.
	executor toolexec.Executor
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Manifests found under cfg.ModulesPath override the loader's built-in ones.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var paths []string
	if cfg.ModulesPath != "" {
		paths = append(paths, cfg.ModulesPath)
	}

	model, converter, err := loader.Load(ctx, paths...)
	if err != nil {
		// A failure to load tool manifests is a fatal startup error.
		panic(fmt.Errorf("failed to load tool manifests: %w", err))
	}
	logger.Debug("Tool manifests loaded.", "tools", len(model.Tools))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	reg.PopulateDefinitionsFromModel(model)

	if err := reg.ValidateRegistry(ctx); err != nil {
		// This is a programmer error (mismatch between code and manifests), so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:      outW,
		logger:    logger,
		registry:  reg,
		converter: converter,
		cfg:       cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
