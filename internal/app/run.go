package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/engine"
	"github.com/vk/connectome/internal/inmemorystore"
	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/nodestore"
	"github.com/vk/connectome/internal/pipeline"
	"github.com/vk/connectome/internal/sqlitestore"
	"github.com/vk/connectome/internal/telemetry"
	"github.com/vk/connectome/internal/toolexec"
	"github.com/vk/connectome/internal/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Graph files written next to the workflow results, like nipype's write_graph.
const (
	GraphFile         = "graph.dot"
	DetailedGraphFile = "graph_detailed.dot"
)

// pipelineOptions translates the configuration into pipeline options.
func (c *Config) pipelineOptions(lay *layout.Layout) pipeline.Options {
	opts := pipeline.Defaults()
	opts.Subjects = c.Subjects
	opts.BaseDirectory = c.BaseDirectory
	opts.TemplateDirectory = c.TemplateDirectory
	opts.ParcellationDirectory = c.ParcellationDirectory
	opts.AcquisitionParameters = c.AcquisitionParameters
	opts.IndexFile = c.IndexFile
	opts.Layout = lay
	if c.SourceSubject != "" {
		opts.SourceSubject = c.SourceSubject
	}
	if c.ParcellationName != "" {
		opts.ParcellationName = c.ParcellationName
	}
	if len(c.Models) > 0 {
		opts.Models = c.Models
	}
	if len(c.Thresholds) > 0 {
		opts.Thresholds = c.Thresholds
	}
	if c.SplineStepLength > 0 {
		opts.SplineStepLength = c.SplineStepLength
	}
	return opts
}

// Run builds the connectome workflow for the configured subjects and executes
// it. Failed nodes do not stop unrelated branches unless FailFast is set; the
// returned error names every root failure.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	cfg := a.cfg

	runID := uuid.NewString()
	lay, err := layout.New(cfg.OutDirectory)
	if err != nil {
		return err
	}

	wf, err := pipeline.Connectome(cfg.pipelineOptions(lay))
	if err != nil {
		return fmt.Errorf("failed to build connectome workflow: %w", err)
	}
	plan, err := wf.Expand()
	if err != nil {
		return fmt.Errorf("failed to expand connectome workflow: %w", err)
	}
	a.logger.Info("🧠 Connectome workflow expanded.", "run_id", runID, "subjects", len(cfg.Subjects), "instances", len(plan.Instances))

	if !cfg.DryRun {
		if err := lay.Prepare(cfg.ParcellationDirectory, cfg.SourceSubject); err != nil {
			return fmt.Errorf("failed to prepare output directory: %w", err)
		}
		if err := writeGraphs(lay.BaseDir, wf, plan); err != nil {
			return err
		}
		a.logger.Debug("Workflow graphs written.", "dir", lay.BaseDir)
	}

	store, err := a.openStore(ctx, lay, runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close node store: %w", cerr)
		}
	}()

	tp, shutdownTracer, err := a.tracerProvider(runID)
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdownTracer(context.WithoutCancel(ctx)); serr != nil && err == nil {
			err = fmt.Errorf("failed to flush traces: %w", serr)
		}
	}()

	if cfg.HealthcheckPort > 0 {
		handler := newRouter(a.logger, func(ctx context.Context) (*runStatus, error) {
			summary, err := store.Summary(ctx)
			if err != nil {
				return nil, err
			}
			return &runStatus{RunID: runID, Subjects: cfg.Subjects, DryRun: cfg.DryRun, Nodes: summary}, nil
		})
		stop := startHealthcheckServer(ctx, a.logger, cfg.HealthcheckPort, handler)
		defer stop()
	}

	exec := a.executor
	if exec == nil {
		if cfg.DryRun {
			exec = toolexec.NewRecorder(false)
		} else {
			exec = toolexec.NewLocal()
		}
	}

	eng := engine.New(a.registry, a.converter, store, exec, lay, engine.Options{
		Workers:        cfg.Workers,
		FailFast:       cfg.FailFast,
		DryRun:         cfg.DryRun,
		Cache:          true,
		RunID:          runID,
		TracerProvider: tp,
	})
	runErr := eng.Run(ctx, plan)

	if finisher, ok := store.(interface {
		Finish(ctx context.Context, status string) error
	}); ok {
		status := "completed"
		if runErr != nil {
			status = "failed"
		}
		if err := finisher.Finish(context.WithoutCancel(ctx), status); err != nil {
			a.logger.Warn("Failed to record run status.", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) openStore(ctx context.Context, lay *layout.Layout, runID string) (nodestore.Store, error) {
	// A dry run must not create the provenance database.
	if a.cfg.Cache == CacheMemory || a.cfg.DryRun {
		return inmemorystore.New(), nil
	}
	store, err := sqlitestore.Open(ctx, filepath.Join(lay.BaseDir, sqlitestore.FileName), runID, a.cfg.Subjects)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) tracerProvider(runID string) (trace.TracerProvider, func(context.Context) error, error) {
	if a.cfg.TraceFile == "" {
		return telemetry.NewTracerProvider(nil, "connectome", runID, a.logger)
	}
	f, err := os.Create(a.cfg.TraceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	tp, shutdown, err := telemetry.NewTracerProvider(f, "connectome", runID, a.logger)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return tp, func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), f.Close())
	}, nil
}

func writeGraphs(dir string, wf *workflow.Workflow, plan *workflow.Plan) error {
	for _, g := range []struct {
		name  string
		write func(*os.File) error
	}{
		{GraphFile, func(f *os.File) error { return wf.WriteDOT(f) }},
		{DetailedGraphFile, func(f *os.File) error { return plan.WriteDOT(f) }},
	} {
		f, err := os.Create(filepath.Join(dir, g.name))
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", g.name, err)
		}
		werr := g.write(f)
		if err := errors.Join(werr, f.Close()); err != nil {
			return fmt.Errorf("failed to write %s: %w", g.name, err)
		}
	}
	return nil
}
