package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/dag"
	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/nodestore"
	"github.com/vk/connectome/internal/registry"
	"github.com/vk/connectome/internal/toolexec"
	"github.com/vk/connectome/internal/workflow"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/connectome/internal/engine"

// Options tune a run.
type Options struct {
	Workers  int
	FailFast bool
	// DryRun renders every command without creating directories or checking
	// outputs. Pair it with a toolexec.Recorder.
	DryRun bool
	// Cache reuses records from earlier runs with the same input hash.
	Cache bool
	RunID string
	// TracerProvider receives the run and node spans. The global provider is
	// used when nil.
	TracerProvider trace.TracerProvider
}

// Engine runs plans.
type Engine struct {
	reg    *registry.Registry
	conv   config.Converter
	store  nodestore.Store
	exec   toolexec.Executor
	layout *layout.Layout
	opts   Options
	tracer trace.Tracer

	// hashes holds the input hash of every instance started in this run,
	// keyed by instance ID.
	hashes sync.Map
}

// New creates an engine.
func New(reg *registry.Registry, conv config.Converter, store nodestore.Store, exec toolexec.Executor, lay *layout.Layout, opts Options) *Engine {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Engine{
		reg:    reg,
		conv:   conv,
		store:  store,
		exec:   exec,
		layout: lay,
		opts:   opts,
		tracer: tp.Tracer(tracerName),
	}
}

// Check verifies that every instance uses a known tool and that every
// connection names declared inputs and outputs.
func (e *Engine) Check(plan *workflow.Plan) error {
	var errs []error
	for _, inst := range plan.Instances {
		def, _, ok := e.reg.Tool(inst.Tool)
		if !ok {
			errs = append(errs, fmt.Errorf("node '%s' uses unknown tool '%s'", inst.Node, inst.Tool))
			continue
		}
		if !def.Passthrough {
			names := make([]string, 0, len(inst.Inputs)+len(inst.Links)+len(inst.MapFields))
			for name := range inst.Inputs {
				names = append(names, name)
			}
			for _, l := range inst.Links {
				names = append(names, l.DstInput)
			}
			names = append(names, inst.MapFields...)
			for _, name := range names {
				if _, ok := def.Inputs[name]; !ok {
					errs = append(errs, fmt.Errorf("node '%s': tool '%s' has no input '%s'", inst.Node, inst.Tool, name))
				}
			}
		}
		for _, l := range inst.Links {
			src, _ := plan.Instance(l.SrcID)
			srcDef, _, ok := e.reg.Tool(src.Tool)
			if !ok || srcDef.Passthrough {
				continue
			}
			if _, ok := srcDef.Outputs[l.SrcOutput]; !ok {
				errs = append(errs, fmt.Errorf("node '%s': tool '%s' has no output '%s'", src.Node, src.Tool, l.SrcOutput))
			}
		}
	}
	return dedupe(errs)
}

func dedupe(errs []error) error {
	seen := make(map[string]bool)
	var msgs []string
	for _, err := range errs {
		if !seen[err.Error()] {
			seen[err.Error()] = true
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	sort.Strings(msgs)
	out := make([]error, len(msgs))
	for i, m := range msgs {
		out[i] = errors.New(m)
	}
	return errors.Join(out...)
}

// Run executes every instance of plan, honoring dependencies.
func (e *Engine) Run(ctx context.Context, plan *workflow.Plan) error {
	logger := ctxlog.FromContext(ctx)

	if err := e.Check(plan); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	g, err := plan.Graph()
	if err != nil {
		return fmt.Errorf("failed to build instance graph: %w", err)
	}
	for _, inst := range plan.Instances {
		if err := e.store.SetStatus(ctx, inst.ID, nodestore.StatusPending); err != nil {
			return err
		}
	}

	ctx, span := e.tracer.Start(ctx, "connectome.run", trace.WithAttributes(
		attribute.String("connectome.run_id", e.opts.RunID),
		attribute.Int("connectome.instances", len(plan.Instances)),
	))
	defer span.End()

	logger.Info("🚀 Starting concurrent execution...", "instances", len(plan.Instances), "workers", e.opts.Workers, "dry_run", e.opts.DryRun)
	exec := dag.NewExecutor(g, e.opts.Workers,
		func(ctx context.Context, id string) error {
			inst, _ := plan.Instance(id)
			return e.runInstance(ctx, inst)
		},
		dag.WithFailFast(e.opts.FailFast),
		dag.WithStatusHook(func(id string, status dag.Status, err error) {
			if status != dag.Skipped {
				return
			}
			_ = e.store.SetStatus(ctx, id, nodestore.StatusSkipped)
			_ = e.store.SetError(ctx, id, err)
			inst, _ := plan.Instance(id)
			now := time.Now()
			rec := &nodestore.Record{
				RunID:      e.opts.RunID,
				InstanceID: id,
				Subject:    subjectOf(inst),
				Tool:       inst.Tool,
				Status:     nodestore.StatusSkipped,
				Started:    now,
				Finished:   now,
			}
			if err != nil {
				rec.Error = err.Error()
			}
			if saveErr := e.store.Save(ctx, rec); saveErr != nil {
				logger.Warn("Failed to save provenance record.", "node", id, "error", saveErr)
			}
		}),
	)
	runErr := exec.Run(ctx)

	summary, err := e.store.Summary(ctx)
	if err == nil {
		logger.Info("🏁 Execution finished.",
			"completed", summary[nodestore.StatusCompleted],
			"cached", summary[nodestore.StatusCached],
			"failed", summary[nodestore.StatusFailed],
			"skipped", summary[nodestore.StatusSkipped],
		)
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return runErr
}

func (e *Engine) runInstance(ctx context.Context, inst *workflow.Instance) (err error) {
	def, handler, _ := e.reg.Tool(inst.Tool)
	subject := subjectOf(inst)

	ctx = ctxlog.With(ctx, "node", inst.ID)
	logger := ctxlog.FromContext(ctx)
	ctx, span := e.tracer.Start(ctx, inst.Node, trace.WithAttributes(
		attribute.String("connectome.instance", inst.ID),
		attribute.String("connectome.tool", inst.Tool),
		attribute.String("connectome.subject", subject),
	))
	defer span.End()

	rec := &nodestore.Record{
		RunID:      e.opts.RunID,
		InstanceID: inst.ID,
		Subject:    subject,
		Tool:       inst.Tool,
		Started:    time.Now(),
	}
	defer func() {
		rec.Finished = time.Now()
		if err != nil {
			rec.Status = nodestore.StatusFailed
			rec.Error = err.Error()
			_ = e.store.SetError(ctx, inst.ID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("❌ Node failed.", "error", err)
		}
		_ = e.store.SetStatus(ctx, inst.ID, rec.Status)
		if saveErr := e.store.Save(ctx, rec); saveErr != nil {
			logger.Warn("Failed to save provenance record.", "error", saveErr)
		}
	}()

	if err := e.store.SetStatus(ctx, inst.ID, nodestore.StatusRunning); err != nil {
		return err
	}

	inputs, err := e.resolveInputs(ctx, inst, def)
	if err != nil {
		return err
	}
	dir := e.layout.InstanceDir(inst.ID)

	rec.Hash, err = e.hash(inst, def, inputs, dir)
	if err != nil {
		return err
	}
	e.hashes.Store(inst.ID, rec.Hash)
	if e.opts.Cache && !e.opts.DryRun {
		if cached, err := e.store.Lookup(ctx, rec.Hash); err != nil {
			logger.Warn("Cache lookup failed, running node.", "error", err)
		} else if cached != nil && outputsPresent(def, cached.Outputs) {
			rec.Status = nodestore.StatusCached
			rec.Outputs = cached.Outputs
			span.SetAttributes(attribute.Bool("connectome.cached", true))
			logger.Info("♻️ Reusing cached result.", "previous_run", cached.RunID)
			return e.store.SetOutputs(ctx, inst.ID, cached.Outputs)
		}
	}

	logger.Info("▶️ Running node.", "tool", inst.Tool)
	var outputs cty.Value
	if len(inst.MapFields) > 0 {
		outputs, err = e.runMapped(ctx, inst, def, handler, inputs, dir)
	} else {
		outputs, err = e.runOne(ctx, inst.ID, def, handler, inputs, dir)
	}
	if err != nil {
		return err
	}

	rec.Status = nodestore.StatusCompleted
	rec.Outputs = outputs
	logger.Debug("Node completed.")
	return e.store.SetOutputs(ctx, inst.ID, outputs)
}

// subjectOf returns the subject an instance belongs to, or "" for instances
// outside the subject iteration.
func subjectOf(inst *workflow.Instance) string {
	if v, ok := inst.Param("subject_id"); ok && v.Type().Equals(cty.String) && !v.IsNull() {
		return v.AsString()
	}
	return ""
}

// runOne executes a single (possibly mapped) unit of work.
func (e *Engine) runOne(ctx context.Context, id string, def *config.ToolDefinition, handler *registry.RegisteredRunner, inputs map[string]cty.Value, dir string) (cty.Value, error) {
	switch {
	case def.Passthrough:
		return objectOf(inputs), nil
	case def.IsCommand():
		return e.runCommand(ctx, id, def, inputs, dir)
	default:
		return e.runHandler(ctx, id, def, handler, inputs, dir)
	}
}

// runMapped runs the tool once per element of the zipped map fields, each in
// `<dir>/mapflow/_<node><i>`, and collects every output into a list.
func (e *Engine) runMapped(ctx context.Context, inst *workflow.Instance, def *config.ToolDefinition, handler *registry.RegisteredRunner, inputs map[string]cty.Value, dir string) (cty.Value, error) {
	elements := make(map[string][]cty.Value, len(inst.MapFields))
	n := -1
	for _, field := range inst.MapFields {
		v := inputs[field]
		if v.IsNull() || !v.CanIterateElements() {
			return cty.NilVal, fmt.Errorf("map field '%s' must be a list, got %s", field, v.Type().FriendlyName())
		}
		var items []cty.Value
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			items = append(items, ev)
		}
		if n >= 0 && len(items) != n {
			return cty.NilVal, fmt.Errorf("map fields have different lengths: '%s' has %d, expected %d", field, len(items), n)
		}
		n = len(items)
		elements[field] = items
	}

	name := path.Base(inst.ID)
	results := make([]cty.Value, n)
	for i := 0; i < n; i++ {
		sub := make(map[string]cty.Value, len(inputs))
		for k, v := range inputs {
			sub[k] = v
		}
		for field, items := range elements {
			v, err := convertInput(field, items[i], def.Inputs[field])
			if err != nil {
				return cty.NilVal, err
			}
			sub[field] = v
		}
		subID := fmt.Sprintf("%s/mapflow/_%s%d", inst.ID, name, i)
		subDir := filepath.Join(dir, "mapflow", fmt.Sprintf("_%s%d", name, i))
		out, err := e.runOne(ctx, subID, def, handler, sub, subDir)
		if err != nil {
			return cty.NilVal, fmt.Errorf("map item %d: %w", i, err)
		}
		results[i] = out
	}

	collected := make(map[string][]cty.Value)
	for name := range def.Outputs {
		collected[name] = make([]cty.Value, n)
	}
	for i, out := range results {
		for name := range collected {
			v, err := outputAttr(out, name)
			if err != nil {
				return cty.NilVal, err
			}
			collected[name][i] = v
		}
	}
	obj := make(map[string]cty.Value, len(collected))
	for name, list := range collected {
		if len(list) == 0 {
			obj[name] = cty.EmptyTupleVal
			continue
		}
		obj[name] = cty.TupleVal(list)
	}
	return objectOf(obj), nil
}

func (e *Engine) runHandler(ctx context.Context, id string, def *config.ToolDefinition, handler *registry.RegisteredRunner, inputs map[string]cty.Value, dir string) (cty.Value, error) {
	if handler == nil {
		return cty.NilVal, fmt.Errorf("tool '%s' has no registered handler", def.Type)
	}
	input := handler.NewInput()
	if err := e.conv.DecodeValues(ctx, input, inputs, def.Inputs); err != nil {
		return cty.NilVal, fmt.Errorf("failed to decode inputs: %w", err)
	}
	if !e.opts.DryRun {
		if err := mkdir(dir); err != nil {
			return cty.NilVal, err
		}
	}
	env := &registry.RunEnv{
		NodeID:      id,
		WorkDir:     dir,
		SubjectsDir: e.layout.SubjectsDir,
		DryRun:      e.opts.DryRun,
		Logger:      ctxlog.FromContext(ctx),
	}
	out, err := handler.Call(ctx, env, input)
	if err != nil {
		return cty.NilVal, err
	}
	val, err := e.conv.ToCtyValue(out)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to convert handler output: %w", err)
	}
	if val.IsNull() {
		return cty.EmptyObjectVal, nil
	}
	return val, nil
}
