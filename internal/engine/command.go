package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/toolexec"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// CommandLogName is written in every command node directory.
const CommandLogName = "command.log"

// runCommand renders and runs an external program. Output values are
// evaluated first so the command line can reference `output.*`.
func (e *Engine) runCommand(ctx context.Context, id string, def *config.ToolDefinition, inputs map[string]cty.Value, dir string) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	vars := map[string]cty.Value{
		"input": objectOf(inputs),
		"node": cty.ObjectVal(map[string]cty.Value{
			"id":           cty.StringVal(id),
			"name":         cty.StringVal(path.Base(id)),
			"dir":          cty.StringVal(dir),
			"subjects_dir": cty.StringVal(e.layout.SubjectsDir),
		}),
	}

	outputs := make(map[string]cty.Value, len(def.Outputs))
	for name, od := range def.Outputs {
		v, err := e.conv.Evaluate(od.Value, vars)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to evaluate output '%s': %w", name, err)
		}
		if !od.Type.Equals(cty.DynamicPseudoType) && !v.IsNull() {
			if v, err = convert.Convert(v, od.Type); err != nil {
				return cty.NilVal, fmt.Errorf("output '%s': %w", name, err)
			}
		}
		outputs[name] = v
	}
	vars["output"] = objectOf(outputs)

	cmdVal, err := e.conv.Evaluate(def.Command, vars)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to render command: %w", err)
	}
	var argv []string
	if err := flattenArgs(cmdVal, &argv); err != nil {
		return cty.NilVal, fmt.Errorf("failed to render command: %w", err)
	}
	if len(argv) == 0 {
		return cty.NilVal, fmt.Errorf("command of tool '%s' rendered empty", def.Type)
	}

	env := []string{"SUBJECTS_DIR=" + e.layout.SubjectsDir}
	if def.Env != nil {
		envVal, err := e.conv.Evaluate(def.Env, vars)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to render env: %w", err)
		}
		extra, err := renderEnv(envVal)
		if err != nil {
			return cty.NilVal, err
		}
		env = append(env, extra...)
	}

	cmd := toolexec.Command{
		Name: argv[0],
		Args: argv[1:],
		Dir:  dir,
		Env:  env,
	}
	if def.Stdout != nil {
		v, err := e.conv.Evaluate(def.Stdout, vars)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to render stdout: %w", err)
		}
		if !v.IsNull() {
			s, err := convert.Convert(v, cty.String)
			if err != nil {
				return cty.NilVal, fmt.Errorf("stdout must be a string: %w", err)
			}
			cmd.Stdout = s.AsString()
		}
	}

	expected, err := e.expectedFiles(def, vars, outputs)
	if err != nil {
		return cty.NilVal, err
	}
	cmd.Outputs = expected

	if !e.opts.DryRun {
		if err := mkdir(dir); err != nil {
			return cty.NilVal, err
		}
		cmd.LogPath = filepath.Join(dir, CommandLogName)
	}

	if err := e.exec.Run(ctx, cmd); err != nil {
		return cty.NilVal, err
	}

	if !e.opts.DryRun {
		for _, f := range expected {
			if _, err := os.Stat(f); err != nil {
				return cty.NilVal, fmt.Errorf("expected output %s was not produced by %s", f, argv[0])
			}
		}
	}
	logger.Debug("Command produced all expected outputs.", "count", len(expected))
	return objectOf(outputs), nil
}

// expectedFiles lists the absolute file paths of outputs whose `exists`
// expression is true (the default). Relative strings such as subject IDs are
// not files.
func (e *Engine) expectedFiles(def *config.ToolDefinition, vars map[string]cty.Value, outputs map[string]cty.Value) ([]string, error) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var files []string
	for _, name := range names {
		if od := def.Outputs[name]; od.Exists != nil {
			v, err := e.conv.Evaluate(od.Exists, vars)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate exists of output '%s': %w", name, err)
			}
			if !v.IsNull() {
				b, err := convert.Convert(v, cty.Bool)
				if err != nil {
					return nil, fmt.Errorf("exists of output '%s' must be a bool: %w", name, err)
				}
				if b.False() {
					continue
				}
			}
		}
		var paths []string
		collectPaths(outputs[name], &paths)
		for _, p := range paths {
			if filepath.IsAbs(p) {
				files = append(files, p)
			}
		}
	}
	return files, nil
}

// collectPaths appends every non-empty string in v.
func collectPaths(v cty.Value, out *[]string) {
	if v.IsNull() || !v.IsKnown() {
		return
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		if s := v.AsString(); s != "" {
			*out = append(*out, s)
		}
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			collectPaths(ev, out)
		}
	}
}

// flattenArgs turns a rendered command into argv. Nested lists are
// flattened; null values and empty strings are dropped.
func flattenArgs(v cty.Value, out *[]string) error {
	if v.IsNull() {
		return nil
	}
	if !v.IsKnown() {
		return fmt.Errorf("command contains an unknown value")
	}
	ty := v.Type()
	switch {
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if err := flattenArgs(ev, out); err != nil {
				return err
			}
		}
		return nil
	case ty.IsPrimitiveType():
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return err
		}
		if str := s.AsString(); str != "" {
			*out = append(*out, str)
		}
		return nil
	default:
		return fmt.Errorf("command arguments must be strings, numbers, bools or lists of them, got %s", ty.FriendlyName())
	}
}

// renderEnv converts a map or object of scalars into sorted KEY=VALUE pairs.
func renderEnv(v cty.Value) ([]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("env must be a map, got %s", ty.FriendlyName())
	}
	var env []string
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		if ev.IsNull() {
			continue
		}
		s, err := convert.Convert(ev, cty.String)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k.AsString(), err)
		}
		env = append(env, k.AsString()+"="+s.AsString())
	}
	sort.Strings(env)
	return env, nil
}

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create node directory: %w", err)
	}
	return nil
}
