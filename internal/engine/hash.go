package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/workflow"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hash identifies an instance's work: the tool, its manifest, the resolved
// inputs, the working directory and the hashes of its upstream instances.
// Input files contribute their size and modification time. Folding in the
// upstream hashes makes a re-run instance invalidate everything below it,
// including nodes that only receive a subject ID or the SUBJECTS_DIR.
func (e *Engine) hash(inst *workflow.Instance, def *config.ToolDefinition, inputs map[string]cty.Value, dir string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "tool=%s\nsource=%s\ndir=%s\n", def.Type, def.Source, dir)

	// Deps is sorted by expansion.
	for _, dep := range inst.Deps {
		upstream, ok := e.hashes.Load(dep)
		if !ok {
			return "", fmt.Errorf("no hash recorded for upstream instance %s of %s", dep, inst.ID)
		}
		fmt.Fprintf(h, "dep %s=%s\n", dep, upstream)
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := inputs[name]
		var encoded []byte
		if v.IsNull() {
			encoded = []byte("null")
		} else {
			var err error
			encoded, err = ctyjson.Marshal(v, v.Type())
			if err != nil {
				return "", fmt.Errorf("failed to hash input '%s' of %s: %w", name, inst.ID, err)
			}
		}
		fmt.Fprintf(h, "input %s=%s\n", name, encoded)

		var paths []string
		collectPaths(v, &paths)
		for _, p := range paths {
			if !filepath.IsAbs(p) {
				continue
			}
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				fmt.Fprintf(h, "file %s size=%d mtime=%d\n", p, info.Size(), info.ModTime().UnixNano())
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// outputsPresent reports whether every absolute file path among the outputs
// that are expected to exist is still on disk.
func outputsPresent(def *config.ToolDefinition, outputs cty.Value) bool {
	if outputs.IsNull() || !outputs.Type().IsObjectType() {
		return false
	}
	for name, od := range def.Outputs {
		if od.Exists != nil || !outputs.Type().HasAttribute(name) {
			continue
		}
		var paths []string
		collectPaths(outputs.GetAttr(name), &paths)
		for _, p := range paths {
			if !filepath.IsAbs(p) || strings.TrimSpace(p) == "" {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				return false
			}
		}
	}
	return true
}
