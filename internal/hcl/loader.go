package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	builtin []fs.FS
}

// NewLoader creates a new HCL configuration loader. Manifests found in the
// builtin filesystems are loaded first; files passed to Load override tools
// with the same type.
func NewLoader(builtin ...fs.FS) *Loader {
	return &Loader{builtin: builtin}
}

// Load orchestrates the entire HCL manifest loading process.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "builtin_sources", len(l.builtin), "path_count", len(paths))

	model := &config.Model{Tools: make(map[string]*config.ToolDefinition)}
	parser := hclparse.NewParser()

	for _, fsys := range l.builtin {
		names, err := fs.Glob(fsys, "*.hcl")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list builtin manifests: %w", err)
		}
		sort.Strings(names)
		for _, name := range names {
			src, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read builtin manifest %s: %w", name, err)
			}
			if err := l.loadSource(ctx, parser, model, src, "builtin:"+name); err != nil {
				return nil, nil, err
			}
		}
	}

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read HCL file %s: %w", file, err)
		}
		if err := l.loadSource(ctx, parser, model, src, file); err != nil {
			return nil, nil, err
		}
	}

	logger.Debug("HCL loading complete.", "tools", len(model.Tools))
	return model, NewConverter(), nil
}

func (l *Loader) loadSource(ctx context.Context, parser *hclparse.Parser, model *config.Model, src []byte, name string) error {
	logger := ctxlog.FromContext(ctx)

	hclFile, diags := parser.ParseHCL(src, name)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", name, diags)
	}

	for _, runner := range root.Runners {
		def, err := l.translateToolDefinition(ctx, runner)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		def.Source = name
		if prev, exists := model.Tools[def.Type]; exists {
			logger.Debug("Tool definition overridden.", "tool", def.Type, "previous", prev.Source, "source", name)
		}
		model.Tools[def.Type] = def
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		var found []string
		if info.IsDir() {
			found, err = fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			found = []string{path}
		}

		for _, p := range found {
			if _, wasSeen := seen[p]; !wasSeen {
				allFiles = append(allFiles, p)
				seen[p] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
