package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of every tool the
// pipelines may invoke.
type Model struct {
	Tools map[string]*ToolDefinition
}

// ToolDefinition is the format-agnostic representation of a `runner` manifest.
// A tool is either an external command (Command is set) or a Go handler bound
// through Lifecycle, or a passthrough that republishes its inputs.
type ToolDefinition struct {
	Type        string
	Description string
	Source      string
	Lifecycle   *Lifecycle
	Command     hcl.Expression
	Env         hcl.Expression
	Stdout      hcl.Expression
	Passthrough bool
	Inputs      map[string]*InputDefinition
	Outputs     map[string]*OutputDefinition
}

// IsCommand reports whether the tool is executed as an external process.
func (d *ToolDefinition) IsCommand() bool {
	return d.Command != nil
}

// Lifecycle maps a tool's events to Go handler names.
type Lifecycle struct {
	OnRun string
}

// InputDefinition defines a single input of a tool.
type InputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// OutputDefinition defines a single output of a tool. Value is evaluated
// before a command runs so that the command line can reference it; Exists
// decides whether the engine checks the file after the run.
type OutputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Value       hcl.Expression
	Exists      hcl.Expression
}
