package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Runners []*runnerBlock `hcl:"runner,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// lifecycleBlock defines the mapping from a runner's lifecycle event to a
// registered Go handler function.
type lifecycleBlock struct {
	OnRun string `hcl:"on_run,optional"`
}

// inputBlock defines a single input variable for a runner.
type inputBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Optional    bool           `hcl:"optional,optional"`
}

// outputBlock defines a single output value produced by a runner.
type outputBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Value       hcl.Expression `hcl:"value,optional"`
	Exists      hcl.Expression `hcl:"exists,optional"`
}

// runnerBlock represents the HCL manifest for a tool.
type runnerBlock struct {
	Type        string          `hcl:"type,label"`
	Description string          `hcl:"description,optional"`
	Command     hcl.Expression  `hcl:"command,optional"`
	Env         hcl.Expression  `hcl:"env,optional"`
	Stdout      hcl.Expression  `hcl:"stdout,optional"`
	Passthrough bool            `hcl:"passthrough,optional"`
	Lifecycle   *lifecycleBlock `hcl:"lifecycle,block"`
	Inputs      []*inputBlock   `hcl:"input,block"`
	Outputs     []*outputBlock  `hcl:"output,block"`
}
