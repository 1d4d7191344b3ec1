package registry

import (
	"github.com/vk/connectome/internal/config"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered handlers and tool definitions for a
// single application instance.
type Registry struct {
	Handlers    map[string]*RegisteredRunner
	Definitions map[string]*config.ToolDefinition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Handlers:    make(map[string]*RegisteredRunner),
		Definitions: make(map[string]*config.ToolDefinition),
	}
}

// PopulateDefinitionsFromModel copies the loaded tool definitions from the
// config model into the registry for easy access during execution.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model) {
	for key, val := range model.Tools {
		r.Definitions[key] = val
	}
}

// Tool returns the definition of a tool and its Go handler, if it has one.
func (r *Registry) Tool(name string) (*config.ToolDefinition, *RegisteredRunner, bool) {
	def, ok := r.Definitions[name]
	if !ok {
		return nil, nil, false
	}
	if def.Lifecycle == nil {
		return def, nil, true
	}
	return def, r.Handlers[def.Lifecycle.OnRun], true
}
