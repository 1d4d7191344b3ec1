package workflow

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Iterable is one iterated input field of a node.
type Iterable struct {
	Field  string
	Values []cty.Value
}

// Join collapses the iterables of Source into lists on Fields.
type Join struct {
	Source string
	Fields []string
}

// Node is a named use of a tool inside a workflow.
type Node struct {
	Name      string
	Tool      string
	Inputs    map[string]cty.Value
	Iterables []Iterable
	MapFields []string
	Join      *Join

	wf *Workflow
}

// Set assigns a static input value.
func (n *Node) Set(input string, value cty.Value) *Node {
	n.Inputs[input] = value
	return n
}

// Iterate replicates the node once per value of field.
func (n *Node) Iterate(field string, values ...cty.Value) *Node {
	if len(values) == 0 {
		n.wf.errorf("node '%s': iterable '%s' has no values", n.Name, field)
	}
	n.Iterables = append(n.Iterables, Iterable{Field: field, Values: values})
	return n
}

// MapOver runs the node once per element of the given list inputs.
func (n *Node) MapOver(fields ...string) *Node {
	n.MapFields = append(n.MapFields, fields...)
	return n
}

// JoinOver collapses the iterables of the source node, named relative to
// this node's workflow, into lists on fields.
func (n *Node) JoinOver(source string, fields ...string) *Node {
	n.Join = &Join{Source: source, Fields: fields}
	return n
}

// Edge connects an output of one node to an input of another. Node names
// are dotted paths relative to the workflow the edge was added to.
type Edge struct {
	Src    string
	Output string
	Dst    string
	Input  string
}

// Workflow is a named, possibly nested, graph of nodes.
type Workflow struct {
	Name string

	nodes map[string]*Node
	subs  map[string]*Workflow
	order []string
	edges []Edge
	errs  []error
}

// New creates an empty workflow.
func New(name string) *Workflow {
	w := &Workflow{
		Name:  name,
		nodes: make(map[string]*Node),
		subs:  make(map[string]*Workflow),
	}
	if err := checkName(name); err != nil {
		w.errs = append(w.errs, err)
	}
	return w
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "./ ") {
		return fmt.Errorf("invalid name %q: names must be non-empty and must not contain '.', '/' or spaces", name)
	}
	return nil
}

func (w *Workflow) errorf(format string, args ...any) {
	w.errs = append(w.errs, fmt.Errorf("workflow '%s': "+format, append([]any{w.Name}, args...)...))
}

func (w *Workflow) claim(name string) bool {
	if err := checkName(name); err != nil {
		w.errorf("%v", err)
		return false
	}
	if _, ok := w.nodes[name]; ok {
		w.errorf("duplicate node name '%s'", name)
		return false
	}
	if _, ok := w.subs[name]; ok {
		w.errorf("duplicate node name '%s'", name)
		return false
	}
	w.order = append(w.order, name)
	return true
}

// AddNode adds a node using tool. Inputs may be nil.
func (w *Workflow) AddNode(name, tool string, inputs map[string]cty.Value) *Node {
	n := &Node{Name: name, Tool: tool, Inputs: make(map[string]cty.Value), wf: w}
	for k, v := range inputs {
		n.Inputs[k] = v
	}
	if w.claim(name) {
		w.nodes[name] = n
	}
	return n
}

// Node returns a node of this workflow by local name.
func (w *Workflow) Node(name string) *Node {
	return w.nodes[name]
}

// AddWorkflow nests sub; its nodes are addressed as "<sub.Name>.<node>".
func (w *Workflow) AddWorkflow(sub *Workflow) {
	if w.claim(sub.Name) {
		w.subs[sub.Name] = sub
	}
}

// Connect feeds output of src into input of dst.
func (w *Workflow) Connect(src, output, dst, input string) {
	w.edges = append(w.edges, Edge{Src: src, Output: output, Dst: dst, Input: input})
}
