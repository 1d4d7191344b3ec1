package workflow

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/vk/connectome/internal/dag"
	"github.com/zclconf/go-cty/cty"
)

// Param is the value an instance takes on one iteration axis.
type Param struct {
	// Axis identifies the iterated node and field, e.g. "infosource.subject_id".
	Axis  string
	Field string
	Value cty.Value
	Index int
}

// Link feeds one upstream instance output into an input.
type Link struct {
	SrcID     string
	SrcOutput string
	DstInput  string
	// JoinIndex is the position in the joined list, or -1 for plain links.
	JoinIndex int
}

// Instance is one concrete execution of a node.
type Instance struct {
	ID         string
	Node       string
	Tool       string
	Inputs     map[string]cty.Value
	Links      []Link
	MapFields  []string
	JoinFields []string
	Params     []Param
	Deps       []string
}

// Param returns the value of the iterated field, searching all axes.
func (i *Instance) Param(field string) (cty.Value, bool) {
	for _, p := range i.Params {
		if p.Field == field {
			return p.Value, true
		}
	}
	return cty.NilVal, false
}

// IsJoinField reports whether input receives a joined list.
func (i *Instance) IsJoinField(input string) bool {
	for _, f := range i.JoinFields {
		if f == input {
			return true
		}
	}
	return false
}

// Plan is an expanded workflow.
type Plan struct {
	Root      string
	Instances []*Instance
	byID      map[string]*Instance
}

// Instance looks up an instance by ID.
func (p *Plan) Instance(id string) (*Instance, bool) {
	inst, ok := p.byID[id]
	return inst, ok
}

// Graph returns the dependency graph of the instances.
func (p *Plan) Graph() (*dag.Graph, error) {
	g := dag.New()
	for _, inst := range p.Instances {
		g.AddNode(inst.ID)
	}
	for _, inst := range p.Instances {
		for _, dep := range inst.Deps {
			if err := g.AddEdge(dep, inst.ID); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

type flatNode struct {
	full string
	path []string
	node *Node
	join string
}

type built struct {
	nodes   []*flatNode
	byName  map[string]*flatNode
	edges   []Edge
	inbound map[string][]Edge
	order   []string
}

func (w *Workflow) flatten(prefix []string, b *built, errs *[]error) {
	*errs = append(*errs, w.errs...)
	for _, name := range w.order {
		if n, ok := w.nodes[name]; ok {
			segs := append(append([]string(nil), prefix...), name)
			fn := &flatNode{full: strings.Join(segs, "."), path: prefix, node: n}
			b.nodes = append(b.nodes, fn)
			b.byName[fn.full] = fn
			continue
		}
		sub := w.subs[name]
		sub.flatten(append(append([]string(nil), prefix...), name), b, errs)
	}
	qualify := func(name string) string {
		if len(prefix) == 0 {
			return name
		}
		return strings.Join(prefix, ".") + "." + name
	}
	for _, e := range w.edges {
		b.edges = append(b.edges, Edge{Src: qualify(e.Src), Output: e.Output, Dst: qualify(e.Dst), Input: e.Input})
	}
	for _, name := range w.order {
		n, ok := w.nodes[name]
		if !ok || n.Join == nil {
			continue
		}
		b.byName[qualify(name)].join = qualify(n.Join.Source)
	}
}

func (w *Workflow) build() (*built, error) {
	b := &built{byName: make(map[string]*flatNode), inbound: make(map[string][]Edge)}
	var errs []error
	w.flatten(nil, b, &errs)

	g := dag.New()
	for _, fn := range b.nodes {
		g.AddNode(fn.full)
	}

	feeds := make(map[string]Edge)
	for _, e := range b.edges {
		src, srcOK := b.byName[e.Src]
		dst, dstOK := b.byName[e.Dst]
		if !srcOK {
			errs = append(errs, fmt.Errorf("connection %s.%s -> %s.%s: unknown source node '%s'", e.Src, e.Output, e.Dst, e.Input, e.Src))
		}
		if !dstOK {
			errs = append(errs, fmt.Errorf("connection %s.%s -> %s.%s: unknown destination node '%s'", e.Src, e.Output, e.Dst, e.Input, e.Dst))
		}
		if !srcOK || !dstOK {
			continue
		}
		key := e.Dst + "." + e.Input
		if prev, dup := feeds[key]; dup {
			errs = append(errs, fmt.Errorf("input '%s' of '%s' is fed by both '%s.%s' and '%s.%s'", e.Input, e.Dst, prev.Src, prev.Output, e.Src, e.Output))
			continue
		}
		feeds[key] = e
		if _, static := dst.node.Inputs[e.Input]; static {
			errs = append(errs, fmt.Errorf("input '%s' of '%s' is both set and connected", e.Input, e.Dst))
		}
		for _, it := range dst.node.Iterables {
			if it.Field == e.Input {
				errs = append(errs, fmt.Errorf("input '%s' of '%s' is both iterated and connected", e.Input, e.Dst))
			}
		}
		if err := g.AddEdge(src.full, dst.full); err != nil {
			errs = append(errs, err)
			continue
		}
		b.inbound[e.Dst] = append(b.inbound[e.Dst], e)
	}

	for _, fn := range b.nodes {
		if fn.join == "" {
			continue
		}
		source, ok := b.byName[fn.join]
		if !ok {
			errs = append(errs, fmt.Errorf("join node '%s': unknown join source '%s'", fn.full, fn.join))
			continue
		}
		if len(source.node.Iterables) == 0 {
			errs = append(errs, fmt.Errorf("join node '%s': join source '%s' has no iterables", fn.full, fn.join))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	b.order = order
	return b, nil
}

// Validate reports structural errors: invalid or duplicate names, unknown
// nodes in connections, inputs fed twice, bad join sources and cycles.
func (w *Workflow) Validate() error {
	_, err := w.build()
	return err
}

type axis struct {
	key    string
	field  string
	values []cty.Value
	rank   int
}

// Expand flattens the workflow and replicates nodes over their iterables.
func (w *Workflow) Expand() (*Plan, error) {
	b, err := w.build()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Root: w.Name, byID: make(map[string]*Instance)}
	axesOf := make(map[string][]*axis)
	instancesOf := make(map[string][]*Instance)
	ownAxes := make(map[string][]*axis)
	rank := 0

	for _, name := range b.order {
		fn := b.byName[name]

		for _, it := range fn.node.Iterables {
			ownAxes[name] = append(ownAxes[name], &axis{
				key:    name + "." + it.Field,
				field:  it.Field,
				values: it.Values,
				rank:   rank,
			})
			rank++
		}

		joined := make(map[string]bool)
		if fn.join != "" {
			for _, a := range ownAxes[fn.join] {
				joined[a.key] = true
			}
		}

		inherited := make(map[string]*axis)
		for _, e := range b.inbound[name] {
			for _, a := range axesOf[e.Src] {
				inherited[a.key] = a
			}
		}
		for key := range joined {
			if _, ok := inherited[key]; !ok {
				return nil, fmt.Errorf("join node '%s': join source '%s' is not upstream", name, fn.join)
			}
		}

		var axes []*axis
		for key, a := range inherited {
			if !joined[key] {
				axes = append(axes, a)
			}
		}
		sort.Slice(axes, func(i, j int) bool { return axes[i].rank < axes[j].rank })
		axes = append(axes, ownAxes[name]...)
		axesOf[name] = axes

		for _, combo := range product(axes) {
			inst := newInstance(plan.Root, fn, axes, combo)
			if err := link(inst, fn, b.inbound[name], instancesOf, joined); err != nil {
				return nil, err
			}
			if _, dup := plan.byID[inst.ID]; dup {
				return nil, fmt.Errorf("two instances share the ID '%s'", inst.ID)
			}
			plan.byID[inst.ID] = inst
			plan.Instances = append(plan.Instances, inst)
			instancesOf[name] = append(instancesOf[name], inst)
		}
	}
	return plan, nil
}

// product returns the value index combinations of axes, last axis fastest.
// No axes yield a single empty combination.
func product(axes []*axis) [][]int {
	combos := [][]int{{}}
	for _, a := range axes {
		var next [][]int
		for _, c := range combos {
			for i := range a.values {
				next = append(next, append(append([]int(nil), c...), i))
			}
		}
		combos = next
	}
	return combos
}

func newInstance(root string, fn *flatNode, axes []*axis, combo []int) *Instance {
	inst := &Instance{
		Node:      fn.full,
		Tool:      fn.node.Tool,
		Inputs:    make(map[string]cty.Value, len(fn.node.Inputs)),
		MapFields: append([]string(nil), fn.node.MapFields...),
	}
	if fn.node.Join != nil {
		inst.JoinFields = append([]string(nil), fn.node.Join.Fields...)
	}
	for k, v := range fn.node.Inputs {
		inst.Inputs[k] = v
	}

	firstOwn := len(axes) - len(fn.node.Iterables)
	segments := []string{root}
	for i, a := range axes {
		p := Param{Axis: a.key, Field: a.field, Value: a.values[combo[i]], Index: combo[i]}
		inst.Params = append(inst.Params, p)
		segments = append(segments, "_"+a.field+"_"+renderValue(p.Value))
		if i >= firstOwn {
			inst.Inputs[a.field] = p.Value
		}
	}
	segments = append(segments, fn.path...)
	segments = append(segments, fn.node.Name)
	inst.ID = path.Join(segments...)
	return inst
}

func renderValue(v cty.Value) string {
	var s string
	switch {
	case v.IsNull():
		s = "null"
	case v.Type() == cty.String:
		s = v.AsString()
	case v.Type() == cty.Number:
		s = v.AsBigFloat().Text('f', -1)
	case v.Type() == cty.Bool:
		s = fmt.Sprintf("%t", v.True())
	default:
		s = v.GoString()
	}
	return strings.NewReplacer("/", "_", " ", "_").Replace(s)
}

func link(inst *Instance, fn *flatNode, inbound []Edge, instancesOf map[string][]*Instance, joined map[string]bool) error {
	mine := make(map[string]int, len(inst.Params))
	for _, p := range inst.Params {
		mine[p.Axis] = p.Index
	}
	deps := make(map[string]bool)

	for _, e := range inbound {
		var matches []*Instance
		carriesJoin := false
		for _, src := range instancesOf[e.Src] {
			ok := true
			for _, p := range src.Params {
				if joined[p.Axis] {
					carriesJoin = true
					continue
				}
				if idx, has := mine[p.Axis]; !has || idx != p.Index {
					ok = false
					break
				}
			}
			if ok {
				matches = append(matches, src)
			}
		}

		if carriesJoin {
			if !inst.IsJoinField(e.Input) {
				return fmt.Errorf("join node '%s': input '%s' receives the joined iteration but is not a join field", fn.full, e.Input)
			}
			for k, src := range matches {
				inst.Links = append(inst.Links, Link{SrcID: src.ID, SrcOutput: e.Output, DstInput: e.Input, JoinIndex: k})
				deps[src.ID] = true
			}
			continue
		}

		if len(matches) != 1 {
			return fmt.Errorf("instance '%s': expected one upstream instance of '%s', found %d", inst.ID, e.Src, len(matches))
		}
		inst.Links = append(inst.Links, Link{SrcID: matches[0].ID, SrcOutput: e.Output, DstInput: e.Input, JoinIndex: -1})
		deps[matches[0].ID] = true
	}

	for id := range deps {
		inst.Deps = append(inst.Deps, id)
	}
	sort.Strings(inst.Deps)
	return nil
}
