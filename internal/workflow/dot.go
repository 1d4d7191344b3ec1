package workflow

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT renders the flattened declared graph in Graphviz DOT format.
// Edges are labelled "output -> input".
func (w *Workflow) WriteDOT(out io.Writer) error {
	b, err := w.build()
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "digraph %q {\n", w.Name)
	for _, name := range b.order {
		fn := b.byName[name]
		fmt.Fprintf(bw, "  %q [label=%q];\n", name, fn.full+" ("+fn.node.Tool+")")
	}
	for _, e := range b.edges {
		fmt.Fprintf(bw, "  %q -> %q [label=%q];\n", e.Src, e.Dst, e.Output+" -> "+e.Input)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// WriteDOT renders the expanded instance graph in Graphviz DOT format.
func (p *Plan) WriteDOT(out io.Writer) error {
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "digraph %q {\n", p.Root+"_expanded")
	for _, inst := range p.Instances {
		fmt.Fprintf(bw, "  %q;\n", inst.ID)
	}
	for _, inst := range p.Instances {
		for _, dep := range inst.Deps {
			fmt.Fprintf(bw, "  %q -> %q;\n", dep, inst.ID)
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
