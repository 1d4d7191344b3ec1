// Package workflow describes processing pipelines declaratively and expands
// them into concrete node instances.
//
// A Workflow holds nodes (a named use of a tool with static inputs),
// connections from one node's output to another node's input, and nested
// sub-workflows. Three node modifiers shape the expansion:
//
//   - Iterate replicates the node and everything downstream of it once per
//     value, e.g. once per subject or once per tractography model.
//   - MapOver runs the node once per element of list inputs and collects the
//     outputs into lists. Expansion keeps a map node as one instance; the
//     engine fans it out.
//   - JoinOver collapses an upstream iteration back into one instance whose
//     join fields receive ordered lists.
//
// Expand flattens nested workflows and returns a Plan of instances in
// dependency order. Instance IDs double as work directories, e.g.
// "connectome/_subject_id_sub-01/_model_CSA/tractography".
package workflow
