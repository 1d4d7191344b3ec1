// Package engine executes an expanded workflow plan. For every instance it
// resolves inputs from static values and upstream outputs, runs the tool
// (an external command, a Go handler or a passthrough), records outputs and
// provenance in the node store, and reuses earlier results when the inputs
// are unchanged.
package engine
