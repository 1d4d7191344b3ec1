// Package pipeline declares the connectome workflows: T1 preprocessing with
// FreeSurfer reconstruction, DWI preprocessing, subject-space parcellation
// and the top-level graph that ties them to tractography, registration and
// connectivity matrices.
//
// Builders only describe graphs. Tools are referenced by their manifest
// runner names and nothing is executed until the engine runs the expanded
// plan.
package pipeline
