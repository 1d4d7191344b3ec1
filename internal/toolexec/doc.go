// Package toolexec runs the external neuroimaging programs (FSL, FreeSurfer,
// dipy scripts) that implement the pipelines' scientific steps.
//
// The Executor interface has two implementations: Local, which spawns real
// processes, and Recorder, which only records the commands it is given. The
// Recorder backs dry runs and lets the full pipeline graph run in tests
// without any neuroimaging software installed.
package toolexec
