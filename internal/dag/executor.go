package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vk/connectome/internal/ctxlog"
)

// RunFunc executes the work of a single node.
type RunFunc func(ctx context.Context, id string) error

// StatusFunc observes node state transitions. It is called from worker
// goroutines and must be safe for concurrent use.
type StatusFunc func(id string, status Status, err error)

// Option configures an Executor.
type Option func(*Executor)

// WithFailFast cancels all remaining work as soon as one node fails.
func WithFailFast(enabled bool) Option {
	return func(e *Executor) { e.failFast = enabled }
}

// WithStatusHook registers a callback for node state transitions.
func WithStatusHook(fn StatusFunc) Option {
	return func(e *Executor) { e.onStatus = fn }
}

// execNode is the per-run execution state of a graph node.
type execNode struct {
	id         string
	deps       []*execNode
	dependents []*execNode
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
}

// Executor runs a Graph on a bounded pool of workers.
type Executor struct {
	graph      *Graph
	numWorkers int
	run        RunFunc
	failFast   bool
	onStatus   StatusFunc

	nodes []*execNode
	wg    sync.WaitGroup
}

// NewExecutor prepares an executor for g. At least one worker is always used.
func NewExecutor(g *Graph, numWorkers int, run RunFunc, opts ...Option) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	e := &Executor{graph: g, numWorkers: numWorkers, run: run}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) prepare() {
	e.graph.mutex.RLock()
	defer e.graph.mutex.RUnlock()

	byID := make(map[string]*execNode, len(e.graph.order))
	e.nodes = make([]*execNode, 0, len(e.graph.order))
	for _, id := range e.graph.order {
		n := &execNode{id: id}
		byID[id] = n
		e.nodes = append(e.nodes, n)
	}
	for _, n := range e.nodes {
		gn := e.graph.nodes[n.id]
		for _, dep := range sortedKeys(gn.deps) {
			n.deps = append(n.deps, byID[dep])
		}
		for _, dep := range sortedKeys(gn.dependents) {
			n.dependents = append(n.dependents, byID[dep])
		}
		n.depCount.Store(int32(len(n.deps)))
	}
}

func (e *Executor) setState(n *execNode, status Status, err error) {
	n.err = err
	n.state.Store(int32(status))
	if e.onStatus != nil {
		e.onStatus(n.id, status, err)
	}
}

// Run executes the entire graph concurrently and returns an error if any node fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if err := e.graph.DetectCycles(); err != nil {
		return err
	}
	e.prepare()
	if len(e.nodes) == 0 {
		logger.Warn("No nodes found in graph, execution not required.")
		return nil
	}

	readyChan := make(chan *execNode, len(e.nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootNodeCount := 0
	for _, n := range e.nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.id)
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	var failedNodes []string
	var rootCauseError error
	for _, n := range e.nodes {
		if Status(n.state.Load()) != Failed || n.err == nil || errors.Is(n.err, context.Canceled) {
			continue
		}
		logger.Error("Node failed execution.", "nodeID", n.id, "error", n.err)
		failedNodes = append(failedNodes, n.id)
		if rootCauseError == nil {
			rootCauseError = n.err
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution interrupted: %w", err)
	}
	return nil
}

// Status returns the state of a node after (or during) Run.
func (e *Executor) Status(id string) Status {
	for _, n := range e.nodes {
		if n.id == id {
			return Status(n.state.Load())
		}
	}
	return Pending
}

// skipDependents recursively marks all downstream nodes as skipped and
// decrements the WaitGroup once per node.
func (e *Executor) skipDependents(ctx context.Context, n *execNode) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.id, "dependency", n.id)
			e.setState(dependent, Skipped, fmt.Errorf("skipped due to upstream failure of '%s'", n.id))
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *execNode, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.id)

		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				workerLogger.Warn("Context canceled, skipping node execution.")
				e.setState(n, Skipped, ctx.Err())
				e.wg.Done()
				e.skipDependents(ctx, n)
			})
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		e.setState(n, Running, nil)
		err := e.run(ctx, n.id)

		if err != nil {
			workerLogger.Debug("Node execution failed.", "error", err)
			e.setState(n, Failed, err)
			if e.failFast {
				cancel()
			}
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		e.setState(n, Done, nil)

		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.id)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
