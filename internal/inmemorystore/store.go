package inmemorystore

import (
	"context"
	"sync"

	"github.com/vk/connectome/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory implementation of nodestore.Store.
//
// Live state uses sync.Map: each instance's state is written by one worker
// at a time while other workers and the status server read it. Records are
// keyed by hash and guarded by a mutex.
type Store struct {
	states  sync.Map // instance ID -> nodestore.Status
	outputs sync.Map // instance ID -> cty.Value
	errors  sync.Map // instance ID -> error

	mu      sync.Mutex
	records map[string]*nodestore.Record
}

// New creates a new, empty in-memory node state store.
func New() *Store {
	return &Store{records: make(map[string]*nodestore.Record)}
}

// SetStatus updates the execution status of a specific instance.
func (s *Store) SetStatus(ctx context.Context, id string, status nodestore.Status) error {
	s.states.Store(id, status)
	return nil
}

// GetStatus retrieves the execution status of a specific instance.
func (s *Store) GetStatus(ctx context.Context, id string) (nodestore.Status, error) {
	status, ok := s.states.Load(id)
	if !ok {
		return nodestore.StatusPending, nil
	}
	return status.(nodestore.Status), nil
}

// SetOutputs records the successful outputs of an instance.
func (s *Store) SetOutputs(ctx context.Context, id string, outputs cty.Value) error {
	s.outputs.Store(id, outputs)
	return nil
}

// GetOutputs retrieves the recorded outputs of a completed instance.
func (s *Store) GetOutputs(ctx context.Context, id string) (cty.Value, bool, error) {
	v, ok := s.outputs.Load(id)
	if !ok {
		return cty.NilVal, false, nil
	}
	return v.(cty.Value), true, nil
}

// SetError records the failure error of an instance.
func (s *Store) SetError(ctx context.Context, id string, nodeErr error) error {
	s.errors.Store(id, nodeErr)
	return nil
}

// GetError retrieves the recorded error of a failed instance.
func (s *Store) GetError(ctx context.Context, id string) (error, error) {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}

// Summary counts the instances per status.
func (s *Store) Summary(ctx context.Context) (map[nodestore.Status]int, error) {
	counts := make(map[nodestore.Status]int)
	s.states.Range(func(_, v any) bool {
		counts[v.(nodestore.Status)]++
		return true
	})
	return counts, nil
}

// Save keeps successful records for later lookups. Failed records carry no
// reusable outputs and are dropped.
func (s *Store) Save(ctx context.Context, rec *nodestore.Record) error {
	if rec == nil || !rec.Status.Succeeded() || rec.Hash == "" {
		return nil
	}
	cp := *rec
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Hash] = &cp
	return nil
}

// Lookup returns the last saved successful record for hash.
func (s *Store) Lookup(ctx context.Context, hash string) (*nodestore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[hash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ nodestore.Store = (*Store)(nil)
