package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// manualTimer replaces time.AfterFunc so tests decide when a cooldown ends.
type manualTimer struct {
	mu      sync.Mutex
	pending []func()
	armed   int
	stopped int
}

type manualStop struct {
	t   *manualTimer
	idx int
}

func (s manualStop) Stop() bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.pending[s.idx] == nil {
		return false
	}
	s.t.pending[s.idx] = nil
	s.t.stopped++
	return true
}

func (t *manualTimer) after(_ time.Duration, f func()) stopper {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, f)
	t.armed++
	return manualStop{t: t, idx: len(t.pending) - 1}
}

// fire runs the most recently armed callback if it has not been stopped.
func (t *manualTimer) fire() bool {
	t.mu.Lock()
	var f func()
	if n := len(t.pending); n > 0 {
		f = t.pending[n-1]
		t.pending[n-1] = nil
	}
	t.mu.Unlock()
	if f == nil {
		return false
	}
	f()
	return true
}

// fakeBackend is an in-memory Backend that records every batch it receives.
type fakeBackend struct {
	mu      sync.Mutex
	items   map[string]map[string]Record
	tables  map[string]bool
	batches []Batch

	batchErr error
	getErr   error
	gate     chan struct{}

	waitedExists    []string
	waitedNotExists []string
}

func newFakeBackend(tables ...string) *fakeBackend {
	f := &fakeBackend{
		items:  map[string]map[string]Record{},
		tables: map[string]bool{},
	}
	for _, t := range tables {
		f.tables[t] = true
	}
	return f
}

func (f *fakeBackend) PutItem(_ context.Context, table string, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(table, record[DefaultKeyField].(string), record)
	return nil
}

func (f *fakeBackend) put(table, key string, record Record) {
	if f.items[table] == nil {
		f.items[table] = map[string]Record{}
	}
	f.items[table][key] = record.Clone()
}

func (f *fakeBackend) GetItem(_ context.Context, table, key string) (Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	r, ok := f.items[table][key]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (f *fakeBackend) DeleteItem(_ context.Context, table, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[table], key)
	return nil
}

func (f *fakeBackend) BatchWrite(_ context.Context, batch Batch) error {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	for table, ops := range batch {
		for _, op := range ops {
			if op.Kind == OpPut {
				f.put(table, op.Key, op.Record)
			} else {
				delete(f.items[table], op.Key)
			}
		}
	}
	return nil
}

func (f *fakeBackend) CreateTable(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[name] {
		return ErrTableState
	}
	f.tables[name] = true
	return nil
}

func (f *fakeBackend) DeleteTable(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tables[name] {
		return ErrTableState
	}
	delete(f.tables, name)
	return nil
}

func (f *fakeBackend) WaitUntilExists(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitedExists = append(f.waitedExists, name)
	return nil
}

func (f *fakeBackend) WaitUntilNotExists(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitedNotExists = append(f.waitedNotExists, name)
	return nil
}

func (f *fakeBackend) recorded() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

func waitResult(t testing.TB, r *Result) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-r.Done():
		return r.Err()
	case <-ctx.Done():
		t.Fatalf("timed out waiting for flush")
		return nil
	}
}
