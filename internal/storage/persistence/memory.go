// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhangyunhao116/skipmap"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

type itemMap = skipmap.FuncMap[string, core.Record]

func newItemMap() *itemMap {
	return skipmap.NewFunc[string, core.Record](func(a, b string) bool {
		return a < b
	})
}

// MemoryBackend keeps tables in process. It is the default adapter for local runs
// and the reference backend for tests. Records are deep-copied on the way in and
// out so callers never share state with the store.
type MemoryBackend struct {
	keyField     string
	pollInterval time.Duration

	mu     sync.RWMutex
	tables map[string]*itemMap

	batchWrites atomic.Int64
}

// NewMemoryBackend creates an empty store. keyField names the record field holding
// the item key; empty means core.DefaultKeyField.
func NewMemoryBackend(keyField string) *MemoryBackend {
	if keyField == "" {
		keyField = core.DefaultKeyField
	}
	return &MemoryBackend{
		keyField:     keyField,
		pollInterval: defaultPollInterval,
		tables:       make(map[string]*itemMap),
	}
}

func (m *MemoryBackend) table(name string) (*itemMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("memory: %w: %s", ErrNoSuchTable, name)
	}
	return t, nil
}

func (m *MemoryBackend) PutItem(_ context.Context, table string, record core.Record) error {
	t, err := m.table(table)
	if err != nil {
		return err
	}
	key, err := recordKey(record, m.keyField)
	if err != nil {
		return fmt.Errorf("memory: put %s: %w", table, err)
	}
	t.Store(key, record.DeepClone())
	return nil
}

func (m *MemoryBackend) GetItem(_ context.Context, table, key string) (core.Record, bool, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, false, err
	}
	rec, ok := t.Load(key)
	if !ok {
		return nil, false, nil
	}
	return rec.DeepClone(), true, nil
}

func (m *MemoryBackend) DeleteItem(_ context.Context, table, key string) error {
	t, err := m.table(table)
	if err != nil {
		return err
	}
	t.Delete(key)
	return nil
}

// BatchWrite applies the batch table by table in operation order. Every table is
// checked before anything is written, so a missing table fails the whole call.
func (m *MemoryBackend) BatchWrite(_ context.Context, batch core.Batch) error {
	m.batchWrites.Add(1)

	names := batch.Tables()
	targets := make([]*itemMap, len(names))
	for i, name := range names {
		t, err := m.table(name)
		if err != nil {
			return fmt.Errorf("memory: batch write: %w", err)
		}
		targets[i] = t
	}

	for i, name := range names {
		for _, op := range batch[name] {
			switch op.Kind {
			case core.OpPut:
				targets[i].Store(op.Key, op.Record.DeepClone())
			case core.OpDelete:
				targets[i].Delete(op.Key)
			default:
				return fmt.Errorf("memory: batch write: unknown operation %v", op.Kind)
			}
		}
	}
	return nil
}

func (m *MemoryBackend) CreateTable(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; ok {
		return fmt.Errorf("memory: %w: table %s already exists", core.ErrTableState, name)
	}
	m.tables[name] = newItemMap()
	return nil
}

func (m *MemoryBackend) DeleteTable(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return fmt.Errorf("memory: %w: table %s does not exist", core.ErrTableState, name)
	}
	delete(m.tables, name)
	return nil
}

func (m *MemoryBackend) WaitUntilExists(ctx context.Context, name string) error {
	return pollUntil(ctx, m.pollInterval, func(context.Context) (bool, error) {
		return m.hasTable(name), nil
	})
}

func (m *MemoryBackend) WaitUntilNotExists(ctx context.Context, name string) error {
	return pollUntil(ctx, m.pollInterval, func(context.Context) (bool, error) {
		return !m.hasTable(name), nil
	})
}

func (m *MemoryBackend) hasTable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[name]
	return ok
}

// Items returns a copy of the records in table, ordered by key.
func (m *MemoryBackend) Items(table string) []core.Record {
	t, err := m.table(table)
	if err != nil {
		return nil
	}
	out := make([]core.Record, 0, t.Len())
	t.Range(func(_ string, rec core.Record) bool {
		out = append(out, rec.DeepClone())
		return true
	})
	return out
}

// BatchWrites returns how many BatchWrite calls the store has received.
func (m *MemoryBackend) BatchWrites() int64 {
	return m.batchWrites.Load()
}
