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

// Package core provides the write-coalescing storage connector: the batch
// accumulator, the timer-driven flush scheduler and the public Connector facade.
// This file declares the data shapes shared with backend implementations.
package core

import (
	"context"
	"sort"
)

// Record is the storage representation of one item.
type Record map[string]any

// Clone returns a shallow copy of r. Nested maps and slices are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DeepClone returns a copy of r that shares no maps or slices with it.
func (r Record) DeepClone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).DeepClone())
	case Record:
		return t.DeepClone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// OpKind tags an Operation as a put or a delete.
type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one pending write against a table. Key is the item's local id;
// Record is only set for puts and already carries the key field.
type Operation struct {
	Kind   OpKind
	Key    string
	Record Record
}

// Batch maps a table name to the ordered operations pending against it.
type Batch map[string][]Operation

// Len returns the number of operations across all tables.
func (b Batch) Len() int {
	n := 0
	for _, ops := range b {
		n += len(ops)
	}
	return n
}

// Tables returns the table names in b, sorted.
func (b Batch) Tables() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend is the remote key-value store the connector writes to.
//
// GetItem reports a missing item with found=false and a nil error. BatchWrite
// returns a single error for the whole call; implementations do not surface
// per-item status. Wait methods block until the table reaches the target state or
// ctx is done.
type Backend interface {
	PutItem(ctx context.Context, table string, record Record) error
	GetItem(ctx context.Context, table, key string) (Record, bool, error)
	DeleteItem(ctx context.Context, table, key string) error
	BatchWrite(ctx context.Context, batch Batch) error

	CreateTable(ctx context.Context, name string) error
	DeleteTable(ctx context.Context, name string) error
	WaitUntilExists(ctx context.Context, name string) error
	WaitUntilNotExists(ctx context.Context, name string) error
}
