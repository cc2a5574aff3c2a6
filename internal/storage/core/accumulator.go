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

package core

// opKey identifies the slot an operation occupies in the current window. Puts and
// deletes for the same item live in separate slots.
type opKey struct {
	table string
	kind  OpKind
	key   string
}

// Accumulator collects the operations of the current flush window together with
// their callbacks.
//
// It is not safe for concurrent use; Scheduler serializes all access under its
// mutex.
type Accumulator struct {
	batch    Batch
	slots    map[opKey]int
	pending  *Pending
	replaced int
}

// Enqueue records op for table and registers cb. A later operation of the same kind
// for the same key replaces the earlier one at its original position; cb is
// appended either way. If that position sits before an operation of the other
// kind for the same key, the other operation is dropped so the batch still ends
// with the caller's last write. first reports whether this is the first operation
// since the last TakeAndReset.
func (a *Accumulator) Enqueue(table string, op Operation, cb Callback) (res *Result, first bool) {
	if a.batch == nil {
		first = true
		a.batch = make(Batch)
		a.slots = make(map[opKey]int)
		a.pending = &Pending{result: newResult()}
		a.replaced = 0
	}

	k := opKey{table: table, kind: op.Kind, key: op.Key}
	if i, ok := a.slots[k]; ok {
		a.batch[table][i] = op
		a.replaced++
		a.dropShadowed(table, op, i)
	} else {
		a.slots[k] = len(a.batch[table])
		a.batch[table] = append(a.batch[table], op)
	}
	a.pending.callbacks = append(a.pending.callbacks, cb)

	return a.pending.result, first
}

// dropShadowed removes the operation of the opposite kind for op.Key when it
// follows slot i, since op now supersedes it.
func (a *Accumulator) dropShadowed(table string, op Operation, i int) {
	other := OpPut
	if op.Kind == OpPut {
		other = OpDelete
	}
	ok := opKey{table: table, kind: other, key: op.Key}
	j, found := a.slots[ok]
	if !found || j < i {
		return
	}

	ops := a.batch[table]
	ops = append(ops[:j], ops[j+1:]...)
	a.batch[table] = ops
	delete(a.slots, ok)
	for idx := j; idx < len(ops); idx++ {
		a.slots[opKey{table: table, kind: ops[idx].Kind, key: ops[idx].Key}] = idx
	}
	a.replaced++
}

// TakeAndReset detaches the current window and leaves the accumulator empty. When
// nothing is pending it returns a nil Batch and an empty Pending.
func (a *Accumulator) TakeAndReset() (Batch, *Pending) {
	if a.batch == nil {
		return nil, &Pending{}
	}
	batch, pending := a.batch, a.pending
	pending.deduped = a.replaced

	a.batch = nil
	a.slots = nil
	a.pending = nil
	a.replaced = 0

	return batch, pending
}

// Len returns the number of operations currently pending.
func (a *Accumulator) Len() int {
	return a.batch.Len()
}
