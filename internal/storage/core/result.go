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

import (
	"context"
	"sync"
)

// Callback is invoked once with the outcome of the flush that carried an operation.
type Callback func(err error)

// Result is the completion of one flush window. Every operation accumulated into
// the same window shares the same Result.
type Result struct {
	done chan struct{}
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Done is closed once the window has been flushed.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err returns the flush outcome. It is nil until Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the window is flushed or ctx is done. Giving up on the wait does
// not cancel the write.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the completion side of a detached batch: the shared Result plus one
// callback per enqueue call, in call order.
type Pending struct {
	result    *Result
	callbacks []Callback
	deduped   int
	once      sync.Once
}

// Len returns the number of registered callbacks, i.e. enqueue calls.
func (p *Pending) Len() int { return len(p.callbacks) }

// Deduped returns how many operations were replaced by a later one for the same key.
func (p *Pending) Deduped() int { return p.deduped }

// complete publishes err to the Result and to every callback. Only the first call
// has any effect.
func (p *Pending) complete(err error) {
	p.once.Do(func() {
		if p.result != nil {
			p.result.err = err
			close(p.result.done)
		}
		for _, cb := range p.callbacks {
			if cb != nil {
				cb(err)
			}
		}
	})
}
