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

// Package core provides the write-coalescing storage connector.
// This file implements the flush scheduler: the state machine deciding when an
// accumulated batch is handed to the backend and when the next window opens.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/telemetry"
)

// State is the scheduler's position in its flush cycle.
type State int

const (
	// StateIdle: no timer armed, nothing pending.
	StateIdle State = iota
	// StateFlushing: a batch is being detached and dispatched. It is held only
	// under the scheduler lock and always replaced before the lock is released,
	// so State never reports it; a bulk write still in flight shows as
	// StateCooldown (or StateClosed after Close).
	StateFlushing
	// StateCooldown: the timer is armed; new operations accumulate silently.
	StateCooldown
	// StateClosed: Close was called; no operation is accepted.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFlushing:
		return "flushing"
	case StateCooldown:
		return "cooldown"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BatchWriter is the part of Backend the scheduler needs.
type BatchWriter interface {
	BatchWrite(ctx context.Context, batch Batch) error
}

const defaultFlushTimeout = 10 * time.Second

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Scheduler coalesces operations into windows of at most one bulk write each.
//
// The first operation after an idle period is flushed immediately and opens a
// cooldown of one window; operations arriving during the cooldown are flushed
// together when it ends, which re-arms the cooldown. A cooldown that ends with
// nothing pending returns the scheduler to idle.
//
// Flushes run on their own goroutines but are written to the backend in window
// order, so a later window never overtakes an earlier one.
type Scheduler struct {
	writer       BatchWriter
	window       time.Duration
	flushTimeout time.Duration
	logger       *slog.Logger
	after        afterFunc

	mu        sync.Mutex
	acc       Accumulator
	state     State
	timer     stopper
	lastFlush chan struct{}
	inflight  sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger used for flush outcomes.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFlushTimeout bounds each bulk write. Non-positive values keep the default.
func WithFlushTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

func withAfterFunc(f afterFunc) SchedulerOption {
	return func(s *Scheduler) { s.after = f }
}

// NewScheduler creates a scheduler flushing to w with the given cooldown window.
func NewScheduler(w BatchWriter, window time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		writer:       w,
		window:       window,
		flushTimeout: defaultFlushTimeout,
		logger:       slog.Default(),
		after:        realAfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue records op for table and returns the Result of the window it joined. It
// never waits for I/O. cb, if non-nil, is called once with the flush outcome.
func (s *Scheduler) Enqueue(table string, op Operation, cb Callback) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrClosed
	}
	res, first := s.acc.Enqueue(table, op, cb)
	if first && s.state == StateIdle {
		s.flushLocked()
		s.armLocked()
	}
	telemetry.SetPending(s.acc.Len())
	return res, nil
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of operations waiting for the next flush.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Len()
}

// Close stops the cooldown timer, flushes whatever is pending and waits for all
// in-flight flushes, or for ctx. Enqueue fails with ErrClosed afterwards.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateClosed {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.flushLocked()
		s.state = StateClosed
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onCooldownElapsed runs when the timer fires.
func (s *Scheduler) onCooldownElapsed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCooldown {
		// Closed while the timer callback was waiting for the lock.
		return
	}
	s.timer = nil
	if !s.flushLocked() {
		s.state = StateIdle
		return
	}
	s.armLocked()
}

// flushLocked detaches the current window and dispatches it. It reports false when
// there was nothing to flush. Caller holds s.mu.
func (s *Scheduler) flushLocked() bool {
	batch, pending := s.acc.TakeAndReset()
	if batch == nil {
		return false
	}
	s.state = StateFlushing
	telemetry.SetPending(0)

	prev := s.lastFlush
	done := make(chan struct{})
	s.lastFlush = done

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		s.flush(batch, pending)
	}()
	return true
}

// armLocked starts a cooldown window. Caller holds s.mu.
func (s *Scheduler) armLocked() {
	s.timer = s.after(s.window, s.onCooldownElapsed)
	s.state = StateCooldown
}

// flush writes one batch and completes every waiter with the shared outcome.
func (s *Scheduler) flush(batch Batch, pending *Pending) {
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()

	var puts, deletes int
	for _, ops := range batch {
		for _, op := range ops {
			if op.Kind == OpDelete {
				deletes++
			} else {
				puts++
			}
		}
	}

	id := uuid.NewString()
	start := time.Now()
	err := s.writer.BatchWrite(ctx, batch)
	elapsed := time.Since(start)

	telemetry.ObserveFlush(telemetry.FlushStats{
		Puts:     puts,
		Deletes:  deletes,
		Deduped:  pending.Deduped(),
		Waiters:  pending.Len(),
		Duration: elapsed,
		Err:      err,
	})
	if err != nil {
		s.logger.Error("batch write failed",
			"batch_id", id, "tables", len(batch), "puts", puts, "deletes", deletes,
			"waiters", pending.Len(), "duration", elapsed, "error", err)
	} else {
		s.logger.Debug("batch written",
			"batch_id", id, "tables", len(batch), "puts", puts, "deletes", deletes,
			"waiters", pending.Len(), "deduped", pending.Deduped(), "duration", elapsed)
	}

	pending.complete(err)
}
