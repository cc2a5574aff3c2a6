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
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/pkg/compositekey"
)

// Connector is the cache/storage facade: point reads go straight to the backend,
// writes and deletes are coalesced by a Scheduler, table administration is passed
// through.
//
// All methods are safe for concurrent use.
type Connector struct {
	cfg       Config
	keys      compositekey.Codec
	keyField  string
	backend   Backend
	codec     ValueCodec
	scheduler *Scheduler
	logger    *slog.Logger
}

// Option configures a Connector.
type Option func(*connectorOptions)

type connectorOptions struct {
	codec  ValueCodec
	logger *slog.Logger
	after  afterFunc
}

// WithValueCodec replaces the default DocumentCodec.
func WithValueCodec(c ValueCodec) Option {
	return func(o *connectorOptions) { o.codec = c }
}

// WithLogger sets the logger for the connector and its scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(o *connectorOptions) { o.logger = l }
}

func withTimer(f afterFunc) Option {
	return func(o *connectorOptions) { o.after = f }
}

// NewConnector validates cfg and builds a connector over backend. It performs no
// backend call.
func NewConnector(cfg Config, backend Backend, opts ...Option) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrConfiguration)
	}

	o := connectorOptions{codec: DocumentCodec{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = DocumentCodec{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	schedOpts := []SchedulerOption{
		WithSchedulerLogger(o.logger),
		WithFlushTimeout(cfg.FlushTimeout()),
	}
	if o.after != nil {
		schedOpts = append(schedOpts, withAfterFunc(o.after))
	}

	return &Connector{
		cfg:       cfg,
		keys:      compositekey.New(cfg.NamespaceWidth),
		keyField:  cfg.keyField(),
		backend:   backend,
		codec:     o.codec,
		scheduler: NewScheduler(backend, cfg.BufferTimeout(), schedOpts...),
		logger:    o.logger,
	}, nil
}

// Get reads key directly from the backend. A missing item yields (nil, nil).
func (c *Connector) Get(ctx context.Context, key string) (any, error) {
	table, id := c.keys.Split(key)
	record, found, err := c.backend.GetItem(ctx, table, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	record = record.Clone()
	delete(record, c.keyField)
	return c.codec.Decode(record)
}

// Set encodes value and queues it as a put. It returns once the write is recorded;
// the Result (and cb, if non-nil) complete when the batch carrying it is flushed.
func (c *Connector) Set(key string, value any, cb Callback) (*Result, error) {
	table, id := c.keys.Split(key)
	record, err := c.encode(id, value)
	if err != nil {
		return nil, err
	}
	return c.scheduler.Enqueue(table, Operation{Kind: OpPut, Key: id, Record: record}, cb)
}

// Delete queues removal of key. Completion is reported like Set.
func (c *Connector) Delete(key string, cb Callback) (*Result, error) {
	table, id := c.keys.Split(key)
	return c.scheduler.Enqueue(table, Operation{Kind: OpDelete, Key: id}, cb)
}

// SetNow writes value straight through with a single PutItem, bypassing batching.
func (c *Connector) SetNow(ctx context.Context, key string, value any) error {
	table, id := c.keys.Split(key)
	record, err := c.encode(id, value)
	if err != nil {
		return err
	}
	return c.backend.PutItem(ctx, table, record)
}

// DeleteNow removes key with a single DeleteItem, bypassing batching.
func (c *Connector) DeleteNow(ctx context.Context, key string) error {
	table, id := c.keys.Split(key)
	return c.backend.DeleteItem(ctx, table, id)
}

// CreateTable creates name. With wait set it returns only once the backend reports
// the table as existing, which can take tens of seconds on remote stores.
func (c *Connector) CreateTable(ctx context.Context, name string, wait bool) error {
	if err := c.backend.CreateTable(ctx, name); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	return c.backend.WaitUntilExists(ctx, name)
}

// DeleteTable deletes name, optionally waiting until it is gone.
func (c *Connector) DeleteTable(ctx context.Context, name string, wait bool) error {
	if err := c.backend.DeleteTable(ctx, name); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	return c.backend.WaitUntilNotExists(ctx, name)
}

// Config returns the validated configuration the connector was built with.
func (c *Connector) Config() Config {
	return c.cfg
}

// State returns the scheduler state.
func (c *Connector) State() State {
	return c.scheduler.State()
}

// Close flushes pending writes and releases the cooldown timer.
func (c *Connector) Close(ctx context.Context) error {
	c.logger.Info("closing storage connector", "pending", c.scheduler.Pending())
	return c.scheduler.Close(ctx)
}

func (c *Connector) encode(id string, value any) (Record, error) {
	record, err := c.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", id, err)
	}
	if record == nil {
		record = Record{}
	}
	record[c.keyField] = id
	return record, nil
}
