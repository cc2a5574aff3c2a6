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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

// RedisBackend stores each table as a Redis hash keyed by item id, with records
// encoded as protobuf Struct messages. A set acts as the table registry so that
// table lifecycle errors match what a managed key-value store reports.
//
// Key layout, with <p> = "ds:<region>:":
//
//	<p>tables       SET of table names
//	<p>t:<table>    HASH id -> proto(Struct)
type RedisBackend struct {
	client       redis.UniversalClient
	prefix       string
	keyField     string
	pollInterval time.Duration
}

// NewRedisBackend wraps client. region scopes every key so several deployments can
// share one Redis; keyField names the record field holding the item id.
func NewRedisBackend(client redis.UniversalClient, region, keyField string) *RedisBackend {
	if keyField == "" {
		keyField = core.DefaultKeyField
	}
	prefix := "ds:"
	if region != "" {
		prefix += region + ":"
	}
	return &RedisBackend{
		client:       client,
		prefix:       prefix,
		keyField:     keyField,
		pollInterval: defaultPollInterval,
	}
}

func (r *RedisBackend) registryKey() string { return r.prefix + "tables" }

func (r *RedisBackend) tableKey(name string) string { return r.prefix + "t:" + name }

// requireTables fails with ErrNoSuchTable if any of names is not registered.
func (r *RedisBackend) requireTables(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	members := make([]any, len(names))
	for i, n := range names {
		members[i] = n
	}
	present, err := r.client.SMIsMember(ctx, r.registryKey(), members...).Result()
	if err != nil {
		return fmt.Errorf("redis smismember key=%s: %w", r.registryKey(), err)
	}
	for i, ok := range present {
		if !ok {
			return fmt.Errorf("redis: %w: %s", ErrNoSuchTable, names[i])
		}
	}
	return nil
}

func (r *RedisBackend) PutItem(ctx context.Context, table string, record core.Record) error {
	if err := r.requireTables(ctx, table); err != nil {
		return err
	}
	id, err := recordKey(record, r.keyField)
	if err != nil {
		return fmt.Errorf("redis put %s: %w", table, err)
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return fmt.Errorf("redis put %s/%s: %w", table, id, err)
	}
	if err := r.client.HSet(ctx, r.tableKey(table), id, payload).Err(); err != nil {
		return fmt.Errorf("redis hset key=%s field=%s: %w", r.tableKey(table), id, err)
	}
	return nil
}

func (r *RedisBackend) GetItem(ctx context.Context, table, key string) (core.Record, bool, error) {
	payload, err := r.client.HGet(ctx, r.tableKey(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget key=%s field=%s: %w", r.tableKey(table), key, err)
	}
	record, err := decodeRecord(payload)
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s/%s: %w", table, key, err)
	}
	return record, true, nil
}

func (r *RedisBackend) DeleteItem(ctx context.Context, table, key string) error {
	if err := r.requireTables(ctx, table); err != nil {
		return err
	}
	if err := r.client.HDel(ctx, r.tableKey(table), key).Err(); err != nil {
		return fmt.Errorf("redis hdel key=%s field=%s: %w", r.tableKey(table), key, err)
	}
	return nil
}

// BatchWrite applies the batch in one MULTI/EXEC transaction. Records are encoded
// before anything is sent, so an unencodable value fails the call with no writes.
func (r *RedisBackend) BatchWrite(ctx context.Context, batch core.Batch) error {
	names := batch.Tables()
	if err := r.requireTables(ctx, names...); err != nil {
		return fmt.Errorf("redis batch write: %w", err)
	}

	type write struct {
		key, field string
		payload    []byte
		del        bool
	}
	writes := make([]write, 0, batch.Len())
	for _, name := range names {
		hash := r.tableKey(name)
		for _, op := range batch[name] {
			switch op.Kind {
			case core.OpPut:
				payload, err := encodeRecord(op.Record)
				if err != nil {
					return fmt.Errorf("redis batch write %s/%s: %w", name, op.Key, err)
				}
				writes = append(writes, write{key: hash, field: op.Key, payload: payload})
			case core.OpDelete:
				writes = append(writes, write{key: hash, field: op.Key, del: true})
			default:
				return fmt.Errorf("redis batch write: unknown operation %v", op.Kind)
			}
		}
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, w := range writes {
			if w.del {
				p.HDel(ctx, w.key, w.field)
			} else {
				p.HSet(ctx, w.key, w.field, w.payload)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis batch write ops=%d: %w", len(writes), err)
	}
	return nil
}

func (r *RedisBackend) CreateTable(ctx context.Context, name string) error {
	added, err := r.client.SAdd(ctx, r.registryKey(), name).Result()
	if err != nil {
		return fmt.Errorf("redis sadd key=%s: %w", r.registryKey(), err)
	}
	if added == 0 {
		return fmt.Errorf("redis: %w: table %s already exists", core.ErrTableState, name)
	}
	return nil
}

// DeleteTable unregisters name and drops its hash in one transaction.
func (r *RedisBackend) DeleteTable(ctx context.Context, name string) error {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.SRem(ctx, r.registryKey(), name)
		p.Del(ctx, r.tableKey(name))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete table %s: %w", name, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("redis: %w: table %s does not exist", core.ErrTableState, name)
	}
	return nil
}

func (r *RedisBackend) WaitUntilExists(ctx context.Context, name string) error {
	return pollUntil(ctx, r.pollInterval, func(ctx context.Context) (bool, error) {
		return r.tableExists(ctx, name)
	})
}

func (r *RedisBackend) WaitUntilNotExists(ctx context.Context, name string) error {
	return pollUntil(ctx, r.pollInterval, func(ctx context.Context) (bool, error) {
		ok, err := r.tableExists(ctx, name)
		return !ok, err
	})
}

func (r *RedisBackend) tableExists(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.registryKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember key=%s: %w", r.registryKey(), err)
	}
	return ok, nil
}

// encodeRecord converts a record into a protobuf Struct. Numbers become doubles,
// so integers come back as float64 from decodeRecord.
func encodeRecord(record core.Record) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any(record))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (core.Record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return core.Record(s.AsMap()), nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
