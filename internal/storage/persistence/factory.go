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

	"github.com/redis/go-redis/v9"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

// Options holds the knobs needed to build any backend. Fields that do not apply to
// the chosen adapter are ignored.
type Options struct {
	Region   string
	KeyField string

	// RedisAddr is host:port of the Redis server, required for "redis".
	RedisAddr string
	// DynamoEndpoint overrides the DynamoDB endpoint, e.g. a local emulator.
	DynamoEndpoint string
}

// BuildBackend constructs a core.Backend from a string selector.
// Supported adapters:
//   - "memory": in-process store (default)
//   - "redis": Redis hashes via go-redis
//   - "dynamodb": AWS DynamoDB using the default credential chain
//
// Backends holding network clients also implement io.Closer.
func BuildBackend(ctx context.Context, adapter string, opts Options) (core.Backend, error) {
	switch adapter {
	case "", "memory":
		return NewMemoryBackend(opts.KeyField), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("%w: redis adapter needs an address", core.ErrConfiguration)
		}
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		return NewRedisBackend(client, opts.Region, opts.KeyField), nil
	case "dynamodb":
		if opts.Region == "" {
			return nil, fmt.Errorf("%w: dynamodb adapter needs a region", core.ErrConfiguration)
		}
		client, err := NewDynamoClient(ctx, opts.Region, opts.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return NewDynamoBackend(client, opts.KeyField), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage adapter: %s", core.ErrConfiguration, adapter)
	}
}
