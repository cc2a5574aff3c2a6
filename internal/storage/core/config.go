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
	"fmt"
	"time"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/pkg/compositekey"
)

// DefaultKeyField is the record field the item's local id is stored under.
const DefaultKeyField = "ds_id"

// Config holds the connector options.
//
// Region and BufferTimeoutMS are required. The remaining fields fall back to
// defaults when left at zero.
type Config struct {
	Region          string `yaml:"region"`
	BufferTimeoutMS int    `yaml:"buffer_timeout_ms"`
	NamespaceWidth  int    `yaml:"namespace_width"`
	KeyField        string `yaml:"key_field"`
	FlushTimeoutMS  int    `yaml:"flush_timeout_ms"`
}

// DefaultConfig returns a Config with every optional field set. Region and
// BufferTimeoutMS are left empty and must be provided.
func DefaultConfig() Config {
	return Config{
		NamespaceWidth: compositekey.DefaultWidth,
		KeyField:       DefaultKeyField,
		FlushTimeoutMS: int(defaultFlushTimeout / time.Millisecond),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Region != "" {
		c.Region = source.Region
	}
	if source.BufferTimeoutMS != 0 {
		c.BufferTimeoutMS = source.BufferTimeoutMS
	}
	if source.NamespaceWidth != 0 {
		c.NamespaceWidth = source.NamespaceWidth
	}
	if source.KeyField != "" {
		c.KeyField = source.KeyField
	}
	if source.FlushTimeoutMS != 0 {
		c.FlushTimeoutMS = source.FlushTimeoutMS
	}
}

// Validate reports a wrapped ErrConfiguration for missing or invalid options.
func (c Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("%w: region is required", ErrConfiguration)
	}
	if c.BufferTimeoutMS <= 0 {
		return fmt.Errorf("%w: buffer timeout must be > 0, got %dms", ErrConfiguration, c.BufferTimeoutMS)
	}
	if c.NamespaceWidth < 0 {
		return fmt.Errorf("%w: namespace width must be >= 0, got %d", ErrConfiguration, c.NamespaceWidth)
	}
	if c.FlushTimeoutMS < 0 {
		return fmt.Errorf("%w: flush timeout must be >= 0, got %dms", ErrConfiguration, c.FlushTimeoutMS)
	}
	return nil
}

// BufferTimeout is the cooldown window between flushes.
func (c Config) BufferTimeout() time.Duration {
	return time.Duration(c.BufferTimeoutMS) * time.Millisecond
}

// FlushTimeout bounds a single bulk write.
func (c Config) FlushTimeout() time.Duration {
	if c.FlushTimeoutMS <= 0 {
		return defaultFlushTimeout
	}
	return time.Duration(c.FlushTimeoutMS) * time.Millisecond
}

func (c Config) keyField() string {
	if c.KeyField == "" {
		return DefaultKeyField
	}
	return c.KeyField
}
