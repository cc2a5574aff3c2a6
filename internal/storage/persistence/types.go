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

// Package persistence provides the remote store adapters behind the storage
// connector: an in-process memory store, Redis and DynamoDB.
//
// Every adapter implements core.Backend. Reads report a missing item with
// found=false; create/delete table conflicts wrap core.ErrTableState; item writes
// against a table that does not exist wrap ErrNoSuchTable. Nothing here retries.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoSuchTable is returned by item operations against a table that was never
// created (or was deleted).
var ErrNoSuchTable = errors.New("table does not exist")

const defaultPollInterval = 100 * time.Millisecond

// pollUntil calls cond every interval until it reports true, returns an error, or
// ctx is done. The first check runs immediately.
func pollUntil(ctx context.Context, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("wait for table state: %w", ctx.Err())
		}
	}
}

// recordKey extracts the local id stored under keyField.
func recordKey(record map[string]any, keyField string) (string, error) {
	v, ok := record[keyField]
	if !ok {
		return "", fmt.Errorf("record has no %q field", keyField)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("record field %q is %T, want string", keyField, v)
	}
	return s, nil
}
