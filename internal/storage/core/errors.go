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

import "errors"

// Error taxonomy for the connector.
//
//   - ErrConfiguration: a required option is missing or invalid. Returned by
//     NewConnector before any backend call; never recovered.
//   - ErrNotFound: an item is absent. Reads translate it into a (nil, nil) result,
//     so it is only visible to backend implementations that choose to use it.
//   - ErrTableState: create/delete table against a table already in (or not in) the
//     requested state. Returned to the caller; the connector keeps working.
//   - ErrClosed: the connector was closed and accepts no more writes.
//
// Any other backend failure is passed to the caller unchanged. For batched writes
// every callback of the failed batch receives the same error value.
var (
	ErrConfiguration = errors.New("storage connector: invalid configuration")
	ErrNotFound      = errors.New("storage connector: item not found")
	ErrTableState    = errors.New("storage connector: table state conflict")
	ErrClosed        = errors.New("storage connector: closed")
)
