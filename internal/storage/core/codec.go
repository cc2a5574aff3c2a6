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

import "fmt"

// ValueCodec transforms application values to and from their stored form.
type ValueCodec interface {
	Encode(value any) (Record, error)
	Decode(record Record) (any, error)
}

// wrappedField holds non-object values so every stored item is a Record.
const wrappedField = "_d"

// DocumentCodec stores JSON-like objects as records field by field. Anything that
// is not a map[string]any (strings, numbers, arrays...) is wrapped under a single
// "_d" field and unwrapped again on the way out. Objects that carry a "_d" field
// of their own are wrapped as well so Decode never mistakes them for a scalar.
// Encoded records never share maps or slices with the caller's value.
type DocumentCodec struct{}

func (DocumentCodec) Encode(value any) (Record, error) {
	var obj Record
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("encode: nil value")
	case Record:
		obj = v
	case map[string]any:
		obj = Record(v)
	default:
		return Record{wrappedField: deepCopyValue(v)}, nil
	}
	if _, ok := obj[wrappedField]; ok {
		return Record{wrappedField: map[string]any(obj.DeepClone())}, nil
	}
	return obj.DeepClone(), nil
}

func (DocumentCodec) Decode(record Record) (any, error) {
	if record == nil {
		return nil, nil
	}
	if len(record) == 1 {
		if v, ok := record[wrappedField]; ok {
			return v, nil
		}
	}
	return map[string]any(record.Clone()), nil
}
