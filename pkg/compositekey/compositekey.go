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

// Package compositekey splits the opaque item keys used by the storage connector
// into a routing namespace (the table) and a local id.
//
// A composite key is "<namespace><local-id>" where the namespace has a fixed,
// configured width. Splitting is purely positional: there is no delimiter and no
// validation of the characters involved.
package compositekey

// DefaultWidth is the namespace width used when none is configured.
const DefaultWidth = 6

// Split returns the first width bytes of key as the namespace and the remainder as
// the local id. Split never fails: a key shorter than width yields the whole key as
// namespace and an empty local id. A non-positive width yields an empty namespace.
//
// width counts bytes, not runes: a multi-byte UTF-8 character straddling the
// boundary is cut in two, leaving both parts invalid UTF-8. Join still restores
// the original key exactly.
func Split(key string, width int) (namespace, localID string) {
	if width <= 0 {
		return "", key
	}
	if len(key) <= width {
		return key, ""
	}
	return key[:width], key[width:]
}

// Join is the inverse of Split for well-formed parts.
func Join(namespace, localID string) string {
	return namespace + localID
}

// Codec binds a namespace width so call sites don't have to carry it around.
type Codec struct {
	Width int
}

// New returns a Codec for the given width, falling back to DefaultWidth when width
// is not positive.
func New(width int) Codec {
	if width <= 0 {
		width = DefaultWidth
	}
	return Codec{Width: width}
}

func (c Codec) Split(key string) (namespace, localID string) {
	return Split(key, c.Width)
}

func (c Codec) Join(namespace, localID string) string {
	return Join(namespace, localID)
}

// Valid reports whether key carries a full namespace and a non-empty local id.
// Split itself does not consult it.
func (c Codec) Valid(key string) bool {
	return len(key) > c.Width
}
