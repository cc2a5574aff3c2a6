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

package api

// Status is the outcome carried by every response body.
type Status string

const (
	// StatusOK is used for health checks.
	StatusOK Status = "OK"
	// StatusSuccess marks a completed operation.
	StatusSuccess Status = "success"
	// StatusAccepted marks a write that was queued but not yet flushed.
	StatusAccepted Status = "accepted"
	// StatusError marks a failed operation.
	StatusError Status = "error"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Status Status `json:"status,omitempty"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Health is the value reported by /health.
type Health struct {
	State           string `json:"state"`
	Region          string `json:"region"`
	BufferTimeoutMS int    `json:"buffer_timeout_ms"`
	Metrics         bool   `json:"metrics"`
}

func newErrorResponse(err error) Response {
	return Response{Status: StatusError, Error: err.Error()}
}
