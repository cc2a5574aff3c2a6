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

// Package api exposes a storage connector over HTTP.
//
// Item writes are acknowledged with 202 once queued; pass ?wait=true to block until
// the batch carrying the write has been flushed, or ?direct=true to skip batching
// and write the single item straight to the backend. Table administration waits for the
// backend by default; pass ?wait=false to return as soon as the request is accepted.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/telemetry"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// Store is the part of *core.Connector the server drives.
type Store interface {
	Get(ctx context.Context, key string) (any, error)
	Set(key string, value any, cb core.Callback) (*core.Result, error)
	Delete(key string, cb core.Callback) (*core.Result, error)
	SetNow(ctx context.Context, key string, value any) error
	DeleteNow(ctx context.Context, key string) error
	CreateTable(ctx context.Context, name string, wait bool) error
	DeleteTable(ctx context.Context, name string, wait bool) error
	State() core.State
	Config() core.Config
}

// Server handles HTTP requests against a Store.
type Server struct {
	store      Store
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a server over store. A nil logger means slog.Default().
func NewServer(store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Router builds the chi router with every route registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/items/{key}", func(r chi.Router) {
		r.Get("/", s.handleGet)
		r.Put("/", s.handleSet)
		r.Delete("/", s.handleDelete)
	})
	r.Route("/tables/{name}", func(r chi.Router) {
		r.Put("/", s.handleCreateTable)
		r.Delete("/", s.handleDeleteTable)
	})
	return r
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("storage connector api listening", "addr", addr)
}

// Stop shuts the HTTP server down, waiting for in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), newErrorResponse(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTableState):
		return http.StatusConflict
	case errors.Is(err, core.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// boolParam reads a boolean query parameter, falling back to def when it is absent
// or malformed.
func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := s.store.Config()
	s.writeJSON(w, http.StatusOK, Response{Status: StatusOK, Value: Health{
		State:           s.store.State().String(),
		Region:          cfg.Region,
		BufferTimeoutMS: cfg.BufferTimeoutMS,
		Metrics:         telemetry.Enabled(),
	}})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if v == nil {
		s.writeJSON(w, http.StatusNotFound, Response{Status: StatusError, Error: "not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Value: v})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var value any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&value); err != nil {
		s.writeJSON(w, http.StatusBadRequest, Response{Status: StatusError, Error: "invalid JSON body: " + err.Error()})
		return
	}
	if value == nil {
		s.writeJSON(w, http.StatusBadRequest, Response{Status: StatusError, Error: "value must not be null"})
		return
	}

	if boolParam(r, "direct", false) {
		s.finishDirect(w, s.store.SetNow(r.Context(), key, value))
		return
	}
	res, err := s.store.Set(key, value, nil)
	s.finishWrite(w, r, res, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if boolParam(r, "direct", false) {
		s.finishDirect(w, s.store.DeleteNow(r.Context(), key))
		return
	}
	res, err := s.store.Delete(key, nil)
	s.finishWrite(w, r, res, err)
}

func (s *Server) finishDirect(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Status: StatusSuccess})
}

func (s *Server) finishWrite(w http.ResponseWriter, r *http.Request, res *core.Result, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !boolParam(r, "wait", false) {
		s.writeJSON(w, http.StatusAccepted, Response{Status: StatusAccepted})
		return
	}
	if err := res.Wait(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Status: StatusSuccess})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.CreateTable(r.Context(), name, boolParam(r, "wait", true)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, Response{Status: StatusSuccess, Value: name})
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteTable(r.Context(), name, boolParam(r, "wait", true)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Value: name})
}
