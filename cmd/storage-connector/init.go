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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

// appConfig is the full process configuration: connector options plus the knobs
// of the binary around it.
type appConfig struct {
	Connector      core.Config   `yaml:"connector"`
	Adapter        string        `yaml:"adapter"`
	RedisAddr      string        `yaml:"redis_addr"`
	DynamoEndpoint string        `yaml:"dynamodb_endpoint"`
	HTTPAddr       string        `yaml:"http_addr"`
	Tables         []string      `yaml:"tables"`
	Logger         loggerConfig  `yaml:"logger"`
	Metrics        metricsConfig `yaml:"metrics"`
}

type loggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type metricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Addr     string `yaml:"addr"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Connector: core.DefaultConfig(),
		Adapter:   "memory",
		HTTPAddr:  ":8080",
		Logger:    loggerConfig{Level: "info"},
	}
}

// loadConfig reads a YAML file over the defaults. An empty path or a missing file
// yields the defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var file appConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(&file)
	return cfg, nil
}

// merge applies non-zero values from source.
func (c *appConfig) merge(source *appConfig) {
	c.Connector.Merge(&source.Connector)
	if source.Adapter != "" {
		c.Adapter = source.Adapter
	}
	if source.RedisAddr != "" {
		c.RedisAddr = source.RedisAddr
	}
	if source.DynamoEndpoint != "" {
		c.DynamoEndpoint = source.DynamoEndpoint
	}
	if source.HTTPAddr != "" {
		c.HTTPAddr = source.HTTPAddr
	}
	if len(source.Tables) > 0 {
		c.Tables = source.Tables
	}
	if source.Logger.Level != "" {
		c.Logger.Level = source.Logger.Level
	}
	if source.Logger.JSON {
		c.Logger.JSON = true
	}
	if source.Metrics.Disabled {
		c.Metrics.Disabled = true
	}
	if source.Metrics.Addr != "" {
		c.Metrics.Addr = source.Metrics.Addr
	}
}

// parseTables splits a comma separated flag value, dropping blanks.
func parseTables(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// newLogger builds the process logger; unknown levels fall back to info.
func newLogger(cfg loggerConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
