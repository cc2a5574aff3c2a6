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

// Package main runs the write-coalescing storage connector as an HTTP service.
//
// Writes received on the API are deduplicated per key and flushed to the selected
// backend in bulk: the first write after a quiet period goes out at once, later
// ones are grouped until the buffer window elapses. On shutdown the connector is
// closed first so nothing accumulated is lost.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/api"
	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/persistence"
	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file; flags override its values")
	region := flag.String("region", "", "Backend region; scopes Redis keys and selects the DynamoDB region")
	bufferTimeout := flag.Duration("buffer_timeout", 0, "Cooldown window between bulk writes (e.g. 250ms)")
	namespaceWidth := flag.Int("namespace_width", 0, "Leading key characters routed as the table name (default 6)")
	keyField := flag.String("key_field", "", "Record field holding the item id (default ds_id)")
	flushTimeout := flag.Duration("flush_timeout", 0, "Upper bound for a single bulk write (default 10s)")
	adapter := flag.String("adapter", "", "Backend: memory, redis or dynamodb")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis adapter (e.g. 127.0.0.1:6379)")
	dynamoEndpoint := flag.String("dynamodb_endpoint", "", "Override the DynamoDB endpoint, e.g. a local emulator")
	tables := flag.String("tables", "", "Comma separated tables to create (and wait for) at startup")
	httpAddr := flag.String("http_addr", "", "HTTP listen address (default :8080)")
	noMetrics := flag.Bool("no_metrics", false, "Disable Prometheus metrics collection")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, also expose /metrics on this address")
	logLevel := flag.String("log_level", "", "debug, info, warn or error")
	logJSON := flag.Bool("log_json", false, "Emit JSON logs")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg.merge(&appConfig{
		Connector: core.Config{
			Region:          *region,
			BufferTimeoutMS: int(*bufferTimeout / time.Millisecond),
			NamespaceWidth:  *namespaceWidth,
			KeyField:        *keyField,
			FlushTimeoutMS:  int(*flushTimeout / time.Millisecond),
		},
		Adapter:        *adapter,
		RedisAddr:      *redisAddr,
		DynamoEndpoint: *dynamoEndpoint,
		HTTPAddr:       *httpAddr,
		Tables:         parseTables(*tables),
		Logger:         loggerConfig{Level: *logLevel, JSON: *logJSON},
		Metrics:        metricsConfig{Disabled: *noMetrics, Addr: *metricsAddr},
	})

	logger := newLogger(cfg.Logger, os.Stdout)
	slog.SetDefault(logger)

	telemetry.Enable(telemetry.Config{Enabled: !cfg.Metrics.Disabled, MetricsAddr: cfg.Metrics.Addr})

	ctx := context.Background()
	backend, err := persistence.BuildBackend(ctx, cfg.Adapter, persistence.Options{
		Region:         cfg.Connector.Region,
		KeyField:       cfg.Connector.KeyField,
		RedisAddr:      cfg.RedisAddr,
		DynamoEndpoint: cfg.DynamoEndpoint,
	})
	if err != nil {
		logger.Error("build backend", "adapter", cfg.Adapter, "error", err)
		os.Exit(1)
	}

	connector, err := core.NewConnector(cfg.Connector, backend, core.WithLogger(logger))
	if err != nil {
		logger.Error("create connector", "error", err)
		os.Exit(1)
	}

	for _, table := range cfg.Tables {
		logger.Info("creating table", "table", table)
		if err := connector.CreateTable(ctx, table, true); err != nil {
			logger.Warn("create table", "table", table, "error", err)
		}
	}

	server := api.NewServer(connector, logger)
	server.Start(cfg.HTTPAddr)
	logger.Info("storage connector started",
		"adapter", cfg.Adapter,
		"region", cfg.Connector.Region,
		"buffer_timeout", cfg.Connector.BufferTimeout(),
		"namespace_width", cfg.Connector.NamespaceWidth)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	// Close the connector first: it flushes the open window before the API goes away.
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Connector.FlushTimeout()+time.Second)
	defer cancel()
	if err := connector.Close(closeCtx); err != nil {
		logger.Error("close connector", "error", err)
	}
	if err := server.Stop(); err != nil {
		logger.Error("stop http server", "error", err)
	}
	if c, ok := backend.(io.Closer); ok {
		_ = c.Close()
	}
	logger.Info("storage connector stopped")
}
