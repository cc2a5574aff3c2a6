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

// Command http-loadgen drives PUT/DELETE traffic at a running storage connector to
// observe write coalescing. Compare its request count with the
// storage_connector_flushes_total metric afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeZipf   modeType = "zipf"
	modeDelete modeType = "delete"
)

func main() {
	var (
		base      = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		namespace = flag.String("namespace", "NS0001", "Table prefix prepended to every item key")
		modeS     = flag.String("mode", string(modeSingle), "Mode: single|zipf|delete")
		key       = flag.String("key", "alice", "Item key for single and delete modes")
		hotKey    = flag.String("hot_key", "hot-1", "Hot item key for zipf mode")
		coldN     = flag.Int("cold_keys", 50, "Number of cold keys to round-robin in zipf mode")
		N         = flag.Int("n", 5000, "Total requests to send")
		conc      = flag.Int("c", 8, "Number of concurrent workers")
		wait      = flag.Bool("wait", false, "Ask the server to answer only after the write is flushed")
		// Deterministic skew: hotEvery=5 means 4/5 go to hot key, 1/5 to a cold key.
		hotEvery = flag.Int("hot_every", 5, "Zipf-like skew period (4 of this period go to hot; minimum 2)")
		timeout  = flag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
		maxIdle  = flag.Int("max_idle", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeZipf && m != modeDelete {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|zipf|delete)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeZipf {
		if *coldN <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_keys must be > 0 in zipf mode")
			os.Exit(2)
		}
		if *hotEvery < 2 {
			*hotEvery = 2
		}
	}

	itemsURL := strings.TrimRight(*base, "/") + "/items/" + *namespace
	query := ""
	if *wait {
		query = "?wait=true"
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdle,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{Transport: tr, Timeout: 15 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var okCount, failCount atomic.Int64
	start := time.Now()

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			if ctx.Err() != nil {
				return
			}
			k := *key
			if m == modeZipf {
				if (i+id)%*hotEvery != 0 {
					k = *hotKey
				} else {
					k = fmt.Sprintf("cold-%d", (i+id)%*coldN+1)
				}
			}

			method := http.MethodPut
			var body io.Reader = strings.NewReader(fmt.Sprintf(`{"worker":%d,"seq":%d}`, id, i))
			if m == modeDelete {
				method, body = http.MethodDelete, nil
			}
			req, _ := http.NewRequestWithContext(ctx, method, itemsURL+k+query, body)
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				failCount.Add(1)
				time.Sleep(200 * time.Microsecond)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				okCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	fmt.Printf("LoadGen: mode=%s N=%d c=%d wait=%t go=%d ok=%d failed=%d Duration=%s Throughput=%.0f req/s\n",
		m, *N, *conc, *wait, runtime.GOMAXPROCS(0), okCount.Load(), failCount.Load(),
		elapsed.Truncate(time.Millisecond), float64(*N)/elapsed.Seconds())
}
