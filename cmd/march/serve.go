// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/march/internal/gstate"
	"github.com/kraklabs/march/internal/httpapi"
	"github.com/kraklabs/march/internal/store"
)

func printServeUsage() {
	fmt.Println(`Usage: march serve [options]

Starts the read-only HTTP inspector: GET /word/{cid}, POST /run/{cid},
GET /name/{scope}/{name}, GET /health.

Options:
  --store <dir>   Store directory (default: .march/store, or MARCH_STORE_DIR)
  -p, --port      Port to listen on (default: 8080)
  --metrics       Expose prometheus counters at /metrics`)
}

// promMetrics implements httpapi.Metrics over a small prometheus
// registry (§9 [EXPANDED] "Metrics"): words served by GET /word and
// successful/failed POST /run calls, fed through httpapi's hook
// interface rather than global state.
type promMetrics struct {
	served  prometheus.Counter
	runOK   prometheus.Counter
	runFail prometheus.Counter
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	m := &promMetrics{
		served: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "march_httpapi_word_served_total",
			Help: "Number of GET /word/{cid} requests served.",
		}),
		runOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "march_httpapi_word_run_total",
			Help: "Number of POST /run/{cid} requests that completed successfully.",
		}),
		runFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "march_httpapi_word_run_failed_total",
			Help: "Number of POST /run/{cid} requests that returned an error.",
		}),
	}
	reg.MustRegister(m.served, m.runOK, m.runFail)
	return m
}

func (m *promMetrics) WordServed() { m.served.Inc() }
func (m *promMetrics) WordRun(ok bool) {
	if ok {
		m.runOK.Inc()
	} else {
		m.runFail.Inc()
	}
}

func runServe(args []string, globals GlobalFlags, cfg *Config) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	storeDir := fs.String("store", "", "store directory")
	port := fs.StringP("port", "p", "8080", "port to listen on")
	withMetrics := fs.Bool("metrics", false, "expose prometheus counters at /metrics")
	fs.Usage = printServeUsage
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dir := resolveStoreDir(cfg, *storeDir)
	st, err := store.Open(storeNameIn(dir))
	if err != nil {
		printErr("march serve: open store: %v", err)
		return 1
	}
	defer st.Close()

	srv := httpapi.New(st, gstate.New(), nil)
	mux := srv.Mux()

	if *withMetrics {
		reg := prometheus.NewRegistry()
		srv.SetMetrics(newPromMetrics(reg))
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	if !globals.Quiet {
		fmt.Printf("march inspector listening on http://0.0.0.0:%s (store: %s)\n", *port, dir)
	}

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		printErr("march serve: %v", err)
		return 1
	}
	return 0
}
