// Command byteblasterd is a thin demonstration wiring: load a config,
// subscribe to completed files, print their names, run until interrupted.
// Option parsing and subscriber business logic are explicitly out of scope
// for the core module (spec.md §1 Non-goals) — this is a sample caller, not
// a feature.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	byteblaster "github.com/bradsjm/byte-blaster"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := byteblaster.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "byteblasterd:", err)
		os.Exit(1)
	}

	client, err := byteblaster.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "byteblasterd:", err)
		os.Exit(1)
	}

	unsub := client.SubscribeFiles(func(cf byteblaster.CompletedFile) {
		fmt.Printf("received %s (%d bytes, %d blocks) from %s\n", cf.Filename, len(cf.Data), cf.BlockCount, cf.Source)
	}, 32)
	defer unsub()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(client.Metrics().Registry, promhttp.HandlerOpts{}))
		go http.ListenAndServe(*metricsAddr, mux)
	}

	if err := client.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "byteblasterd:", err)
		os.Exit(1)
	}
	defer client.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}
