package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ratefilter/internal/config"
)

func main() {
	var configPath string
	var summaryPath string
	flag.StringVar(&configPath, "config", "./ratefilter.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a sample log and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(summaryPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newLiveRuntime(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	log.Printf("ratefilter starting source=%s rate=%dHz window=%d eviction=%s", cfg.Source.Kind, cfg.Source.RateHz, cfg.Filter.Window, cfg.Filter.Eviction)

	err = rt.Run(ctx)
	rt.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("ratefilter stopped: %v", err)
	}
	log.Printf("ratefilter stopping")
}
