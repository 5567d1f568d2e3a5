package main

import (
	"NWBBenchmarks/internal/bench"
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/pkg/logging"
	"NWBBenchmarks/internal/results"
	"NWBBenchmarks/internal/tracker"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	once := flag.Bool("once", false, "Run the benchmarks once even if a schedule is configured")
	flag.Parse()

	logging.SetupFromEnv()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Info("Configuration loaded successfully.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Build benchmarks and writers
	benchmarks, err := bench.FromConfig(cfg.Benchmarks, &http.Client{})
	if err != nil {
		log.Fatalf("Failed to create benchmarks: %v", err)
	}
	writers, err := results.CreateWriters(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create writers: %v", err)
	}
	out := results.NewFanout(writers...)
	defer out.Close()

	if cfg.Tracker.Enabled && os.Geteuid() != 0 {
		log.Warn("Not running as root, network statistics are likely to be empty.")
	}
	runner := bench.NewRunner(cfg.Tracker.Enabled, tracker.OptionsFromConfig(cfg), bench.CollectMachineInfo(ctx))

	// 3. Run once, or on every schedule tick
	var running sync.Mutex
	runAndWrite := func() {
		if !running.TryLock() {
			log.Warn("Previous benchmark run still in progress, skipping this one.")
			return
		}
		defer running.Unlock()

		measurements, err := runner.Run(ctx, benchmarks)
		if err != nil {
			log.Warnf("Benchmark run interrupted: %v", err)
		}
		if err := out.Write(context.Background(), measurements); err != nil {
			log.Errorf("Failed to write measurements: %v", err)
		}
		log.Infof("Benchmark run finished with %d measurements.", len(measurements))
	}

	if cfg.Runner.Schedule == "" || *once {
		runAndWrite()
		return
	}

	c := cron.New()
	if err := c.AddFunc(cfg.Runner.Schedule, runAndWrite); err != nil {
		log.Fatalf("Invalid schedule '%s': %v", cfg.Runner.Schedule, err)
	}
	c.Start()
	log.Infof("Benchmarks scheduled with '%s'.", cfg.Runner.Schedule)

	<-ctx.Done()
	log.Info("Shutdown signal received, stopping scheduler...")
	c.Stop()
	running.Lock()
	log.Info("Shutdown complete.")
}
