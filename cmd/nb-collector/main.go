package main

import (
	"NWBBenchmarks/internal/config"
	"NWBBenchmarks/internal/core/model"
	"NWBBenchmarks/internal/pkg/logging"
	"NWBBenchmarks/internal/results"
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	logging.SetupFromEnv()
	log.Info("Starting nb-collector...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Connect the store and the transport
	writer, err := results.NewClickHouseWriter(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create ClickHouse writer: %v", err)
	}
	defer writer.Close()

	batcher := results.NewBatcher(writer, cfg.Collector.BatchSize, config.MustDuration(cfg.Collector.FlushInterval))
	batcherDone := make(chan struct{})
	go func() {
		batcher.Run(ctx)
		close(batcherDone)
	}()

	sub, err := results.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	if err := sub.Start(func(m *model.Measurement) {
		if !batcher.Add(m) {
			log.Warnf("Collector stopping, dropped measurement %s", m.ID)
		}
	}); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	// 3. Health endpoint
	lis, err := net.Listen("tcp", cfg.Collector.HealthAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Collector.HealthAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		log.Infof("gRPC health server listening on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Errorf("gRPC server stopped: %v", err)
		}
	}()

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, draining...")
	healthServer.Shutdown()
	sub.Close()
	cancel()
	<-batcherDone
	grpcServer.GracefulStop()
	log.Info("Shutdown complete.")
}
