package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/engine/manager"
	"FlowSentry/internal/inference"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/query"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"
	chsink "FlowSentry/internal/sink/clickhouse"
	"FlowSentry/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The model is loaded once; the service cannot run without it.
	engine, err := inference.Load(cfg.Engine.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	a := analyzer.New(engine, schema.NewDefaultValidator(), analyzer.Options{MaxRows: cfg.Engine.MaxRows})
	mgr, err := manager.NewManager(cfg, a, report.NewEmitter(cfg.Engine.ReportDir, nil), m)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()

	previews, err := store.NewPreviews(cfg.API.CacheSize)
	if err != nil {
		log.Fatalf("Failed to create preview cache: %v", err)
	}

	var querier query.Querier
	if slices.Contains(cfg.Engine.Sinks, chsink.SinkName) {
		querier, err = query.NewClickHouseQuerier(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create querier: %v", err)
		}
		defer querier.Close()
	}

	apiHandler := &APIHandler{
		manager:        mgr,
		previews:       previews,
		querier:        querier,
		reportDir:      cfg.Engine.ReportDir,
		maxUploadBytes: cfg.API.MaxUploadBytes,
	}

	// Run gRPC health server
	var grpcServer *grpc.Server
	if cfg.API.GRPCListenAddr != "" {
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.API.GRPCListenAddr, err)
		}
		go func() {
			log.Printf("gRPC health server starting on %s", cfg.API.GRPCListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatalf("Failed to serve gRPC: %v", err)
			}
		}()
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: newRouter(apiHandler, nil),
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.API.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	mgr.Stop()
	log.Println("API server exited.")
}
