package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/engine/manager"
	"FlowSentry/internal/engine/streamclassifier"
	"FlowSentry/internal/inference"
	"FlowSentry/internal/metrics"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"
	"FlowSentry/internal/stream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	metricsAddr := flag.String("metrics", "", "Address to expose /metrics on (disabled when empty)")
	flag.Parse()

	log.Println("Starting fs-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Load the classifier and build the pipeline
	engine, err := inference.Load(cfg.Engine.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	v := schema.NewDefaultValidator()
	a := analyzer.New(engine, v, analyzer.Options{MaxRows: cfg.Engine.MaxRows})
	mgr, err := manager.NewManager(cfg, a, report.NewEmitter(cfg.Engine.ReportDir, nil), m)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()

	// Every streamed row lands in the same append-only file the replay
	// harness writes.
	sim := stream.NewSimulator(a, v, cfg.Stream.Output)
	sc := streamclassifier.NewStreamClassifier(cfg, mgr, v, sim, m)

	// 3. Start the classifier
	if err := sc.Start(); err != nil {
		log.Fatalf("Failed to start stream classifier: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			log.Printf("Metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	log.Println("Shutdown signal received, stopping classifier...")
	sc.Stop()
	mgr.Stop()
	log.Println("Shutdown complete.")
}
