package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/inference"
	"FlowSentry/internal/probe"
	"FlowSentry/internal/schema"
	"FlowSentry/internal/stream"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	mode := flag.String("mode", "local", "Operating mode: 'local' to classify rows in-process, 'pub' to publish rows to NATS.")
	dataset := flag.String("dataset", "", "CSV dataset to replay (defaults to stream.dataset).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataset != "" {
		cfg.Stream.Dataset = *dataset
	}
	if cfg.Stream.Dataset == "" {
		log.Println("Error: no dataset configured, set stream.dataset or -dataset.")
		flag.Usage()
		os.Exit(1)
	}

	pick, err := stream.NewPicker(cfg.Stream.Picker, cfg.Stream.Seed)
	if err != nil {
		log.Fatalf("Invalid picker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mode Dispatch ---
	switch *mode {
	case "local":
		runLocal(ctx, cfg, pick)
	case "pub":
		runPublisher(ctx, cfg, pick)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
	log.Println("Shutdown complete.")
}

// runLocal classifies one row per tick and appends it to the stream output.
func runLocal(ctx context.Context, cfg *config.Config, pick stream.RowPicker) {
	engine, err := inference.Load(cfg.Engine.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	v := schema.NewDefaultValidator()
	a := analyzer.New(engine, v, analyzer.Options{MaxRows: cfg.Engine.MaxRows})

	sim := stream.NewSimulator(a, v, cfg.Stream.Output)
	if err := sim.Run(ctx, cfg.Stream.Dataset, config.Duration(cfg.Stream.Interval), pick); err != nil {
		log.Fatalf("Stream simulator failed: %v", err)
	}
}

// runPublisher publishes one dataset row per tick for fs-engine to classify.
func runPublisher(ctx context.Context, cfg *config.Config, pick stream.RowPicker) {
	header, rows, err := loadDataset(cfg.Stream.Dataset, cfg.Engine.MaxRows)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("Dataset '%s' has no data rows", cfg.Stream.Dataset)
	}

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	log.Printf("Publishing rows of '%s' to %s every %s", cfg.Stream.Dataset, cfg.Probe.Subject, cfg.Stream.Interval)
	source := filepath.Base(cfg.Stream.Dataset)
	ticker := time.NewTicker(config.Duration(cfg.Stream.Interval))
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown signal received after %d rows.", published)
			if err := pub.Flush(); err != nil {
				log.Printf("Failed to flush NATS connection: %v", err)
			}
			return
		case <-ticker.C:
			index := pick(len(rows))
			msg := &probe.FlowMessage{
				Source:  source,
				Row:     index + 1,
				Columns: header,
				Cells:   rows[index-1],
				SentAt:  time.Now().UTC(),
			}
			if err := pub.PublishFlow(msg); err != nil {
				log.Printf("Failed to publish row %d: %v", index, err)
				continue
			}
			published++
			if published%100 == 0 {
				log.Printf("%d rows published...", published)
			}
		}
	}
}

func loadDataset(path string, maxRows int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return schema.ReadCells(f, schema.NewDefaultValidator(), maxRows)
}
