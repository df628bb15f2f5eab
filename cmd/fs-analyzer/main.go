package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"FlowSentry/internal/analyzer"
	"FlowSentry/internal/config"
	"FlowSentry/internal/engine/manager"
	"FlowSentry/internal/inference"
	"FlowSentry/internal/model"
	"FlowSentry/internal/report"
	"FlowSentry/internal/schema"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config path] <flows.csv>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1. Get CSV file path from command-line arguments
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	csvPath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 3. Initialize modules
	engine, err := inference.Load(cfg.Engine.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	a := analyzer.New(engine, schema.NewDefaultValidator(), analyzer.Options{MaxRows: cfg.Engine.MaxRows})
	mgr, err := manager.NewManager(cfg, a, report.NewEmitter(cfg.Engine.ReportDir, nil), nil)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()
	defer mgr.Stop()

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer f.Close()
	log.Printf("Classifying flows from '%s'...", csvPath)

	// 4. Run the batch
	res, err := mgr.ClassifyBatch(context.Background(), f, report.SafeName(csvPath))
	if err != nil {
		log.Printf("%v", err)
		mgr.Stop()
		os.Exit(1)
	}
	printSummary(res)
}

func printSummary(res *model.Result) {
	s := res.Batch.Summary
	fmt.Printf("Batch:            %s\n", res.Batch.ID)
	fmt.Printf("Total flows:      %d\n", s.Total)
	fmt.Printf("Benign flows:     %d\n", s.Benign)
	fmt.Printf("DDoS flows:       %d (%s%%)\n", s.DDoS, report.FormatPercentage(s.DDoSPercentage))
	fmt.Printf("Critical alerts:  %d\n", s.Alerts)
	fmt.Printf("Top attackers:    %s\n", s.TopAttackers)
	fmt.Printf("Full report:      %s\n", res.FullReportPath)
	if res.AlertReportPath != "" {
		fmt.Printf("Alert report:     %s\n", res.AlertReportPath)
	}
}
