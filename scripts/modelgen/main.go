package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"FlowSentry/internal/inference"
)

func main() {
	outputFile := flag.String("o", "models/ddos_detector.json", "Output model artifact path")
	seed := flag.Int64("seed", 1, "Seed for random weights")
	scale := flag.Float64("scale", 0.5, "Random weights are drawn from [-scale, scale]")
	constant := flag.Float64("constant", 0, "Emit a model that always predicts this probability (0 < p < 1) instead of random weights")
	flag.Parse()

	var a *inference.Artifact
	if *constant != 0 {
		if *constant <= 0 || *constant >= 1 {
			log.Fatalf("-constant must be in (0, 1), got %v", *constant)
		}
		a = inference.NewConstantArtifact(*constant)
		log.Printf("Generating constant model (p=%v) into %s...", *constant, *outputFile)
	} else {
		a = inference.NewRandomArtifact(*seed, *scale)
		log.Printf("Generating random model (seed=%d, scale=%v) into %s...", *seed, *scale, *outputFile)
	}

	if err := os.MkdirAll(filepath.Dir(*outputFile), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := a.Save(*outputFile); err != nil {
		log.Fatalf("Failed to write model: %v", err)
	}

	// Round-trip through the loader so a bad artifact never reaches a service.
	if _, err := inference.Load(*outputFile); err != nil {
		log.Fatalf("Generated model does not load: %v", err)
	}
	log.Println("Done.")
}
