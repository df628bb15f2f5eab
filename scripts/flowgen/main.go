package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"FlowSentry/internal/model"
)

func main() {
	outputFile := flag.String("o", "data/random_test_set_1.csv", "Output CSV file path")
	flowCount := flag.Int("c", 1000, "Number of flows to generate")
	attackers := flag.Int("attackers", 5, "Number of distinct flooding source IPs")
	attackRatio := flag.Float64("ratio", 0.3, "Share of flows that look like a flood")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{model.SourceIPColumn}, model.FeatureNames[:]...)
	if err := w.Write(header); err != nil {
		log.Fatalf("Failed to write header: %v", err)
	}

	floodIPs := make([]string, *attackers)
	for i := range floodIPs {
		floodIPs[i] = fmt.Sprintf("203.0.113.%d", rng.Intn(254)+1)
	}

	log.Printf("Generating %d flows into %s...", *flowCount, *outputFile)
	for i := 0; i < *flowCount; i++ {
		flood := len(floodIPs) > 0 && rng.Float64() < *attackRatio
		ip := fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), rng.Intn(254)+1)
		if flood {
			ip = floodIPs[rng.Intn(len(floodIPs))]
		}
		if err := w.Write(append([]string{ip}, features(rng, flood)...)); err != nil {
			log.Fatalf("Failed to write flow: %v", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Failed to flush CSV: %v", err)
	}
	log.Println("Done.")
}

// features returns one row of values in FeatureNames order. Floods are
// short bursts of small, evenly spaced forward packets.
func features(rng *rand.Rand, flood bool) []string {
	var fwdMean, fwdMax, initWin, fwdPackets, bwdMin, iatStd float64
	if flood {
		fwdMean = rng.Float64()*20
		fwdMax = fwdMean + rng.Float64()*10
		initWin = float64(rng.Intn(1024) + 1)
		fwdPackets = float64(rng.Intn(3) + 1)
		bwdMin = 0
		iatStd = rng.Float64() * 10
	} else {
		fwdMean = 200 + rng.Float64()*1000
		fwdMax = fwdMean + rng.Float64()*300
		initWin = float64(rng.Intn(65535) + 1)
		fwdPackets = float64(rng.Intn(200) + 2)
		bwdMin = rng.Float64() * 100
		iatStd = 1000 + rng.Float64()*100000
	}
	fwdBytes := fwdMean * fwdPackets
	values := []float64{
		fwdMean,
		fwdMax,
		fwdMean,
		initWin,
		fwdBytes,
		fwdBytes,
		fwdPackets - 1,
		bwdMin,
		fwdPackets,
		iatStd,
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return out
}
