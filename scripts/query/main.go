package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"FlowSentry/internal/config"
	"FlowSentry/internal/query"
	"FlowSentry/internal/risk"
)

func main() {
	// Define command-line flags
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of fs-api.")
	configPath := flag.String("config", "configs/config.yaml", "Configuration file used in direct mode.")
	limit := flag.Int("limit", 5, "Number of attackers to list.")
	source := flag.String("source", "", "Only count flows from this upload (optional).")
	since := flag.Duration("since", 0, "Only count flows analyzed within this window, e.g. 24h (direct mode).")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiAddr, *limit, *source)
	case "direct":
		directQuery(*configPath, *limit, *source, *since)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base string, limit int, source string) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if source != "" {
		params.Set("source", source)
	}
	apiURL := base + "/api/v1/attackers?" + params.Encode()

	log.Printf("Sending request to %s", apiURL)
	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	log.Println("---")
	fmt.Println(prettyJSON.String())
}

func directQuery(configPath string, limit int, source string, since time.Duration) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	q, err := query.NewClickHouseQuerier(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer q.Close()

	req := query.TopAttackersRequest{Limit: limit, SourceName: source}
	var from time.Time
	if since > 0 {
		from = time.Now().UTC().Add(-since)
		req.Since = from
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	attackers, err := q.TopAttackers(ctx, req)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	tiers, err := q.TierCounts(ctx, from)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}

	log.Println("--- Top Attackers (Direct) ---")
	if len(attackers) == 0 {
		log.Println("No DDoS flows with a source IP found.")
	}
	for i, a := range attackers {
		fmt.Printf("%2d. %-40s %d flows\n", i+1, a.IP, a.Count)
	}

	log.Println("--- Risk Tiers ---")
	for _, tier := range []risk.Tier{risk.Critical, risk.High, risk.Medium, risk.Low} {
		fmt.Printf("  %-8s %d\n", tier, tiers[string(tier)])
	}
}
