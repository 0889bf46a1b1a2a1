// The loadtest command fires concurrent queries at a running search server
// and reports throughput and latency percentiles. Queries are evaluated in
// parallel at query granularity, matching the engine's concurrency model.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Mode        string
	TopK        int
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil || statusCode < 200 || statusCode >= 300 {
		s.errorCount.Add(1)
		return
	}
	s.successCount.Add(1)

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	mode := flag.String("mode", "or", "query mode (and, or)")
	topK := flag.Int("k", 10, "results per query")
	queryFile := flag.String("queries", "", "file with one query per line (optional)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := loadQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Mode:        *mode,
		TopK:        *topK,
		Queries:     queries,
	}

	fmt.Println("=== Search Server Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Mode:        %s, k=%d\n", cfg.Mode, cfg.TopK)
	fmt.Printf("Queries:     %d\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

var defaultQueries = []string{
	"what is the capital of france",
	"symptoms of the common cold",
	"how do inverted indexes work",
	"best time to visit yellowstone",
	"photosynthesis definition",
	"distance from earth to moon",
	"who wrote pride and prejudice",
	"difference between virus and bacteria",
	"history of the printing press",
	"why is the sky blue",
	"manhattan bridge construction",
	"average rainfall amazon",
}

func loadQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var queries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			queries = append(queries, line)
		}
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", path)
	}
	return queries, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < cfg.Concurrency; w++ {
		workerID := w
		g.Go(func() error {
			queryIdx := workerID
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				searchURL := fmt.Sprintf("%s/search?q=%s&mode=%s&k=%d",
					cfg.BaseURL, url.QueryEscape(query), cfg.Mode, cfg.TopK)

				req, err := http.NewRequestWithContext(gctx, http.MethodGet, searchURL, nil)
				if err != nil {
					return fmt.Errorf("creating request: %w", err)
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)

				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					stats.RecordRequest(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(elapsed, resp.StatusCode, nil)
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Throughput:      %.1f req/s\n", float64(total)/duration.Seconds())

	stats.latenciesMu.Lock()
	latencies := stats.latencies
	stats.latenciesMu.Unlock()
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("\nLatency:")
	fmt.Printf("  min: %s\n", latencies[0])
	for _, p := range []float64{50, 90, 95, 99} {
		idx := int(math.Ceil(p/100*float64(len(latencies)))) - 1
		if idx < 0 {
			idx = 0
		}
		fmt.Printf("  p%.0f: %s\n", p, latencies[idx])
	}
	fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
}
