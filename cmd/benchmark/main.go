package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	paidHash    string
)

// Metrics
var (
	totalRequests uint64
	ok200         uint64 // Accepted (fresh or cached replay)
	rejected400   uint64 // Rejections
	replay409     uint64 // Replay attacks
	limited429    uint64 // Rate limited
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "unique", "Workload type: unique | replay")
	flag.StringVar(&paidHash, "hash", "", "Transaction hash to replay (required for -workload=replay)")
}

func main() {
	flag.Parse()
	if workload == "replay" && paidHash == "" {
		log.Fatal("-workload=replay requires -hash with a previously accepted transaction hash")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}

	for time.Since(start) < duration {
		hash := paidHash
		if workload == "unique" {
			hash = randomHash()
		}

		req, _ := http.NewRequest("GET", targetURL+"/api/premium-data", nil)
		req.Header.Set("X-Payment-Hash", hash)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&ok200, 1)
		case 400:
			atomic.AddUint64(&rejected400, 1)
		case 409:
			atomic.AddUint64(&replay409, 1)
		case 429:
			atomic.AddUint64(&limited429, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

// randomHash fabricates a well-formed but almost certainly unknown
// transaction hash, exercising the ledger-lookup rejection path.
func randomHash() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Duration:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests: %d (%.1f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("200 Accepted:   %d\n", atomic.LoadUint64(&ok200))
	fmt.Printf("400 Rejected:   %d\n", atomic.LoadUint64(&rejected400))
	fmt.Printf("409 Replay:     %d\n", atomic.LoadUint64(&replay409))
	fmt.Printf("429 Limited:    %d\n", atomic.LoadUint64(&limited429))
	fmt.Printf("Other/Error:    %d\n", atomic.LoadUint64(&failOther))
}
