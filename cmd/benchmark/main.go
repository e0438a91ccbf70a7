// Benchmark tool for hammering the seckill endpoint.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -users 200 -stock 100
//
// This tool:
//  1. Creates a fresh voucher with a known stock and an open sale window
//  2. Fires concurrent purchase attempts from distinct simulated users
//  3. Tallies the outcome of every attempt
//  4. Verifies that successes never exceed the initial stock and that
//     no user bought more than once
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Voucher matches the API's voucher representation.
type Voucher struct {
	VoucherID int64     `json:"voucherId"`
	Title     string    `json:"title"`
	Stock     int64     `json:"stock"`
	BeginTime time.Time `json:"beginTime"`
	EndTime   time.Time `json:"endTime"`
}

// SeckillResponse is the success payload of a purchase.
type SeckillResponse struct {
	OrderID int64 `json:"orderId"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Successes        int64
	Conflicts        int64 // sold out or duplicate purchase
	Busy             int64 // lock contention, server asked to retry
	Errors           int64
	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Service base URL")
	users := flag.Int("users", 200, "Number of distinct simulated users")
	attempts := flag.Int("attempts", 3, "Purchase attempts per user")
	stock := flag.Int64("stock", 100, "Initial voucher stock")
	workers := flag.Int("workers", 50, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each attempt result")
	flag.Parse()

	fmt.Println("===============================================")
	fmt.Println("   SECKILL BENCHMARK - Flash-Sale Stress Test")
	fmt.Println("===============================================")
	fmt.Printf("\nService URL: %s\n", *baseURL)
	fmt.Printf("Users:       %d\n", *users)
	fmt.Printf("Attempts:    %d per user\n", *attempts)
	fmt.Printf("Stock:       %d\n", *stock)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check the service is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: service not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the service is running:")
		fmt.Println("  go run cmd/dianping/main.go")
		os.Exit(1)
	}
	fmt.Println("service is healthy")

	// Seed a voucher with an open window, keyed by time so reruns
	// against the same database do not collide
	voucherID := time.Now().Unix()
	if err := createVoucher(*baseURL, voucherID, *stock); err != nil {
		fmt.Printf("ERROR: failed to create voucher: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created voucher %d with stock %d\n", voucherID, *stock)

	// Run benchmark
	fmt.Printf("\nRunning %d purchase attempts with %d workers...\n", (*users)*(*attempts), *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, voucherID, *users, *attempts, *workers, *verbose)
	duration := time.Since(startTime)

	// Fetch what is left on the shelf
	remaining, err := getRemainingStock(*baseURL, voucherID)
	if err != nil {
		fmt.Printf("WARNING: could not read remaining stock: %v\n", err)
		remaining = -1
	}

	printResults(metrics, *stock, int64(*users), remaining, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func createVoucher(baseURL string, voucherID, stock int64) error {
	now := time.Now().UTC()
	v := Voucher{
		VoucherID: voucherID,
		Title:     "benchmark voucher",
		Stock:     stock,
		BeginTime: now.Add(-time.Minute),
		EndTime:   now.Add(time.Hour),
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/vouchers", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func getRemainingStock(baseURL string, voucherID int64) (int64, error) {
	resp, err := http.Get(fmt.Sprintf("%s/vouchers/%d", baseURL, voucherID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var v Voucher
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return 0, err
	}
	return v.Stock, nil
}

// attempt is one purchase request by one user.
type attempt struct {
	UserID int64
}

func runBenchmark(baseURL string, voucherID int64, users, attempts, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan attempt, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for a := range work {
				start := time.Now()
				status, orderID, err := purchase(client, baseURL, voucherID, a.UserID)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)

				switch {
				case err != nil:
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: user %d -> %v\n", a.UserID, err)
					}
				case status == http.StatusOK:
					atomic.AddInt64(&metrics.Successes, 1)
					if verbose {
						fmt.Printf("OK    user %-6d order %d\n", a.UserID, orderID)
					}
				case status == http.StatusConflict:
					atomic.AddInt64(&metrics.Conflicts, 1)
				case status == http.StatusServiceUnavailable:
					atomic.AddInt64(&metrics.Busy, 1)
				default:
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: user %d -> unexpected status %d\n", a.UserID, status)
					}
				}
			}
		}()
	}

	// Send work: every user retries a fixed number of times, which
	// exercises both the duplicate guard and the stock boundary
	for round := 0; round < attempts; round++ {
		for u := 1; u <= users; u++ {
			work <- attempt{UserID: int64(u)}
		}
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func purchase(client *http.Client, baseURL string, voucherID, userID int64) (int, int64, error) {
	url := fmt.Sprintf("%s/vouchers/%d/seckill", baseURL, voucherID)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, 0, nil
	}

	var result SeckillResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return resp.StatusCode, 0, err
	}
	return resp.StatusCode, result.OrderID, nil
}

func printResults(m *Metrics, stock, users, remaining int64, duration time.Duration) {
	total := m.Successes + m.Conflicts + m.Busy + m.Errors

	fmt.Println("\n===============================================")
	fmt.Println("              BENCHMARK RESULTS")
	fmt.Println("===============================================")

	fmt.Printf("\nATTEMPT OUTCOMES\n")
	fmt.Printf("   Total Attempts:   %d\n", total)
	fmt.Printf("   Successes:        %d\n", m.Successes)
	fmt.Printf("   Conflicts:        %d  (sold out / duplicate)\n", m.Conflicts)
	fmt.Printf("   Busy:             %d  (lock contention)\n", m.Busy)
	fmt.Printf("   Errors:           %d\n", m.Errors)

	// The two invariants the whole design exists to protect
	expected := stock
	if users < stock {
		expected = users
	}

	fmt.Printf("\nCORRECTNESS\n")
	fmt.Printf("   Initial Stock:    %d\n", stock)
	if remaining >= 0 {
		fmt.Printf("   Remaining Stock:  %d\n", remaining)
	}
	fmt.Printf("   Expected Sales:   %d  (min of users and stock)\n", expected)

	if m.Successes > stock {
		fmt.Printf("   OVERSOLD: %d successes against stock %d\n", m.Successes, stock)
	} else if m.Successes > users {
		fmt.Printf("   DUPLICATE SALES: %d successes across %d users\n", m.Successes, users)
	} else if m.Successes == expected {
		fmt.Println("   OK: exactly one order per user, no overselling")
	} else {
		fmt.Printf("   SHORT: %d successes, expected %d (check Busy and Errors)\n", m.Successes, expected)
	}
	if remaining >= 0 && stock-remaining != m.Successes {
		fmt.Printf("   STOCK MISMATCH: consumed %d but recorded %d successes\n", stock-remaining, m.Successes)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if total > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(total)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
