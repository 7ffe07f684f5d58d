// Command loadtest drives POST /api/v1/videos/{id}/ask with a fixed set of
// questions from concurrent workers and reports throughput, latency
// percentiles and cache hit counts. With -stream it measures time to the
// first streamed frame instead of the full response.
//
// The video must already be ingested.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	VideoID     string
	Concurrency int
	Duration    time.Duration
	Stream      bool
	Questions   []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(latency time.Duration, statusCode int, cached bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cached {
		s.cacheHits.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, latency)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the video qa server")
	videoID := flag.String("video", "", "id of an ingested video")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	stream := flag.Bool("stream", false, "request event streams and time the first frame")
	flag.Parse()

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "-video is required")
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		VideoID:     *videoID,
		Concurrency: *concurrency,
		Duration:    *duration,
		Stream:      *stream,
		Questions: []string{
			"What is this video about?",
			"Who is speaking?",
			"What are the main points?",
			"What examples are given?",
			"What conclusion does the speaker reach?",
			"Are any numbers or statistics mentioned?",
			"What problem is being solved?",
			"What is recommended at the end?",
		},
	}

	mode := "batch"
	if cfg.Stream {
		mode = "stream (time to first frame)"
	}
	fmt.Println("=== Video QA Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Video:       %s\n", cfg.VideoID)
	fmt.Printf("Mode:        %s\n", mode)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Questions:   %d unique\n", len(cfg.Questions))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	askURL := fmt.Sprintf("%s/api/v1/videos/%s/ask", cfg.BaseURL, cfg.VideoID)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := range cfg.Concurrency {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				question := cfg.Questions[next%len(cfg.Questions)]
				next++
				latency, status, cached, err := ask(ctx, client, askURL, question, cfg.Stream)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(latency, status, cached, err)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// ask sends one question. In stream mode the latency is measured to the
// first data frame and the rest of the stream is drained.
func ask(ctx context.Context, client *http.Client, askURL, question string, stream bool) (time.Duration, int, bool, error) {
	body, _ := json.Marshal(map[string]any{"question": question, "stream": stream})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, askURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return time.Since(start), resp.StatusCode, false, nil
	}
	if !stream {
		var answer struct {
			Cached bool `json:"cached"`
		}
		err := json.NewDecoder(resp.Body).Decode(&answer)
		return time.Since(start), resp.StatusCode, answer.Cached, err
	}

	var (
		firstFrame time.Duration
		frames     int
	)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if !strings.HasPrefix(sc.Text(), "data: ") {
			continue
		}
		if frames == 0 {
			firstFrame = time.Since(start)
		}
		frames++
	}
	// A cached answer arrives as a single frame.
	return firstFrame, resp.StatusCode, frames == 1, sc.Err()
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errCount := stats.errorCount.Load()
	hits := stats.cacheHits.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errCount)
	fmt.Printf("Cache Hits:      %d\n", hits)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errCount)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
