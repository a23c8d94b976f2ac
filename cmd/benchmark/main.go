package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kge/config"
	"kge/internal/adapter/fs"
	"kge/internal/domain"
	"kge/internal/logging"
	"kge/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding kge.yaml and the corpora")
	keysPath := flag.String("keys", "", "File with one entity URI per line")
	rounds := flag.Int("n", 3, "Number of passes over the keys")
	batch := flag.Int("batch", 20, "Keys per batch")
	workers := flag.Int("workers", 0, "Concurrent lookups per batch (default from config)")
	mmap := flag.Bool("mmap", false, "Memory-map the entity corpus")
	flag.Parse()

	if *keysPath == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./data -keys keys.txt [-n 3] [-batch 20] [-workers 4] [-mmap]")
		fmt.Println("\nMeasures:")
		fmt.Println("  1. Startup (index load or build)")
		fmt.Println("  2. Batch latency percentiles")
		fmt.Println("  3. Hit rate and throughput")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(cfg.Corpus.Root) {
		cfg.Corpus.Root = filepath.Join(*dir, cfg.Corpus.Root)
	}
	if *rounds < 1 || *batch < 1 {
		fmt.Fprintln(os.Stderr, "-n and -batch must be positive")
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Lookup.Workers = *workers
	}

	keys, err := readKeys(*keysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading keys: %v\n", err)
		os.Exit(1)
	}
	if len(keys) == 0 {
		fmt.Fprintln(os.Stderr, "No keys to look up")
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, "warn", "text")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	opts := usecase.RuntimeOptions{
		Root:      cfg.Corpus.Root,
		Entities:  cfg.Corpus.Entities,
		Relations: cfg.Corpus.Relations,
		Delimiter: cfg.DelimiterByte(),
		HashBits:  cfg.Index.HashBits,
		Reader:    fs.ReaderOptions{Mmap: *mmap || cfg.Index.Mmap, MaxRecordBytes: cfg.Corpus.MaxRecordBytes},
		Workers:   cfg.Lookup.Workers,
	}
	if cfg.Index.Persist {
		opts.IndexDBPath = cfg.IndexDBPath()
	}

	fmt.Println("LOOKUP LATENCY BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	start := time.Now()
	rt, err := usecase.Open(context.Background(), opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	stats := rt.Stats()
	fmt.Printf("Corpus:        %s\n", stats.EntityCorpus)
	fmt.Printf("Records:       %d (%d collided buckets)\n", stats.Index.Records, stats.Index.CollidedBuckets)
	fmt.Printf("Index reused:  %v\n", stats.IndexReused)
	fmt.Printf("Startup:       %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Read mode:     %s, workers=%d\n", readMode(opts.Reader.Mmap), opts.Workers)
	fmt.Println(strings.Repeat("-", 70))

	var (
		latencies []time.Duration
		hits      int
		total     int
	)
	runStart := time.Now()
	for round := 0; round < *rounds; round++ {
		for i := 0; i < len(keys); i += *batch {
			end := min(i+*batch, len(keys))
			req := domain.BatchRequest{Entities: keys[i:end], Relations: []string{}}

			t0 := time.Now()
			res, err := rt.Lookup.Process(context.Background(), req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Lookup error: %v\n", err)
				os.Exit(1)
			}
			latencies = append(latencies, time.Since(t0))

			for _, r := range res.Entities {
				if r.Found {
					hits++
				}
			}
			total += len(res.Entities)
		}
	}
	elapsed := time.Since(runStart)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("Batches:       %d of up to %d keys\n", len(latencies), *batch)
	fmt.Printf("Hit rate:      %.1f%% (%d/%d)\n", 100*float64(hits)/float64(total), hits, total)
	fmt.Printf("Throughput:    %.0f keys/s\n", float64(total)/elapsed.Seconds())
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("BATCH LATENCY:\n")
	fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
	fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
	fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
	fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
}

func readKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			keys = append(keys, line)
		}
	}
	return keys, scanner.Err()
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func readMode(mmap bool) string {
	if mmap {
		return "mmap"
	}
	return "pread"
}
