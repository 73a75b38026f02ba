// Command load-test drives an obfuscator cluster with concurrent sessions and
// checks that every repeated query returns its first answer.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/client"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

type options struct {
	serverAddr       string
	numSessions      int
	pairsPerSession  int
	workersPerSess   int
	queriesPerSec    float64
	duration         time.Duration
	epsilon          float64
	roundingStep     uint64
	dropWhenFinished bool
}

// answers remembers the first result seen per (session, key).
type answers struct {
	mu   sync.Mutex
	seen map[string]map[obfuscate.Key]uint64
}

// record stores result unless an answer is known, and reports whether the
// stored answer matches.
func (a *answers) record(session string, key obfuscate.Key, result uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.seen[session]
	if !ok {
		m = make(map[obfuscate.Key]uint64)
		a.seen[session] = m
	}
	if prev, ok := m[key]; ok {
		return prev == result
	}
	m[key] = result
	return true
}

func sessionKeys(n int) []obfuscate.Key {
	keys := make([]obfuscate.Key, n)
	for j := range keys {
		keys[j] = obfuscate.Key{Value: uint64(j * 7), Bin: obfuscate.Bin(j % 4)}
	}
	return keys
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "load-test",
		Short:        "Load test an obfuscator cluster",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.serverAddr, "server", "127.0.0.1:9090", "Server address (host:port)")
	flags.IntVar(&opts.numSessions, "sessions", 10, "Number of concurrent sessions")
	flags.IntVar(&opts.pairsPerSession, "pairs", 150, "Number of distinct (value, bin) pairs per session")
	flags.IntVar(&opts.workersPerSess, "workers", 5, "Number of batch workers per session")
	flags.Float64Var(&opts.queriesPerSec, "qps", 10.0, "Queries per second in the repeat phase")
	flags.DurationVar(&opts.duration, "duration", 30*time.Second, "Repeat phase duration")
	flags.Float64Var(&opts.epsilon, "epsilon", 1.0, "Privacy budget per session")
	flags.Uint64Var(&opts.roundingStep, "rounding-step", 10, "Rounding step per session")
	flags.BoolVar(&opts.dropWhenFinished, "drop", true, "Drop sessions when finished")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("🚀 silhouette-obfuscator Load Testing\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Println()
	fmt.Printf("📋 Configuration:\n")
	fmt.Printf("   Server:              %s\n", opts.serverAddr)
	fmt.Printf("   Concurrent sessions: %d\n", opts.numSessions)
	fmt.Printf("   Pairs per session:   %d\n", opts.pairsPerSession)
	fmt.Printf("   Workers per session: %d\n", opts.workersPerSess)
	fmt.Printf("   Queries per sec:     %.1f\n", opts.queriesPerSec)
	fmt.Printf("   Test duration:       %v\n", opts.duration)
	fmt.Println()

	if opts.numSessions <= 0 || opts.pairsPerSession <= 0 || opts.workersPerSess <= 0 || opts.queriesPerSec <= 0 {
		return fmt.Errorf("sessions, pairs, workers and qps must be positive")
	}

	fmt.Printf("🔌 Connecting to server...\n")
	adminClient, err := client.NewClient(opts.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer adminClient.Close()
	fmt.Printf("✅ Connected successfully!\n\n")

	cfg := obfuscate.Config{
		Sensitivity:  1,
		Epsilon:      opts.epsilon,
		RoundingStep: opts.roundingStep,
		Mode:         obfuscate.ThresholdConstant,
	}
	keys := sessionKeys(opts.pairsPerSession)
	seen := &answers{seen: make(map[string]map[obfuscate.Key]uint64)}

	var (
		sessionsCompleted int64
		sessionsFailed    int64
		queriesCompleted  int64
		queriesFailed     int64
		unstable          int64
		totalBatchTime    int64 // nanoseconds
		totalQueryTime    int64 // nanoseconds
	)

	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("📋 Phase 1: Concurrent Sessions Test\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Println()

	var (
		sessionsMu sync.Mutex
		sessionIDs []string
	)
	sessionsStart := time.Now()
	var sessionsWg sync.WaitGroup

	for n := 0; n < opts.numSessions; n++ {
		sessionsWg.Add(1)
		go func() {
			defer sessionsWg.Done()

			sessionStart := time.Now()
			id, err := adminClient.CreateSession(ctx, cfg)
			if err != nil {
				fmt.Printf("   ❌ Failed to create session: %v\n", err)
				atomic.AddInt64(&sessionsFailed, 1)
				return
			}
			sessionsMu.Lock()
			sessionIDs = append(sessionIDs, id)
			sessionsMu.Unlock()

			// Workers overlap on purpose: each batch covers every key, so
			// concurrent first queries for a key race on the cache.
			var workersWg sync.WaitGroup
			var workerErrors int64
			for w := 0; w < opts.workersPerSess; w++ {
				workersWg.Add(1)
				go func(workerNum int) {
					defer workersWg.Done()

					wClient, err := client.NewClient(opts.serverAddr)
					if err != nil {
						atomic.AddInt64(&workerErrors, 1)
						return
					}
					defer wClient.Close()

					order := make([]obfuscate.Key, len(keys))
					copy(order, keys)
					r := rand.New(rand.NewPCG(uint64(workerNum), uint64(n)))
					r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

					results, err := wClient.ObfuscateBatch(ctx, id, order)
					if err != nil {
						atomic.AddInt64(&workerErrors, 1)
						fmt.Printf("   ❌ Worker %d of session %s failed: %v\n", workerNum+1, id, err)
						return
					}
					for i, key := range order {
						if !seen.record(id, key, results[i]) {
							atomic.AddInt64(&unstable, 1)
						}
					}
				}(w)
			}
			workersWg.Wait()

			if atomic.LoadInt64(&workerErrors) > 0 {
				atomic.AddInt64(&sessionsFailed, 1)
				return
			}

			sessionDuration := time.Since(sessionStart)
			atomic.AddInt64(&totalBatchTime, sessionDuration.Nanoseconds())
			atomic.AddInt64(&sessionsCompleted, 1)
			fmt.Printf("   ✅ Session %s completed in %v\n", id, sessionDuration)
		}()
	}

	sessionsWg.Wait()
	sessionsDuration := time.Since(sessionsStart)

	fmt.Println()
	fmt.Printf("📊 Session Results:\n")
	fmt.Printf("   Completed: %d\n", atomic.LoadInt64(&sessionsCompleted))
	fmt.Printf("   Failed:    %d\n", atomic.LoadInt64(&sessionsFailed))
	fmt.Printf("   Duration:  %v\n", sessionsDuration)
	if completed := atomic.LoadInt64(&sessionsCompleted); completed > 0 {
		fmt.Printf("   Avg time:  %v\n", time.Duration(atomic.LoadInt64(&totalBatchTime)/completed))
	}
	fmt.Println()

	if len(sessionIDs) == 0 {
		return fmt.Errorf("no session could be created")
	}

	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("📋 Phase 2: Repeat Query Load Test\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Println()

	queryInterval := time.Duration(float64(time.Second) / opts.queriesPerSec)
	fmt.Printf("🔍 Running queries at %.1f QPS for %v...\n", opts.queriesPerSec, opts.duration)
	fmt.Printf("   Query interval: %v\n", queryInterval)
	fmt.Println()

	testStart := time.Now()
	ticker := time.NewTicker(queryInterval)
	defer ticker.Stop()
	progressTicker := time.NewTicker(5 * time.Second)
	defer progressTicker.Stop()
	deadline := time.After(opts.duration)

	var queriesWg sync.WaitGroup
loop:
	for {
		select {
		case <-ticker.C:
			id := sessionIDs[rand.IntN(len(sessionIDs))]
			key := keys[rand.IntN(len(keys))]

			queriesWg.Add(1)
			go func() {
				defer queriesWg.Done()
				queryStart := time.Now()

				queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()

				result, err := adminClient.Obfuscate(queryCtx, id, key.Value, key.Bin)
				queryDuration := time.Since(queryStart)
				if err != nil {
					failed := atomic.AddInt64(&queriesFailed, 1)
					if failed <= 5 || failed%100 == 0 {
						fmt.Printf("   ❌ Query failed: session %s, value %d bin %d [%v] - Error: %v\n", id, key.Value, key.Bin, queryDuration, err)
					}
					return
				}
				atomic.AddInt64(&queriesCompleted, 1)
				atomic.AddInt64(&totalQueryTime, queryDuration.Nanoseconds())
				if !seen.record(id, key, result) {
					atomic.AddInt64(&unstable, 1)
					fmt.Printf("   ❌ Unstable answer: session %s, value %d bin %d returned %d\n", id, key.Value, key.Bin, result)
				}
			}()
		case <-progressTicker.C:
			elapsed := time.Since(testStart)
			completed := atomic.LoadInt64(&queriesCompleted)
			failed := atomic.LoadInt64(&queriesFailed)
			fmt.Printf("   ⏱️  Progress: %v elapsed | Queries: %d completed, %d failed\n",
				elapsed.Round(time.Second), completed, failed)
		case <-deadline:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	queriesWg.Wait()
	testDuration := time.Since(testStart)

	totalQueries := atomic.LoadInt64(&queriesCompleted) + atomic.LoadInt64(&queriesFailed)
	fmt.Println()
	fmt.Printf("📊 Query Results:\n")
	fmt.Printf("   Completed:      %d\n", atomic.LoadInt64(&queriesCompleted))
	fmt.Printf("   Failed:         %d\n", atomic.LoadInt64(&queriesFailed))
	fmt.Printf("   Duration:       %v\n", testDuration)
	if totalQueries > 0 {
		fmt.Printf("   Actual QPS:     %.2f\n", float64(totalQueries)/testDuration.Seconds())
	}
	if completed := atomic.LoadInt64(&queriesCompleted); completed > 0 {
		fmt.Printf("   Avg query time: %v\n", time.Duration(atomic.LoadInt64(&totalQueryTime)/completed))
	}
	fmt.Println()

	if opts.dropWhenFinished {
		for _, id := range sessionIDs {
			if err := adminClient.DropSession(ctx, id); err != nil {
				fmt.Printf("   ⚠️  Failed to drop session %s: %v\n", id, err)
			}
		}
	}

	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("📋 Load Test Summary\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("  Sessions completed:  %d\n", atomic.LoadInt64(&sessionsCompleted))
	fmt.Printf("  Sessions failed:     %d\n", atomic.LoadInt64(&sessionsFailed))
	fmt.Printf("  Total queries:       %d\n", totalQueries)
	fmt.Printf("  Unstable answers:    %d\n", atomic.LoadInt64(&unstable))
	fmt.Println()

	if atomic.LoadInt64(&sessionsFailed) == 0 && atomic.LoadInt64(&queriesFailed) == 0 && atomic.LoadInt64(&unstable) == 0 {
		fmt.Printf("✅ Load test passed!\n")
		return nil
	}
	fmt.Printf("⚠️  Load test completed with some failures\n")
	return fmt.Errorf("load test failed")
}
