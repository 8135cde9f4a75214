// Command shopguard-loadtest drives the lockout, rate-limit and token paths
// of an Engine from many goroutines and prints latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard"
	"github.com/yldrmabdullah/shopguard/ratelimit"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of distinct accounts")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		threshold   = flag.Int("threshold", 5, "lockout threshold")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := shopguard.DefaultConfig()
	cfg.Token.Secret = []byte("loadtest-signing-secret-0123456789abcdef")
	cfg.Lockout.Threshold = *threshold
	cfg.RateLimit.Limit = 1 << 20
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := shopguard.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	emails := make([]string, *accounts)
	tokens := make([]string, *accounts)
	fmt.Printf("issuing %d tokens...\n", *accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("shopper-%d@example.com", i)
		tok, _, err := engine.IssueToken(ctx, fmt.Sprintf("u-%d", i), emails[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = tok
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var locked atomic.Int64
	failure := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		st, err := engine.RecordAuthFailure(ctx, emails[r.Intn(len(emails))])
		if st.Locked {
			locked.Add(1)
		}
		return err
	})
	status := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		_, err := engine.IsAccountLocked(ctx, emails[r.Intn(len(emails))])
		return err
	})
	allow := runPhase(*ops, *concurrency, 4093, func(r *rand.Rand) error {
		_, err := engine.Allow(ctx, ratelimit.Signals{UserID: fmt.Sprintf("u-%d", r.Intn(len(emails)))})
		return err
	})
	verify := runPhase(*ops, *concurrency, 2039, func(r *rand.Rand) error {
		_, err := engine.VerifyToken(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	fmt.Println("---- results ----")
	printStats("record_failure", failure)
	printStats("lock_status", status)
	printStats("rate_allow", allow)
	printStats("verify_token", verify)
	fmt.Printf("locked results: %d\n", locked.Load())

	snap := engine.MetricsSnapshot()
	fmt.Printf("lockouts tripped: %d\n", snap.Counters[shopguard.MetricLockoutTripped])
}

// runPhase spreads ops calls of op across concurrency workers and collects
// the latency of each call.
func runPhase(ops, concurrency int, seed int64, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				if int(atomic.AddInt64(&cursor, 1))-1 >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
