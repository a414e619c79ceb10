// Command hallpass-loadtest drives the navigation engine's Resolve path
// under concurrency and reports throughput and latency percentiles.
// Redis (or embedded miniredis) is the only I/O under measurement: user
// hydration, module checks, and plan fetches are answered in-process.
//
// Two phases run back to back: "resolve" navigates with seeded session
// keys, "restore" navigates with bearer credentials only, forcing a
// session rebuild per operation.
package main

import (
	"context"
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	hallpass "github.com/munihall/hallpass"
	"github.com/munihall/hallpass/credential"
	"github.com/munihall/hallpass/identity"
	"github.com/munihall/hallpass/route"
	"github.com/munihall/hallpass/session"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (resolve + restore)")
		target      = flag.String("route", "permits.detail", "route to resolve")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "hp", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate signing key: %v\n", err)
		os.Exit(1)
	}

	mint, err := credential.NewManager(credential.Config{
		TTL:        24 * time.Hour,
		Method:     credential.MethodEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "credential manager: %v\n", err)
		os.Exit(1)
	}

	routes, err := loadtestRoutes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "routes: %v\n", err)
		os.Exit(1)
	}

	cfg := hallpass.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	cfg.Session.SlidingExpiration = false
	cfg.Session.JitterEnabled = false
	cfg.Session.JitterRange = 0
	cfg.Session.AbsoluteSessionLifetime = 24 * time.Hour
	cfg.Credential.PublicKey = pub

	engine, err := hallpass.New().
		WithConfig(cfg).
		WithRoutes(routes).
		WithRedis(client).
		WithUserProvider(loadUsers{}).
		WithModuleRegistry(loadModules{}).
		WithAPIClient(loadAPI{doc: json.RawMessage(`{"id":"p-1","status":"open"}`)}).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	if _, err := engine.Routes().Lookup(*target); err != nil {
		fmt.Fprintf(os.Stderr, "route %q: %v\n", *target, err)
		os.Exit(2)
	}

	params := map[string]string{}
	names, err := engine.Routes().PathParams(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "route params: %v\n", err)
		os.Exit(2)
	}
	for _, name := range names {
		params[name] = "p-1"
	}

	store := session.NewStore(client, *prefix, false, false, 0)

	keys := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	now := time.Now()
	for i := 0; i < *sessions; i++ {
		key := fmt.Sprintf("sid-%d", i)
		keys[i] = key
		sess := &session.Session{
			Key:            key,
			ActorID:        fmt.Sprintf("u-%d", i),
			MunicipalityID: "mun-load",
			Staff:          true,
			SchemaVersion:  session.CurrentSchemaVersion,
			CreatedAt:      now.Unix(),
			ExpiresAt:      now.Add(24 * time.Hour).Unix(),
		}
		if err := store.Save(ctx, sess, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	tokens := make([]string, *concurrency)
	for w := range tokens {
		token, err := mint.Mint(fmt.Sprintf("w-%d", w), "mun-load", true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mint failed: %v\n", err)
			os.Exit(1)
		}
		tokens[w] = token
	}

	resolveStats := runResolvePhase(ctx, engine, keys, *target, params, *ops, *concurrency)
	restoreStats := runRestorePhase(ctx, engine, tokens, *target, params, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("restore", restoreStats)

	snap := engine.MetricsSnapshot()
	fmt.Println("---- engine counters ----")
	fmt.Printf("proceed=%d redirect=%d superseded=%d hydrations=%d coalesced=%d restored=%d plan_calls=%d plan_failures=%d\n",
		snap.Counters[hallpass.MetricResolveProceed],
		snap.Counters[hallpass.MetricResolveRedirect],
		snap.Counters[hallpass.MetricResolveSuperseded],
		snap.Counters[hallpass.MetricHydrationLoad],
		snap.Counters[hallpass.MetricHydrationCoalesced],
		snap.Counters[hallpass.MetricSessionRestored],
		snap.Counters[hallpass.MetricPlanCallIssued],
		snap.Counters[hallpass.MetricPlanCallFailed],
	)
}

// runResolvePhase navigates with seeded session keys. Workers that land
// on the same session concurrently supersede each other, which is
// counted separately from failures.
func runResolvePhase(ctx context.Context, engine *hallpass.Engine, keys []string, target string, params map[string]string, ops, concurrency int) phaseStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		superseded int64
		latencies  = make([]time.Duration, 0, ops)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(keys))
				opCtx := hallpass.WithSessionKey(ctx, keys[idx])
				t0 := time.Now()
				dec, err := engine.Resolve(opCtx, target, params)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case dec.Superseded():
					atomic.AddInt64(&superseded, 1)
				case !dec.Proceeded():
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures, superseded)
}

// runRestorePhase navigates with a bearer credential and no session
// key, so every operation verifies the credential and writes a fresh
// session.
func runRestorePhase(ctx context.Context, engine *hallpass.Engine, tokens []string, target string, params map[string]string, ops, concurrency int) phaseStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		superseded int64
		latencies  = make([]time.Duration, 0, ops)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			token := tokens[worker%len(tokens)]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				opCtx := hallpass.WithCredential(ctx, token)
				t0 := time.Now()
				dec, err := engine.Resolve(opCtx, target, params)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case dec.Superseded():
					atomic.AddInt64(&superseded, 1)
				case !dec.Proceeded():
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures, superseded)
}

type phaseStats struct {
	total      time.Duration
	ops        int
	failures   int64
	superseded int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
	opsPerS    float64
}

func computeStats(total time.Duration, samples []time.Duration, failures, superseded int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:      total,
		ops:        len(samples),
		failures:   failures,
		superseded: superseded,
		p50:        percentile(samples, 50),
		p95:        percentile(samples, 95),
		p99:        percentile(samples, 99),
		opsPerS:    float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d superseded=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.superseded,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func loadtestRoutes() (*route.Registry, error) {
	reg := route.NewRegistry()
	defs := []route.Route{
		{Name: "login", Path: "/login"},
		{Name: "dashboard", Path: "/"},
		{Name: "permits", Path: "/permits", Module: "permits", Plan: []route.Call{
			{Slot: "summary", Get: "/permits/summary"},
		}},
		{Name: "permits.detail", Path: "/permits/:permit_id", Parent: "permits", Module: "permits", Capability: "view", Plan: []route.Call{
			{Slot: "permit", Get: "/permits/:permit_id"},
			{Slot: "inspections", Get: "/permits/{permit.id}/inspections", DependsOn: []string{"permit"}},
		}},
	}
	for _, rt := range defs {
		if err := reg.Register(rt); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// loadUsers hydrates a wildcard staff record for whatever actor the
// session names, so every gate passes and the run measures the full
// path.
type loadUsers struct{}

func (loadUsers) Load(_ context.Context, sess *hallpass.Session) (*hallpass.UserRecord, error) {
	return &identity.Record{
		ID:             sess.ActorID,
		Name:           "Load Tester",
		MunicipalityID: sess.MunicipalityID,
		Staff:          sess.Staff,
		Capabilities:   []string{"*"},
	}, nil
}

type loadModules struct{}

func (loadModules) HasModule(context.Context, string, string) (bool, error) { return true, nil }

func (loadModules) Municipality(_ context.Context, id string) (*hallpass.Municipality, error) {
	return &hallpass.Municipality{ID: id, Name: "Loadville", Modules: []string{"permits", "inspections"}}, nil
}

// loadAPI answers every plan fetch in-process with the same document.
type loadAPI struct {
	doc json.RawMessage
}

func (a loadAPI) Get(context.Context, string, map[string]string) (json.RawMessage, error) {
	return a.doc, nil
}

func (a loadAPI) Put(context.Context, string, any) (json.RawMessage, error) {
	return nil, nil
}
