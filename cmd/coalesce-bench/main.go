package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-coalesce/v1/adapter"
	"github.com/mirkobrombin/go-coalesce/v1/core"
	"github.com/mirkobrombin/go-coalesce/v1/metrics"
	"github.com/mirkobrombin/go-coalesce/v1/presets"
)

var (
	backend     = flag.String("backend", "memory", "memory, ristretto, bigcache, redis or nats")
	redisAddr   = flag.String("redis-addr", "localhost:6379", "Redis address")
	natsURL     = flag.String("nats-url", nats.DefaultURL, "NATS URL (JetStream enabled)")
	concurrency = flag.Int("c", 50, "Concurrent callers per round")
	rounds      = flag.Int("rounds", 10, "Number of stampede rounds")
	work        = flag.Duration("work", 100*time.Millisecond, "Simulated producer latency")
	ttl         = flag.Duration("ttl", time.Minute, "Value TTL")
	staleTTL    = flag.Duration("stale", 0, "Stale copy TTL, 0 disables it")
	waitTimeout = flag.Duration("wait", core.DefaultWaitTimeout, "Wait timeout of callers losing the lock")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :2112)")
	traceOut    = flag.Bool("trace", false, "Print OpenTelemetry spans to stdout")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	var copts []core.Option
	if *traceOut {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatal(err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(ctx) }()
		otel.SetTracerProvider(tp)
		copts = append(copts, core.WithTracing())
	}

	if *metricsAddr != "" {
		reg := metrics.NewRegistry()
		metrics.RegisterCoreMetrics(reg)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() { log.Fatal(http.ListenAndServe(*metricsAddr, nil)) }()
	}

	c, cleanup, err := build(*backend, copts)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	log.Printf("Starting stampede: backend=%s rounds=%d concurrency=%d work=%v", *backend, *rounds, *concurrency, *work)

	var runs, hits, empty atomic.Int64
	producer := func(ctx context.Context) ([]byte, bool, error) {
		runs.Add(1)
		select {
		case <-time.After(*work):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		return []byte(time.Now().Format(time.RFC3339Nano)), true, nil
	}

	start := time.Now()
	for r := 0; r < *rounds; r++ {
		key := fmt.Sprintf("bench:%d", r)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < *concurrency; i++ {
			g.Go(func() error {
				_, ok, err := c.Fetch(gctx, key, *ttl, producer,
					core.WithStaleTTL(*staleTTL), core.WithWaitTimeout(*waitTimeout))
				if err != nil {
					return err
				}
				if ok {
					hits.Add(1)
				} else {
					empty.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			log.Fatalf("Round %d failed: %v", r, err)
		}
		if err := c.Invalidate(ctx, key); err != nil && !errors.Is(err, core.ErrNotSupported) {
			log.Printf("Invalidate %s: %v", key, err)
		}
	}
	elapsed := time.Since(start)

	calls := int64(*rounds) * int64(*concurrency)
	log.Printf("Finished in %v", elapsed)
	log.Printf("Calls: %d, producer runs: %d (%.2f per round)", calls, runs.Load(), float64(runs.Load())/float64(*rounds))
	log.Printf("Served: %d, no value: %d", hits.Load(), empty.Load())
}

func build(name string, copts []core.Option) (*core.Coalescer[[]byte], func(), error) {
	noop := func() {}
	switch name {
	case "memory":
		c, err := presets.NewInMemory[[]byte](copts...)
		return c, noop, err
	case "ristretto":
		c, store, err := presets.NewRistretto[[]byte](adapter.RistrettoConfig{}, copts...)
		if err != nil {
			return nil, noop, err
		}
		return c, store.Close, nil
	case "bigcache":
		store, err := adapter.NewBigCacheStore[[]byte](10 * time.Minute)
		if err != nil {
			return nil, noop, err
		}
		c, err := core.New[[]byte](store, copts...)
		return c, func() { _ = store.Close() }, err
	case "redis":
		c, err := presets.NewRedis[[]byte](presets.RedisOptions{Addr: *redisAddr}, copts...)
		return c, noop, err
	case "nats":
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			return nil, noop, err
		}
		c, err := presets.NewNATS[[]byte](adapter.NewInMemoryStore[[]byte](), presets.NATSOptions{Conn: nc}, copts...)
		return c, nc.Close, err
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", name)
	}
}
