package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"muni-pipeline/internal/config"
	"muni-pipeline/internal/feed"
	"muni-pipeline/internal/ingest"
	"muni-pipeline/internal/metrics"
	"muni-pipeline/internal/publisher"
	"muni-pipeline/internal/store"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hot, err := store.Open(cfg.DatabaseURL, cfg.Location)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer hot.Close()
	if err := hot.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := hot.Init(ctx); err != nil {
		log.Fatalf("db init error: %v", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.FetchInterval, cfg.RetentionWeeks)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Optional NATS fanout of live positions
	var pub ingest.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer np.Close()
		pub = np
	}

	client, err := feed.NewClient(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedAgency, cfg.FetchTimeout, cfg.Location)
	if err != nil {
		log.Fatalf("feed client error: %v", err)
	}

	ing := ingest.New(client, hot, pub, mcol)

	log.Printf("ingesting %s every %s (zone %s)", cfg.FeedURL, cfg.FetchInterval, cfg.Location)
	runCycle(ctx, ing, cfg.CycleTimeout)

	// Cycles run serially in this loop, so an overlong cycle simply absorbs
	// the ticks it overlapped; a failed cycle is retried by the next tick.
	ticker := time.NewTicker(cfg.FetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if metricsSrvCancel != nil {
				metricsSrvCancel()
			}
			log.Println("shutdown complete")
			return
		case <-ticker.C:
			runCycle(ctx, ing, cfg.CycleTimeout)
		}
	}
}

// runCycle bounds one cycle with its own deadline. A write stuck on a dead
// connection expires the cycle rather than wedging the ticker loop; the next
// tick is the retry.
func runCycle(ctx context.Context, ing *ingest.Ingester, budget time.Duration) {
	if ctx.Err() != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if _, err := ing.Cycle(cctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("cycle error: %v", err)
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()  { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc() { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
