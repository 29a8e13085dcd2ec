// Command archive performs one archival pass: every partition older than the
// retention window is exported to S3 as parquet, verified, and dropped from
// the hot store. Meant to be invoked by an external scheduler (weekly cron);
// running it more or less often is safe, eligibility gates everything.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"muni-pipeline/internal/archive"
	"muni-pipeline/internal/config"
	"muni-pipeline/internal/metrics"
	"muni-pipeline/internal/objectstore/s3"
	"muni-pipeline/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.S3Bucket == "" {
		log.Fatalf("S3_BUCKET must be set")
	}

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

	cold, err := s3.New(ctx, s3.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		log.Fatalf("s3 error: %v", err)
	}
	defer cold.Close()

	// Archival runs can take minutes on a backlog; expose progress counters
	// for the duration when an address is configured.
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.FetchInterval, cfg.RetentionWeeks)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	arch := archive.New(hot, cold, cfg.RetentionWeeks, mcol)
	res, err := arch.Run(ctx, time.Now().In(cfg.Location))
	log.Printf("archival run: %d partition(s) archived (%d rows), %d failed",
		res.Archived, res.Rows, res.Failed)
	if err != nil {
		log.Printf("archival errors: %v", err)
		os.Exit(1)
	}
}
