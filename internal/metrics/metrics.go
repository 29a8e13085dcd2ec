package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Cycles          prometheus.Counter
	CycleErrs       *prometheus.CounterVec // stage label: fetch|decode|write
	RecordsWritten  prometheus.Counter
	EntitiesSkipped prometheus.Counter
	CycleDuration   prometheus.Histogram

	PartitionsArchived prometheus.Counter
	RowsArchived       prometheus.Counter
	ArchiveErrs        prometheus.Counter
	ArchiveDuration    prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	FetchInterval  prometheus.Gauge // seconds
	RetentionWeeks prometheus.Gauge
}

func NewCollector(fetchInterval time.Duration, retentionWeeks int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_cycles_total",
			Help: "Total ingestion cycles attempted.",
		}),
		CycleErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cycle_errors_total",
			Help: "Ingestion cycles failed, by stage.",
		}, []string{"stage"}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_written_total",
			Help: "Vehicle position rows committed to the hot store.",
		}),
		EntitiesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_entities_skipped_total",
			Help: "Feed entities skipped as malformed or empty.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of one fetch-decode-write cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PartitionsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_partitions_total",
			Help: "Partitions exported, verified and dropped.",
		}),
		RowsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_rows_total",
			Help: "Rows written to cold storage.",
		}),
		ArchiveErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_errors_total",
			Help: "Partitions whose archival failed and was deferred.",
		}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archive_partition_duration_seconds",
			Help:    "Duration of one partition's export-upload-verify-drop.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nats_published_total",
			Help: "Total NATS position messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		FetchInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_fetch_interval_seconds",
			Help: "Configured feed fetch interval in seconds.",
		}),
		RetentionWeeks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archive_retention_weeks",
			Help: "Configured retention window in weeks.",
		}),
	}

	reg.MustRegister(
		c.Cycles, c.CycleErrs, c.RecordsWritten, c.EntitiesSkipped, c.CycleDuration,
		c.PartitionsArchived, c.RowsArchived, c.ArchiveErrs, c.ArchiveDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.FetchInterval, c.RetentionWeeks,
	)

	c.FetchInterval.Set(fetchInterval.Seconds())
	c.RetentionWeeks.Set(float64(retentionWeeks))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
