// Package ingest runs one fetch-decode-write cycle of the pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"muni-pipeline/internal/feed"
	"muni-pipeline/internal/metrics"
	"muni-pipeline/internal/partition"
	"muni-pipeline/internal/publisher"
	"muni-pipeline/internal/store"
)

// Fetcher yields one decoded snapshot per call.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) ([]feed.VehiclePosition, int, error)
}

// Writer appends one batch to its hot-store partition atomically.
type Writer interface {
	InsertBatch(ctx context.Context, key partition.Key, records []feed.VehiclePosition) (int, error)
}

// Publisher fans out positions to live consumers. May be nil.
type Publisher interface {
	PublishPosition(msg publisher.PositionMessage) error
}

// Ingester wires the cycle's collaborators. All are injected so tests can
// run cycles against fakes.
type Ingester struct {
	feed    Fetcher
	writer  Writer
	pub     Publisher
	metrics *metrics.Collector
}

func New(f Fetcher, w Writer, pub Publisher, m *metrics.Collector) *Ingester {
	return &Ingester{feed: f, writer: w, pub: pub, metrics: m}
}

// Result summarizes one completed cycle.
type Result struct {
	Written int
	Skipped int
}

// Cycle fetches one snapshot, decodes it, and commits the records grouped by
// their owning weekly partition. A fetch failure aborts the cycle with no
// writes; a write failure rolls back that partition's batch whole. Either
// way the next scheduled cycle is the retry.
func (ing *Ingester) Cycle(ctx context.Context) (Result, error) {
	start := time.Now()
	if ing.metrics != nil {
		ing.metrics.Cycles.Inc()
	}

	records, skipped, err := ing.feed.FetchSnapshot(ctx)
	if err != nil {
		ing.countErr(err)
		return Result{}, err
	}
	res := Result{Skipped: skipped}
	if ing.metrics != nil {
		ing.metrics.EntitiesSkipped.Add(float64(skipped))
	}
	if len(records) == 0 {
		log.Printf("ingest: empty snapshot, %d entities skipped", skipped)
		return res, nil
	}

	// A snapshot polled near Sunday midnight can straddle two ISO weeks, so
	// records are grouped per partition and each group commits atomically.
	groups := make(map[partition.Key][]feed.VehiclePosition)
	for _, r := range records {
		k := partition.KeyFor(r.Timestamp)
		groups[k] = append(groups[k], r)
	}
	keys := make([]partition.Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	for _, k := range keys {
		n, err := ing.writer.InsertBatch(ctx, k, groups[k])
		if err != nil {
			ing.countErr(err)
			return res, fmt.Errorf("write batch to %s: %w", k.Name(), err)
		}
		res.Written += n
	}

	if ing.metrics != nil {
		ing.metrics.RecordsWritten.Add(float64(res.Written))
		ing.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	ing.publish(records)

	log.Printf("ingest: wrote %d records (%d skipped) across %d partition(s)", res.Written, skipped, len(keys))
	return res, nil
}

// publish fans out active positions after a successful commit. Best-effort.
func (ing *Ingester) publish(records []feed.VehiclePosition) {
	if ing.pub == nil {
		return
	}
	for i := range records {
		r := &records[i]
		if !r.Active {
			continue
		}
		msg := publisher.PositionMessage{
			VehicleID: r.VehicleID,
			Timestamp: r.Timestamp,
			Lat:       r.Lat,
			Lon:       r.Lon,
			Bearing:   r.Bearing,
			SpeedMps:  r.Speed,
		}
		if r.RouteID != nil {
			msg.RouteID = *r.RouteID
		}
		if r.TripID != nil {
			msg.TripID = *r.TripID
		}
		if err := ing.pub.PublishPosition(msg); err != nil {
			log.Printf("ingest: publish %s: %v", r.VehicleID, err)
		}
	}
}

func (ing *Ingester) countErr(err error) {
	if ing.metrics == nil {
		return
	}
	ing.metrics.CycleErrs.WithLabelValues(stage(err)).Inc()
}

func stage(err error) string {
	switch {
	case errors.Is(err, feed.ErrUnavailable):
		return "fetch"
	case errors.Is(err, store.ErrPartitionCreate), errors.Is(err, store.ErrWrite):
		return "write"
	default:
		return "decode"
	}
}
