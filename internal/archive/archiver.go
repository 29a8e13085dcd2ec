// Package archive tiers aged hot-store partitions out to the cold store.
//
// The protocol per partition is strictly ordered: read, encode, upload,
// verify, and only then drop. Rows never leave the hot store before the
// cold-store object is positively confirmed, so an interruption anywhere
// leaves the partition intact and the next run simply re-executes the whole
// sequence against the same deterministic object key.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"muni-pipeline/internal/metrics"
	"muni-pipeline/internal/objectstore"
	"muni-pipeline/internal/partition"
	"muni-pipeline/internal/store"
)

var (
	// ErrExport marks a failure reading or encoding the partition.
	ErrExport = errors.New("partition export failed")

	// ErrUpload marks a failed cold-store upload.
	ErrUpload = errors.New("archive upload failed")

	// ErrVerify marks an upload that could not be positively confirmed.
	// Treated like ErrUpload: the partition stays in the hot store.
	ErrVerify = errors.New("archive verification failed")
)

// DefaultRetentionWeeks is the minimum age before a partition is archived.
const DefaultRetentionWeeks = 4

// HotStore is the slice of the store the archiver needs.
type HotStore interface {
	StalePartitions(ctx context.Context, now time.Time, retentionWeeks int) ([]partition.Key, error)
	ReadPartition(ctx context.Context, key partition.Key) ([]store.Row, error)
	DropPartition(ctx context.Context, key partition.Key) error
}

// Archiver moves stale partitions to the cold store.
type Archiver struct {
	hot            HotStore
	cold           objectstore.Store
	retentionWeeks int
	metrics        *metrics.Collector
}

func New(hot HotStore, cold objectstore.Store, retentionWeeks int, m *metrics.Collector) *Archiver {
	if retentionWeeks <= 0 {
		retentionWeeks = DefaultRetentionWeeks
	}
	return &Archiver{hot: hot, cold: cold, retentionWeeks: retentionWeeks, metrics: m}
}

// Result aggregates one archival run.
type Result struct {
	Archived int // partitions exported, verified and dropped
	Rows     int // total rows across archived partitions
	Failed   int // partitions left in the hot store after an error
}

// Run archives every partition eligible at now, oldest first. One
// partition's failure is recorded and the run moves on, so a backlog always
// makes progress. The returned error joins the per-partition failures; the
// Result is valid either way.
func (a *Archiver) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	keys, err := a.hot.StalePartitions(ctx, now, a.retentionWeeks)
	if err != nil {
		return res, fmt.Errorf("scan stale partitions: %w", err)
	}
	if len(keys) == 0 {
		return res, nil
	}

	var errs []error
	for _, key := range keys {
		start := time.Now()
		n, err := a.archiveOne(ctx, key)
		if err != nil {
			log.Printf("archive %s: %v", key, err)
			res.Failed++
			if a.metrics != nil {
				a.metrics.ArchiveErrs.Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		res.Archived++
		res.Rows += n
		if a.metrics != nil {
			a.metrics.PartitionsArchived.Inc()
			a.metrics.RowsArchived.Add(float64(n))
			a.metrics.ArchiveDuration.Observe(time.Since(start).Seconds())
		}
		log.Printf("archived %s: %d rows -> %s", key.Name(), n, key.ObjectKey())
	}
	return res, errors.Join(errs...)
}

// archiveOne runs the export-then-drop protocol for a single partition and
// returns the number of rows archived.
func (a *Archiver) archiveOne(ctx context.Context, key partition.Key) (int, error) {
	rows, err := a.hot.ReadPartition(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: read: %v", ErrExport, err)
	}
	payload, err := Encode(rows)
	if err != nil {
		return 0, fmt.Errorf("%w: encode: %v", ErrExport, err)
	}

	objKey := key.ObjectKey()
	err = a.cold.Put(ctx, objKey, bytes.NewReader(payload), int64(len(payload)), "application/vnd.apache.parquet")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	meta, err := a.cold.Head(ctx, objKey)
	if err != nil {
		return 0, fmt.Errorf("%w: head: %v", ErrVerify, err)
	}
	if meta.Size != int64(len(payload)) {
		return 0, fmt.Errorf("%w: object size %d, uploaded %d bytes", ErrVerify, meta.Size, len(payload))
	}

	// The object is confirmed durable; only now may the hot copy go.
	if err := a.hot.DropPartition(ctx, key); err != nil {
		return 0, fmt.Errorf("drop after verified upload: %w", err)
	}
	return len(rows), nil
}
