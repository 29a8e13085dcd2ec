package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muni-pipeline/internal/feed"
	"muni-pipeline/internal/partition"
	"muni-pipeline/internal/publisher"
	"muni-pipeline/internal/store"
)

type fakeFetcher struct {
	records []feed.VehiclePosition
	skipped int
	err     error
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context) ([]feed.VehiclePosition, int, error) {
	return f.records, f.skipped, f.err
}

type writtenBatch struct {
	key     partition.Key
	records []feed.VehiclePosition
}

type fakeWriter struct {
	batches []writtenBatch
	err     error
}

func (w *fakeWriter) InsertBatch(ctx context.Context, key partition.Key, records []feed.VehiclePosition) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.batches = append(w.batches, writtenBatch{key: key, records: records})
	return len(records), nil
}

type fakePub struct {
	msgs []publisher.PositionMessage
}

func (p *fakePub) PublishPosition(msg publisher.PositionMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func zone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func rec(vehicleID string, ts time.Time, active bool) feed.VehiclePosition {
	r := feed.VehiclePosition{VehicleID: vehicleID, Timestamp: ts, Active: active}
	if active {
		trip := "trip-" + vehicleID
		route := "14R"
		r.TripID = &trip
		r.RouteID = &route
	}
	return r
}

func TestCycleWritesDecodedBatch(t *testing.T) {
	loc := zone(t)
	ts := time.Date(2025, 3, 5, 12, 0, 0, 0, loc)

	f := &fakeFetcher{
		records: []feed.VehiclePosition{
			rec("1001", ts, true),
			rec("1002", ts, true),
			rec("1003", ts, false),
		},
		skipped: 1,
	}
	w := &fakeWriter{}

	res, err := New(f, w, nil, nil).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Written: 3, Skipped: 1}, res)

	require.Len(t, w.batches, 1)
	assert.Equal(t, partition.Key{Year: 2025, Week: 10}, w.batches[0].key)
	assert.Len(t, w.batches[0].records, 3)
}

func TestCycleSplitsBatchAcrossWeekBoundary(t *testing.T) {
	loc := zone(t)
	// Sunday 23:59 of W10 and Monday 00:01 of W11
	sunday := time.Date(2025, 3, 9, 23, 59, 0, 0, loc)
	monday := time.Date(2025, 3, 10, 0, 1, 0, 0, loc)

	f := &fakeFetcher{records: []feed.VehiclePosition{
		rec("2001", monday, true),
		rec("2002", sunday, true),
	}}
	w := &fakeWriter{}

	res, err := New(f, w, nil, nil).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)

	require.Len(t, w.batches, 2)
	// older week committed first
	assert.Equal(t, partition.Key{Year: 2025, Week: 10}, w.batches[0].key)
	assert.Equal(t, partition.Key{Year: 2025, Week: 11}, w.batches[1].key)
	assert.Equal(t, "2002", w.batches[0].records[0].VehicleID)
	assert.Equal(t, "2001", w.batches[1].records[0].VehicleID)
}

func TestCycleFetchFailureWritesNothing(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: status 503", feed.ErrUnavailable)}
	w := &fakeWriter{}

	_, err := New(f, w, nil, nil).Cycle(context.Background())
	assert.ErrorIs(t, err, feed.ErrUnavailable)
	assert.Empty(t, w.batches)
}

func TestCycleWriteFailurePropagates(t *testing.T) {
	loc := zone(t)
	f := &fakeFetcher{records: []feed.VehiclePosition{
		rec("1001", time.Date(2025, 3, 5, 12, 0, 0, 0, loc), true),
	}}
	w := &fakeWriter{err: fmt.Errorf("%w: commit: connection reset", store.ErrWrite)}

	_, err := New(f, w, nil, nil).Cycle(context.Background())
	assert.ErrorIs(t, err, store.ErrWrite)
}

// blockingWriter stalls like a black-holed DB connection: it only returns
// once the caller's context gives up.
type blockingWriter struct{}

func (w *blockingWriter) InsertBatch(ctx context.Context, key partition.Key, records []feed.VehiclePosition) (int, error) {
	<-ctx.Done()
	return 0, fmt.Errorf("%w: %v", store.ErrWrite, ctx.Err())
}

func TestCycleDeadlineUnblocksStalledWrite(t *testing.T) {
	loc := zone(t)
	f := &fakeFetcher{records: []feed.VehiclePosition{
		rec("1001", time.Date(2025, 3, 5, 12, 0, 0, 0, loc), true),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := New(f, &blockingWriter{}, nil, nil).Cycle(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, store.ErrWrite)
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not return after its deadline expired")
	}
}

func TestCycleEmptySnapshot(t *testing.T) {
	f := &fakeFetcher{skipped: 2}
	w := &fakeWriter{}

	res, err := New(f, w, nil, nil).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Written: 0, Skipped: 2}, res)
	assert.Empty(t, w.batches)
}

func TestCyclePublishesActivePositionsOnly(t *testing.T) {
	loc := zone(t)
	ts := time.Date(2025, 3, 5, 12, 0, 0, 0, loc)

	f := &fakeFetcher{records: []feed.VehiclePosition{
		rec("1001", ts, true),
		rec("1002", ts, false), // deadheading, not published
		rec("1003", ts, true),
	}}
	w := &fakeWriter{}
	pub := &fakePub{}

	_, err := New(f, w, pub, nil).Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "1001", pub.msgs[0].VehicleID)
	assert.Equal(t, "trip-1001", pub.msgs[0].TripID)
	assert.Equal(t, "14R", pub.msgs[0].RouteID)
	assert.Equal(t, "1003", pub.msgs[1].VehicleID)
}
