// Package partition maps timestamps to weekly hot-store partitions.
//
// The hot store is range-partitioned by timestamp, one partition per ISO
// week. Everything here is pure calendar arithmetic: the same (year, week)
// always yields the same partition name, the same table bounds and the same
// cold-storage object key, so concurrent callers and retried jobs converge.
package partition

import (
	"fmt"
	"regexp"
	"time"
)

// ParentTable is the partitioned parent table all weekly partitions attach to.
const ParentTable = "vehicles"

// NamePattern is the shape every partition identifier must have before it is
// interpolated into DDL. Names are generated, never user input, but DDL
// cannot be parameterized, so anything that does not match is rejected.
var NamePattern = regexp.MustCompile(`^vehicles_partition_[0-9]{4}_w[0-9]{2}$`)

// Key identifies one weekly partition by ISO year and week number.
type Key struct {
	Year int
	Week int
}

// KeyFor returns the partition key owning t. The timestamp is interpreted in
// its own location, so callers must normalize to the canonical zone first.
func KeyFor(t time.Time) Key {
	y, w := t.ISOWeek()
	return Key{Year: y, Week: w}
}

// Name returns the hot-store table name for this key. Week numbers are
// zero-padded so lexical order matches chronological order within a year.
func (k Key) Name() string {
	return fmt.Sprintf("vehicles_partition_%d_w%02d", k.Year, k.Week)
}

// ObjectKey returns the cold-storage key for this partition's exported
// payload. Keyed by partition identity, not export time: re-exports overwrite.
func (k Key) ObjectKey() string {
	return fmt.Sprintf("vehicle_records/%d/%02d.parquet", k.Year, k.Week)
}

// Bounds returns the half-open [start, end) range of this ISO week in loc:
// Monday 00:00 through the following Monday 00:00.
func (k Key) Bounds(loc *time.Location) (start, end time.Time) {
	// January 4 is always inside ISO week 1 of its year.
	jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, loc)
	wd := int(jan4.Weekday())
	if wd == 0 { // Sunday
		wd = 7
	}
	week1Monday := jan4.AddDate(0, 0, 1-wd)
	start = week1Monday.AddDate(0, 0, (k.Week-1)*7)
	end = start.AddDate(0, 0, 7)
	return start, end
}

// Before reports whether k is an earlier week than other.
func (k Key) Before(other Key) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Week < other.Week
}

func (k Key) String() string {
	return fmt.Sprintf("%d-W%02d", k.Year, k.Week)
}
