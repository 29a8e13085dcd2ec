package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muni-pipeline/internal/feed"
	"muni-pipeline/internal/partition"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrPartitionCreate marks a partition DDL failure other than "already
	// exists". The current ingestion cycle must propagate it, not drop the batch.
	ErrPartitionCreate = errors.New("partition create failed")

	// ErrWrite marks a batch commit failure. The whole batch rolled back;
	// the next cycle retries it whole.
	ErrWrite = errors.New("batch write failed")
)

// Row is one stored observation, as read back from a partition.
type Row struct {
	ID int64
	feed.VehiclePosition
}

const pgLayout = "2006-01-02 15:04:05.000000-07:00"

// EnsurePartition creates the weekly partition and its indexes if they do not
// exist, and records it in the catalog. Idempotent and safe under concurrent
// callers: the DDL itself is IF NOT EXISTS and the duplicate-object SQLSTATEs
// raised when two sessions race past the existence check are swallowed.
func (s *Store) EnsurePartition(ctx context.Context, key partition.Key) error {
	name := key.Name()
	if !partition.NamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid partition name %q", ErrPartitionCreate, name)
	}
	start, end := key.Bounds(s.loc)

	// DDL cannot take bind parameters; the name is whitelist-validated above
	// and the bounds are rendered from time.Time, never from input strings.
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF vehicles FOR VALUES FROM ('%s') TO ('%s')`,
			name, start.Format(pgLayout), end.Format(pgLayout)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_route_idx ON %s (route_id)`, name, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_time_idx ON %s (timestamp)`, name, name),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			if isDuplicateObject(err) {
				continue // another caller won the race
			}
			return fmt.Errorf("%w: %s: %v", ErrPartitionCreate, name, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicle_partitions (name, year, week, range_start, range_end)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO NOTHING`,
		name, key.Year, key.Week, start, end)
	if err != nil {
		return fmt.Errorf("%w: catalog insert for %s: %v", ErrPartitionCreate, name, err)
	}
	return nil
}

// isDuplicateObject reports whether err is Postgres telling us the table or
// index already exists (42P07) or that two concurrent creates collided on a
// catalog uniqueness check (23505).
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P07" || pgErr.Code == "23505"
	}
	return false
}

// InsertBatch appends records to the hot store in one transaction: all rows
// become visible on commit or none do. The owning partition is ensured first.
// Returns the number of rows written.
func (s *Store) InsertBatch(ctx context.Context, key partition.Key, records []feed.VehiclePosition) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.EnsurePartition(ctx, key); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicles (
			vehicle_id, route_id, trip_id, direction_id,
			lat, lon, bearing, speed,
			stop_id, current_stop_sequence, current_status, occupancy_status,
			active, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %v", ErrWrite, err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.ExecContext(ctx,
			r.VehicleID, r.RouteID, r.TripID, r.DirectionID,
			r.Lat, r.Lon, r.Bearing, r.Speed,
			r.StopID, r.StopSequence, r.CurrentStatus, r.OccupancyStatus,
			r.Active, r.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("%w: insert vehicle %s: %v", ErrWrite, r.VehicleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrWrite, err)
	}
	return len(records), nil
}

// StalePartitions lists partitions eligible for archival at now, oldest
// first. Eligibility is whole-week: a partition is stale iff its week is at
// or before the week containing now minus the retention window. Recency is
// the only gate; write activity is not tracked.
func (s *Store) StalePartitions(ctx context.Context, now time.Time, retentionWeeks int) ([]partition.Key, error) {
	cutKey := partition.KeyFor(now.In(s.loc).AddDate(0, 0, -7*retentionWeeks))
	_, cutoff := cutKey.Bounds(s.loc)

	rows, err := s.db.QueryContext(ctx,
		`SELECT year, week FROM vehicle_partitions WHERE range_end <= $1 ORDER BY range_end ASC`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale partitions: %w", err)
	}
	defer rows.Close()

	var keys []partition.Key
	for rows.Next() {
		var k partition.Key
		if err := rows.Scan(&k.Year, &k.Week); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReadPartition returns the full contents of one partition, ordered by id so
// exports are reproducible.
func (s *Store) ReadPartition(ctx context.Context, key partition.Key) ([]Row, error) {
	name := key.Name()
	if !partition.NamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid partition name %q", name)
	}
	q := fmt.Sprintf(`
		SELECT id, vehicle_id, route_id, trip_id, direction_id,
		       lat, lon, bearing, speed,
		       stop_id, current_stop_sequence, current_status, occupancy_status,
		       active, timestamp
		FROM %s ORDER BY id`, name)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                       Row
			routeID, tripID, stopID sql.NullString
			directionID, stopSeq    sql.NullInt64
			status, occupancy       sql.NullInt64
			lat, lon, bearing, spd  sql.NullFloat64
			ts                      time.Time
		)
		err := rows.Scan(&r.ID, &r.VehicleID, &routeID, &tripID, &directionID,
			&lat, &lon, &bearing, &spd,
			&stopID, &stopSeq, &status, &occupancy,
			&r.Active, &ts)
		if err != nil {
			return nil, err
		}
		r.Timestamp = ts.In(s.loc)
		r.RouteID = nullStr(routeID)
		r.TripID = nullStr(tripID)
		r.StopID = nullStr(stopID)
		r.DirectionID = nullInt(directionID)
		r.StopSequence = nullInt(stopSeq)
		r.CurrentStatus = nullInt(status)
		r.OccupancyStatus = nullInt(occupancy)
		r.Lat = nullFloat(lat)
		r.Lon = nullFloat(lon)
		r.Bearing = nullFloat(bearing)
		r.Speed = nullFloat(spd)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DropPartition detaches the partition from the hot store and removes its
// catalog row in one transaction. Only the archiver calls this, and only
// after the export is verified durable.
func (s *Store) DropPartition(ctx context.Context, key partition.Key) error {
	name := key.Name()
	if !partition.NamePattern.MatchString(name) {
		return fmt.Errorf("invalid partition name %q", name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("drop partition %s: begin: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
		return fmt.Errorf("drop partition %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_partitions WHERE name = $1`, name); err != nil {
		return fmt.Errorf("drop partition %s: catalog delete: %w", name, err)
	}
	return tx.Commit()
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
