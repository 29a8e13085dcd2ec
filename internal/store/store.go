// Package store is the hot-store client: a Postgres table range-partitioned
// by timestamp, one partition per ISO week, plus a catalog of the partitions
// that exist so retention never has to reverse-parse table names.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store owns one database handle. Construct with Open, close with Close;
// callers control the lifecycle so tests can build isolated instances.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

func Open(dsn string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Init creates the parent vehicles table and the partition catalog. Safe to
// run at every startup.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			id BIGINT GENERATED ALWAYS AS IDENTITY,
			vehicle_id VARCHAR(50) NOT NULL,
			route_id VARCHAR(50),
			trip_id VARCHAR(100),
			direction_id INT,
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION,
			bearing DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			stop_id VARCHAR(50),
			current_stop_sequence INT,
			current_status SMALLINT,
			occupancy_status SMALLINT,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (id, timestamp)
		) PARTITION BY RANGE (timestamp)`,
		`CREATE TABLE IF NOT EXISTS vehicle_partitions (
			name TEXT PRIMARY KEY,
			year INT NOT NULL,
			week INT NOT NULL,
			range_start TIMESTAMPTZ NOT NULL,
			range_end TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (year, week)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
