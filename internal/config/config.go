package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultFeedURL  = "http://api.511.org/transit/vehiclepositions"
	defaultAgency   = "SF"
	defaultTimeZone = "America/Los_Angeles"
)

type Config struct {
	DatabaseURL string

	FeedURL       string
	FeedAPIKey    string
	FeedAgency    string
	FetchInterval time.Duration
	FetchTimeout  time.Duration
	CycleTimeout  time.Duration

	RetentionWeeks int

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool

	NATSURL     string
	MetricsAddr string

	// Location is the canonical zone every timestamp is normalized to;
	// partition keys depend on it.
	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.FeedURL = getenvDefault("FEED_URL", defaultFeedURL)
	cfg.FeedAPIKey = firstNonEmpty(os.Getenv("MUNI_API_KEY"), os.Getenv("FEED_API_KEY"))
	cfg.FeedAgency = getenvDefault("FEED_AGENCY", defaultAgency)

	// Feed fetch interval (seconds)
	if v := os.Getenv("FETCH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid FETCH_INTERVAL_SEC: %q", v)
		}
		cfg.FetchInterval = time.Duration(sec) * time.Second
	} else {
		cfg.FetchInterval = 15 * time.Second
	}

	// Per-fetch timeout (seconds); a slow fetch fails the cycle, the next
	// cycle is the retry.
	if v := os.Getenv("FETCH_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid FETCH_TIMEOUT_SEC: %q", v)
		}
		cfg.FetchTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.FetchTimeout = 10 * time.Second
	}

	// Whole-cycle deadline (seconds): fetch, decode and commit must all fit,
	// so a hung hot-store write fails the cycle instead of stalling the loop.
	if v := os.Getenv("CYCLE_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid CYCLE_TIMEOUT_SEC: %q", v)
		}
		cfg.CycleTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.CycleTimeout = cfg.FetchTimeout + 20*time.Second
	}
	if cfg.CycleTimeout < cfg.FetchTimeout {
		return nil, fmt.Errorf("CYCLE_TIMEOUT_SEC must be at least FETCH_TIMEOUT_SEC")
	}

	// Retention window (weeks)
	if v := os.Getenv("RETENTION_WEEKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RETENTION_WEEKS: %q", v)
		}
		cfg.RetentionWeeks = n
	} else {
		cfg.RetentionWeeks = 4
	}

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Region = getenvDefault("S3_REGION", os.Getenv("AWS_REGION"))
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKeyID = firstNonEmpty(os.Getenv("S3_ACCESS_KEY_ID"), os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.S3SecretKey = firstNonEmpty(os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.S3UsePathStyle = boolEnv("S3_USE_PATH_STYLE")

	// Live fanout; empty disables NATS entirely.
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Canonical time zone. Deliberately not the ambient TZ variable:
	// container images set that freely, and partition boundaries must not
	// move with the host environment.
	tzName := getenvDefault("CANONICAL_TZ", defaultTimeZone)
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid CANONICAL_TZ: %v", err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func boolEnv(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
