package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Backend         string `validate:"oneof=postgres memory"`
	DatabaseURL     string `validate:"required_if=Backend postgres"`
	StoreDatabase   string
	NATSURL         string
	IngestSubject   string `validate:"required_with=NATSURL"`
	MergedSubject   string
	LogNATSSubjects bool
	MetricsAddr     string
	APIAddr         string
	Location        *time.Location `validate:"required"`
	NodeThreshold   int            `validate:"gte=0"`
	CatalogFile     string         `validate:"omitempty,file"`
	IngestQueue     int            `validate:"gte=1"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Backend = strings.ToLower(getenvDefault("STORE_BACKEND", BackendPostgres))

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && cfg.Backend == BackendPostgres {
		cfg.DatabaseURL = dsnFromParts()
	}
	cfg.StoreDatabase = os.Getenv("STORE_DATABASE")

	// An empty NATS_URL disables the ingest subscription; batches then arrive
	// only through the HTTP ingest endpoint.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.IngestSubject = getenvDefault("NATS_INGEST_SUBJECT", "timetable.batches.>")
	cfg.MergedSubject = getenvDefault("NATS_MERGED_SUBJECT", "canon.merged")
	cfg.LogNATSSubjects = truthy(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.APIAddr = getenvDefault("API_ADDR", ":8080")

	loc, err := time.LoadLocation(getenvDefault("TZ", "Europe/Berlin"))
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %w", err)
	}
	cfg.Location = loc

	if cfg.NodeThreshold, err = getenvInt("NODE_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if cfg.IngestQueue, err = getenvInt("INGEST_QUEUE", 16); err != nil {
		return nil, err
	}
	cfg.CatalogFile = os.Getenv("CATALOG_FILE")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func dsnFromParts() string {
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	userinfo := urlEscape(user)
	if pass := os.Getenv("PGPASSWORD"); pass != "" {
		userinfo += ":" + urlEscape(pass)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", userinfo, host, port, db, sslmode)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
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
