package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS canonical_records (
    seq               BIGSERIAL PRIMARY KEY,
    row_digest        CHAR(64) NOT NULL UNIQUE,
    trip_id           TEXT NOT NULL,
    stop_index        TEXT NOT NULL,
    station_id        TEXT NOT NULL,
    station_name      TEXT NOT NULL,
    train_number      TEXT NOT NULL,
    raw_line_guess    TEXT NOT NULL,
    line              TEXT NOT NULL,
    planned_arrival   TIMESTAMPTZ,
    planned_departure TIMESTAMPTZ,
    changed_arrival   TIMESTAMPTZ,
    changed_departure TIMESTAMPTZ,
    platform_planned  TEXT NOT NULL,
    platform_changed  TEXT NOT NULL,
    planned_path      TEXT NOT NULL,
    arrival_path      TEXT NOT NULL,
    departure_path    TEXT NOT NULL,
    arrival_status    TEXT NOT NULL,
    departure_status  TEXT NOT NULL,
    message_status    TEXT NOT NULL,
    priority          INTEGER,
    info              TEXT NOT NULL,
    arrival_delay_m   INTEGER,
    departure_delay_m INTEGER,
    status            TEXT NOT NULL,
    arrival_weekday   TEXT NOT NULL,
    departure_weekday TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS canonical_records_line_idx ON canonical_records (line);
CREATE INDEX IF NOT EXISTS canonical_records_trip_idx ON canonical_records (trip_id);
CREATE TABLE IF NOT EXISTS canonical_trips (
    trip_id  TEXT PRIMARY KEY,
    line     TEXT NOT NULL,
    excluded BOOLEAN NOT NULL DEFAULT false
);
INSERT INTO canonical_trips (trip_id, line, excluded)
SELECT DISTINCT ON (trip_id) trip_id, line, false
FROM canonical_records
ORDER BY trip_id, seq
ON CONFLICT (trip_id) DO NOTHING;
CREATE TABLE IF NOT EXISTS canonical_store_meta (
    id      INTEGER PRIMARY KEY,
    version BIGINT NOT NULL
);
INSERT INTO canonical_store_meta (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema creates the store tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
