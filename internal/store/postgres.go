package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sbahn-canon/internal/timetable"
)

// mergeLockKey guards the append+dedupe step across processes.
const mergeLockKey int64 = 0x53_42_41_48_4e // "SBAHN"

// insertChunk keeps a single INSERT well under the 65535 parameter limit.
const insertChunk = 500

// tripChunk bounds the trip ids per lookup or upsert statement.
const tripChunk = 1000

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{
	"row_digest", "trip_id", "stop_index", "station_id", "station_name", "train_number",
	"raw_line_guess", "line",
	"planned_arrival", "planned_departure", "changed_arrival", "changed_departure",
	"platform_planned", "platform_changed", "planned_path", "arrival_path", "departure_path",
	"arrival_status", "departure_status", "message_status", "priority", "info",
	"arrival_delay_m", "departure_delay_m", "status", "arrival_weekday", "departure_weekday",
}

// Postgres keeps the canonical store in a table ordered by a sequence
// column. Full-row dedup is enforced by a unique digest of the row key; the
// store-wide line of every trip lives in canonical_trips.
type Postgres struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// NewPostgres ensures the schema exists and returns the store.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Merge(ctx context.Context, records []timetable.CanonicalRecord, excluded ...string) (MergeResult, error) {
	res := MergeResult{Received: len(records)}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, mergeLockKey); err != nil {
		return res, fmt.Errorf("acquire merge lock: %w", err)
	}

	known, err := loadTrips(ctx, tx, tripIDs(records, excluded))
	if err != nil {
		return res, err
	}
	plan := planMerge(known, records, excluded)
	res.Dropped = plan.dropped
	res.Conflicts = plan.conflicts

	if err := saveTrips(ctx, tx, plan.trips); err != nil {
		return res, err
	}
	for _, trip := range sortedKeys(plan.upgrades) {
		q, args, err := restampQuery(trip, plan.upgrades[trip]).ToSql()
		if err != nil {
			return res, fmt.Errorf("build restamp: %w", err)
		}
		r, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return res, fmt.Errorf("restamp trip %s: %w", trip, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, err
		}
		res.Restamped += int(n)
	}

	pending := dedupe(plan.records)
	for start := 0; start < len(pending); start += insertChunk {
		end := min(start+insertChunk, len(pending))
		q, args, err := insertQuery(pending[start:end])
		if err != nil {
			return res, fmt.Errorf("build insert: %w", err)
		}
		r, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return res, fmt.Errorf("insert records: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, err
		}
		res.Added += int(n)
	}

	if res.Added > 0 || res.Restamped > 0 {
		err = tx.QueryRowContext(ctx, `UPDATE canonical_store_meta SET version = version + 1 WHERE id = 1 RETURNING version`).Scan(&res.Version)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT version FROM canonical_store_meta WHERE id = 1`).Scan(&res.Version)
	}
	if err != nil {
		return res, fmt.Errorf("bump version: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM canonical_records`).Scan(&res.Rows); err != nil {
		return res, fmt.Errorf("count records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit merge: %w", err)
	}
	return res, nil
}

func loadTrips(ctx context.Context, tx *sql.Tx, ids []string) (map[string]tripState, error) {
	out := make(map[string]tripState, len(ids))
	for start := 0; start < len(ids); start += tripChunk {
		end := min(start+tripChunk, len(ids))
		q, args, err := tripsQuery(ids[start:end]).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build trip lookup: %w", err)
		}
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("query trips: %w", err)
		}
		for rows.Next() {
			var id string
			var st tripState
			if err := rows.Scan(&id, &st.Line, &st.Excluded); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan trip: %w", err)
			}
			out[id] = st
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func saveTrips(ctx context.Context, tx *sql.Tx, trips map[string]tripState) error {
	ids := sortedKeys(trips)
	for start := 0; start < len(ids); start += tripChunk {
		end := min(start+tripChunk, len(ids))
		q, args, err := upsertTripsQuery(ids[start:end], trips)
		if err != nil {
			return fmt.Errorf("build trip upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("upsert trips: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return snap, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT version FROM canonical_store_meta WHERE id = 1`).Scan(&snap.Version); err != nil {
		return snap, fmt.Errorf("read version: %w", err)
	}
	q, args, err := selectQuery().ToSql()
	if err != nil {
		return snap, err
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return snap, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return snap, err
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}
	return snap, tx.Commit()
}

func (p *Postgres) Version(ctx context.Context) (int64, error) {
	var v int64
	err := p.db.QueryRowContext(ctx, `SELECT version FROM canonical_store_meta WHERE id = 1`).Scan(&v)
	return v, err
}

func tripsQuery(ids []string) sq.SelectBuilder {
	return psql.Select("trip_id", "line", "excluded").From("canonical_trips").Where(sq.Eq{"trip_id": ids})
}

func upsertTripsQuery(ids []string, trips map[string]tripState) (string, []any, error) {
	b := psql.Insert("canonical_trips").Columns("trip_id", "line", "excluded")
	for _, id := range ids {
		st := trips[id]
		b = b.Values(id, st.Line, st.Excluded)
	}
	return b.Suffix("ON CONFLICT (trip_id) DO UPDATE SET line = EXCLUDED.line, excluded = EXCLUDED.excluded").ToSql()
}

func restampQuery(trip, line string) sq.UpdateBuilder {
	return psql.Update("canonical_records").
		Set("line", line).
		Where(sq.Eq{"trip_id": trip, "line": timetable.Unknown})
}

func insertQuery(records []timetable.CanonicalRecord) (string, []any, error) {
	b := psql.Insert("canonical_records").Columns(recordColumns...)
	for _, r := range records {
		b = b.Values(
			r.Digest(), r.TripID, r.StopIndex, r.StationID, r.StationName, r.TrainNumber,
			r.RawLineGuess, r.Line,
			nullTime(r.PlannedArrival), nullTime(r.PlannedDeparture),
			nullTime(r.ChangedArrival), nullTime(r.ChangedDeparture),
			r.PlatformPlanned, r.PlatformChanged, r.PlannedPath, r.ArrivalPath, r.DeparturePath,
			r.ArrivalStatus, r.DepartureStatus, r.MessageStatus, nullInt(r.Priority), r.Info,
			nullInt(r.ArrivalDelay), nullInt(r.DepartureDelay), r.Status, r.ArrivalWeekday, r.DepartureWeekday,
		)
	}
	return b.Suffix("ON CONFLICT (row_digest) DO NOTHING").ToSql()
}

func selectQuery() sq.SelectBuilder {
	return psql.Select(recordColumns[1:]...).From("canonical_records").OrderBy("seq ASC")
}

func scanRecord(rows *sql.Rows) (timetable.CanonicalRecord, error) {
	var r timetable.CanonicalRecord
	var pa, pd, ca, cd sql.NullTime
	var prio, ad, dd sql.NullInt64
	err := rows.Scan(
		&r.TripID, &r.StopIndex, &r.StationID, &r.StationName, &r.TrainNumber,
		&r.RawLineGuess, &r.Line,
		&pa, &pd, &ca, &cd,
		&r.PlatformPlanned, &r.PlatformChanged, &r.PlannedPath, &r.ArrivalPath, &r.DeparturePath,
		&r.ArrivalStatus, &r.DepartureStatus, &r.MessageStatus, &prio, &r.Info,
		&ad, &dd, &r.Status, &r.ArrivalWeekday, &r.DepartureWeekday,
	)
	if err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	r.PlannedArrival = timePtr(pa)
	r.PlannedDeparture = timePtr(pd)
	r.ChangedArrival = timePtr(ca)
	r.ChangedDeparture = timePtr(cd)
	r.Priority = intPtr(prio)
	r.ArrivalDelay = intPtr(ad)
	r.DepartureDelay = intPtr(dd)
	return r, nil
}

func dedupe(records []timetable.CanonicalRecord) []timetable.CanonicalRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
