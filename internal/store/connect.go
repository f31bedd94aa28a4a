package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Connect opens dsn and pings it with exponential back-off until the
// database answers or maxWait elapses. A malformed DSN fails immediately.
func Connect(ctx context.Context, dsn string, maxWait time.Duration) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Redact(dsn), err)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         15 * time.Second,
		MaxElapsedTime:      maxWait,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	err = backoff.RetryNotify(
		func() error { return Ping(ctx, db) },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			log.Printf("db not ready, retrying in %s: %v", d.Round(time.Millisecond), err)
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", Redact(dsn), err)
	}
	return db, nil
}
