package store

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName swaps the database path of a postgres DSN. A DSN without a
// scheme is treated as postgres://.
func WithDBName(dsn, database string) (string, error) {
	u, err := parseDSN(dsn)
	if err != nil {
		return "", err
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

// Redact hides the password of a DSN so it can be logged.
func Redact(dsn string) string {
	u, err := parseDSN(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	return u, nil
}
