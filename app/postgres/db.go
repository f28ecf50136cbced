// Package postgres holds the lib/pq backed stores for sessions, results,
// usage and training examples.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/lib/pq"
)

func DSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   cfg.URL,
		Path:   "/" + cfg.Name,
	}
	if cfg.Port != "" {
		u.Host = cfg.URL + ":" + cfg.Port
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// Open connects and pings. Callers decide whether a failure is fatal.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	return openDSN(ctx, DSN(cfg))
}

func openDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	session_id             TEXT PRIMARY KEY,
	status                 TEXT NOT NULL,
	file_id                BIGINT,
	progress               JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	server_start_timestamp TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS upload_sessions_status_idx ON upload_sessions (status);
CREATE INDEX IF NOT EXISTS upload_sessions_file_idx ON upload_sessions (file_id);

CREATE TABLE IF NOT EXISTS batch_results (
	session_id    TEXT NOT NULL,
	batch_number  INT NOT NULL,
	row_index     INT NOT NULL,
	text          TEXT NOT NULL,
	timestamp     TEXT,
	source        TEXT,
	language      TEXT,
	sentiment     TEXT,
	confidence    DOUBLE PRECISION,
	explanation   TEXT,
	disaster_type TEXT,
	location      TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, batch_number, row_index)
);

CREATE TABLE IF NOT EXISTS usage_stats (
	id          SMALLINT PRIMARY KEY DEFAULT 1,
	used        INT NOT NULL,
	daily_limit INT NOT NULL,
	reset_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS training_examples (
	id            BIGSERIAL PRIMARY KEY,
	text          TEXT NOT NULL,
	text_key      TEXT NOT NULL UNIQUE,
	sentiment     TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	disaster_type TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
