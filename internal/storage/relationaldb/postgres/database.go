// Package postgres persists fill and epoch history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns = 8
	defaultMaxIdleConns = 2
	defaultPingTimeout  = 5 * time.Second
)

// Open connects to the database at dsn, verifies the connection and
// ensures the schema exists.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id          BIGSERIAL PRIMARY KEY,
	market      INTEGER     NOT NULL,
	side        TEXT        NOT NULL,
	order_id    BIGINT      NOT NULL,
	maker       TEXT        NOT NULL,
	taker       TEXT        NOT NULL,
	price       NUMERIC(38,0) NOT NULL,
	volume      NUMERIC(38,0) NOT NULL,
	fill_time   BIGINT      NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fills_market_time_idx ON fills (market, fill_time);
CREATE TABLE IF NOT EXISTS epochs (
	id          BIGSERIAL PRIMARY KEY,
	market      INTEGER     NOT NULL,
	closed_at   BIGINT      NOT NULL,
	average     NUMERIC(38,0) NOT NULL,
	peg         NUMERIC(38,0) NOT NULL,
	multiplier  NUMERIC(38,0) NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS epochs_market_idx ON epochs (market, closed_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
