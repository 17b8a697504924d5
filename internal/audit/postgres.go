package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_request_logs (
	id                UUID PRIMARY KEY,
	service           TEXT NOT NULL,
	caller            TEXT,
	endpoint          TEXT NOT NULL,
	status_code       INTEGER NOT NULL,
	response_time_ms  BIGINT NOT NULL,
	cache_hit         BOOLEAN NOT NULL DEFAULT FALSE,
	timestamp         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS api_request_logs_service_ts
	ON api_request_logs (service, timestamp DESC)`

// DB is the subset of *pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSink appends outcomes to the api_request_logs table.
type PostgresSink struct {
	db  DB
	log zerolog.Logger
}

func NewPostgresSink(db DB, log zerolog.Logger) *PostgresSink {
	return &PostgresSink{db: db, log: log.With().Str("component", "audit").Logger()}
}

// Migrate creates the log table when missing.
func (p *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create api_request_logs: %w", err)
	}
	return nil
}

// Record implements Sink. Insert failures are logged and dropped.
func (p *PostgresSink) Record(ctx context.Context, o Outcome) {
	var caller *string
	if o.Caller != "" {
		caller = &o.Caller
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO api_request_logs
		   (id, service, caller, endpoint, status_code, response_time_ms, cache_hit, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.Service, caller, o.Endpoint, o.Status, o.LatencyMS, o.CacheHit, o.Timestamp)
	if err != nil {
		p.log.Error().Err(err).
			Str("service", o.Service).
			Str("endpoint", o.Endpoint).
			Msg("write audit record")
	}
}

// Recent returns the latest outcomes for service, newest first. An empty
// service matches every service.
func (p *PostgresSink) Recent(ctx context.Context, service string, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.Query(ctx,
		`SELECT id, service, COALESCE(caller, ''), endpoint, status_code,
		        response_time_ms, cache_hit, timestamp
		   FROM api_request_logs
		  WHERE $1 = '' OR service = $1
		  ORDER BY timestamp DESC
		  LIMIT $2`, service, limit)
	if err != nil {
		return nil, fmt.Errorf("query api_request_logs: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.Service, &o.Caller, &o.Endpoint, &o.Status,
			&o.LatencyMS, &o.CacheHit, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("scan api_request_logs: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api_request_logs: %w", err)
	}
	return out, nil
}
