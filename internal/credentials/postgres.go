package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS third_party_services (
	name                TEXT PRIMARY KEY,
	base_url            TEXT NOT NULL,
	secret              TEXT NOT NULL DEFAULT '',
	rate_limit_per_hour INTEGER NOT NULL DEFAULT 100,
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads service configuration from Postgres.
type PostgresStore struct {
	db     DB
	cipher Cipher
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db DB, c Cipher) *PostgresStore {
	return &PostgresStore{db: db, cipher: c}
}

// Migrate creates the services table when missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create third_party_services: %w", err)
	}
	return nil
}

// GetActive implements Store
func (p *PostgresStore) GetActive(ctx context.Context, name string) (*ServiceConfig, error) {
	var svc ServiceConfig
	err := p.db.QueryRow(ctx,
		`SELECT name, base_url, secret, active, rate_limit_per_hour
		   FROM third_party_services
		  WHERE name = $1 AND active`, name,
	).Scan(&svc.Name, &svc.BaseURL, &svc.Secret, &svc.Active, &svc.RateLimitPerHour)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", name, err)
	}
	return &svc, nil
}

// Reveal implements Store
func (p *PostgresStore) Reveal(cfg *ServiceConfig) (string, bool) {
	return revealWith(p.cipher, cfg)
}

// Upsert implements Provisioner. The stored secret is only re-encrypted when
// the plaintext differs from what is already stored.
func (p *PostgresStore) Upsert(ctx context.Context, svc ServiceConfig, plaintextSecret string) (bool, error) {
	var stored string
	err := p.db.QueryRow(ctx,
		`SELECT secret FROM third_party_services WHERE name = $1`, svc.Name,
	).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("lookup service %s: %w", svc.Name, err)
	default:
		if current, ok := p.cipher.Decrypt(stored); ok && current == plaintextSecret {
			_, err := p.db.Exec(ctx,
				`UPDATE third_party_services
				    SET base_url = $2, active = $3, rate_limit_per_hour = $4
				  WHERE name = $1`,
				svc.Name, svc.BaseURL, svc.Active, svc.RateLimitPerHour)
			if err != nil {
				return false, fmt.Errorf("update service %s: %w", svc.Name, err)
			}
			return false, nil
		}
	}

	enc, err := p.cipher.Encrypt(plaintextSecret)
	if err != nil {
		return false, fmt.Errorf("encrypt secret for %s: %w", svc.Name, err)
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO third_party_services (name, base_url, secret, active, rate_limit_per_hour)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE
		    SET base_url = EXCLUDED.base_url,
		        secret = EXCLUDED.secret,
		        active = EXCLUDED.active,
		        rate_limit_per_hour = EXCLUDED.rate_limit_per_hour`,
		svc.Name, svc.BaseURL, enc, svc.Active, svc.RateLimitPerHour)
	if err != nil {
		return false, fmt.Errorf("upsert service %s: %w", svc.Name, err)
	}
	return true, nil
}
