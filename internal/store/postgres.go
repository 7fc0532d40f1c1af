// Package store handles all cache and database interactions.
//
// postgres.go -- pgxpool connection setup and audit log queries.
// Postgres is optional: it only backs the login audit trail. Sessions and
// pending logins live in Redis.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the audit log backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pool for databaseURL and pings it.
// Call once at startup; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InsertAuditLog writes one audit row. Row ids are UUIDv7 so they sort by time.
func (s *PostgresStore) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating audit id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, ip_address, user_agent, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, entry.UserID, entry.Action, entry.IPAddress, entry.UserAgent, entry.Metadata)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// PruneAuditLogs deletes audit rows older than retention and returns how many went.
func (s *PostgresStore) PruneAuditLogs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM audit_logs WHERE created_at < $1",
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("pruning audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// NopAuditLog is used when DATABASE_URL is unset. Writes are dropped.
type NopAuditLog struct{}

func (NopAuditLog) InsertAuditLog(context.Context, AuditEntry) error { return nil }

func (NopAuditLog) PruneAuditLogs(context.Context, time.Duration) (int64, error) { return 0, nil }

// CheckHealth reports ErrAuditDisabled so /health can show "disabled" rather than "ok".
func (NopAuditLog) CheckHealth(context.Context) error { return ErrAuditDisabled }
