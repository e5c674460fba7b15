package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// walletSchema is applied on startup. The ledger only needs one table.
const walletSchema = `--sql 5f0c2e7a-8b41-4d6e-9a3c-2e7d1b9f4c60
create table if not exists wallets (
    user_id    text primary key,
    email      text not null default '',
    coins      integer not null default 0 check (coins >= 0),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists wallets_email_idx on wallets (lower(email));
`

// NewDBPool initializes a new pgx connection pool using the provided configuration.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewDBPoolFromURL(ctx, cfg.DatabaseURL)
}

// NewDBPoolFromURL connects to the given database URL and verifies the connection.
func NewDBPoolFromURL(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureWalletSchema creates the wallets table when it does not exist yet.
func EnsureWalletSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, walletSchema); err != nil {
		return fmt.Errorf("ensure wallet schema: %w", err)
	}
	return nil
}
