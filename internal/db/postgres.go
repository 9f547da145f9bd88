package db

import (
	"context"
	"fmt"
	"time"

	"erp-backend/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the remote store pool and verifies it answers within the
// configured timeout. The caller decides what to do when it does not.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	timeout := time.Duration(cfg.Database.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}
