package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Checker implements the observability.Checker interface for PostgreSQL.
type Checker struct {
	pool *pgxpool.Pool
}

// NewChecker creates a health checker for the given pool.
func NewChecker(pool *pgxpool.Pool) *Checker {
	return &Checker{pool: pool}
}

// Name returns the component name.
func (c *Checker) Name() string {
	return "postgres"
}

// Check verifies connectivity using Ping.
func (c *Checker) Check(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	return c.pool.Ping(ctx)
}
