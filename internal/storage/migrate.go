package storage

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/0001_init.sql
var initSQL string

// Migrate applies the embedded schema. It is idempotent (every statement
// is IF NOT EXISTS) and safe to call on every process start, mirroring
// the teacher's best-effort bootstrap-on-construct pattern.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, initSQL)
	return err
}
