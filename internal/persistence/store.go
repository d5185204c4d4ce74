// Package persistence selects and opens the configured run store backend.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/runlog/internal/config"
	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/persistence/memory"
	"example.com/runlog/internal/persistence/postgres"
	"example.com/runlog/internal/persistence/sqlite"
)

// Store bundles the chosen repository with the resources it holds open.
type Store struct {
	Runs domain.RunRepository
	// Pool is set only for the postgres backend; the outbox dispatcher shares it.
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the backend's connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open constructs the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := postgres.NewRepository(pool, postgres.WithOutbox(cfg.OutboxEnabled))
		return &Store{Runs: repo, Pool: pool, close: pool.Close}, nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{Runs: repo, close: func() { _ = repo.Close() }}, nil
	case config.StoreMemory:
		return &Store{Runs: memory.NewRepository()}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
