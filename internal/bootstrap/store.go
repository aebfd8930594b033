package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/eventflow/config"
	"github.com/Domenick1991/eventflow/internal/repository"
	"github.com/Domenick1991/eventflow/internal/repository/memory"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenStore connects the configured storage backend. The returned close func is
// never nil.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("connected to postgres", slog.String("host", cfg.Host), slog.String("db", cfg.Name))
	return repository.NewPGStore(pool), pool.Close, nil
}
