package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RainBowCreation/LangCategory/internal/infra"
)

// PostgresGateway кладет записи политик в одну KV-таблицу.
// Подходит, когда Redis в контуре нет, а база уже есть.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

func NewPostgresGateway(ctx context.Context, cfg infra.DatabaseConfig) (*PostgresGateway, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &PostgresGateway{pool: pool}, nil
}

// Init создает таблицу записей, если ее еще нет.
func (g *PostgresGateway) Init(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS lcat_policies (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	_, err := g.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	return nil
}

func (g *PostgresGateway) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM lcat_policies WHERE key = $1`

	var value string
	err := g.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return value, nil
}

func (g *PostgresGateway) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO lcat_policies (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	_, err := g.pool.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

func (g *PostgresGateway) Close() error {
	g.pool.Close()
	return nil
}
