package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"netembed/pkg/config"
)

// DB минимальный интерфейс подключения; его реализуют pgxpool.Pool и pgxmock
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema создаётся при старте; миграции для одной таблицы избыточны
const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	scenario           TEXT NOT NULL,
	objective          TEXT NOT NULL,
	seed               BIGINT NOT NULL,
	objective_value    DOUBLE PRECISION NOT NULL,
	infeasible         BOOLEAN NOT NULL DEFAULT FALSE,
	changed_instances  INTEGER NOT NULL DEFAULT 0,
	init_time_ms       DOUBLE PRECISION NOT NULL DEFAULT 0,
	runtime_ms         DOUBLE PRECISION NOT NULL DEFAULT 0,
	node_count         INTEGER NOT NULL DEFAULT 0,
	template_count     INTEGER NOT NULL DEFAULT 0,
	request_data       JSONB,
	result_data        BYTEA,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_embeddings_scenario ON embeddings (scenario, created_at DESC);
`

// PostgresStore PostgreSQL реализация хранилища
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

// NewPostgresStore подключается к базе и создаёт схему
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: pool, pool: pool}
	if _, err := store.db.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return store, nil
}

// NewPostgresStoreWithDB оборачивает готовое подключение (для тестов)
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, emb *Embedding) error {
	query := `
		INSERT INTO embeddings (
			scenario, objective, seed, objective_value, infeasible,
			changed_instances, init_time_ms, runtime_ms,
			node_count, template_count, request_data, result_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		emb.Scenario,
		emb.Objective,
		emb.Seed,
		emb.ObjectiveValue,
		emb.Infeasible,
		emb.ChangedInstances,
		emb.InitTimeMs,
		emb.RuntimeMs,
		emb.NodeCount,
		emb.TemplateCount,
		emb.RequestData,
		emb.ResultData,
	).Scan(&emb.ID, &emb.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create embedding record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Embedding, error) {
	query := `
		SELECT
			id, scenario, objective, seed, objective_value, infeasible,
			changed_instances, init_time_ms, runtime_ms,
			node_count, template_count, request_data, result_data, created_at
		FROM embeddings
		WHERE id = $1
	`

	emb := &Embedding{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&emb.ID,
		&emb.Scenario,
		&emb.Objective,
		&emb.Seed,
		&emb.ObjectiveValue,
		&emb.Infeasible,
		&emb.ChangedInstances,
		&emb.InitTimeMs,
		&emb.RuntimeMs,
		&emb.NodeCount,
		&emb.TemplateCount,
		&emb.RequestData,
		&emb.ResultData,
		&emb.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return emb, nil
}

func (s *PostgresStore) List(ctx context.Context, opts *ListOptions) ([]*EmbeddingSummary, error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, scenario, objective, objective_value, infeasible,
		       changed_instances, runtime_ms, created_at
		FROM embeddings
		WHERE ($1 = '' OR scenario = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, opts.Scenario, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var summaries []*EmbeddingSummary
	for rows.Next() {
		s := &EmbeddingSummary{}
		if err := rows.Scan(&s.ID, &s.Scenario, &s.Objective, &s.ObjectiveValue,
			&s.Infeasible, &s.ChangedInstances, &s.RuntimeMs, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM embeddings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEmbeddingNotFound
	}
	return nil
}

// Close закрывает пул соединений
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
