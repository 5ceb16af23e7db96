package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Flowline/internal/capability"
)

// MemoryStore — постоянное key-value хранилище для узлов memory
// поверх PostgreSQL. Реализует capability.Store.
type MemoryStore struct {
	pool *pgxpool.Pool
}

// NewMemoryStore создаёт новый MemoryStore.
func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{pool: pool}
}

// Set сохраняет значение по ключу, перезаписывая существующее.
func (s *MemoryStore) Set(ctx context.Context, key string, value string) error {
	query := `
		INSERT INTO memory_store (key, value, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set memory key: %w", err)
	}
	return nil
}

// Get возвращает значение по ключу.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM memory_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", capability.ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get memory key: %w", err)
	}
	return value, nil
}

// Delete удаляет ключ. Отсутствующий ключ не является ошибкой.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memory_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete memory key: %w", err)
	}
	return nil
}
