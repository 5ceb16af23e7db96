package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credential — именованный секрет.
//
// Значение отдаётся только движку в момент выполнения узла;
// публичные методы списков значение не возвращают.
type Credential struct {
	// Ref — уникальная ссылка, на которую указывает NodeInstance.CredentialRefs.
	Ref string `json:"ref"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Value — значение секрета. В JSON не сериализуется.
	Value string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialRepo — репозиторий секретов.
//
// Реализует engine.CredentialResolver.
type CredentialRepo struct {
	pool *pgxpool.Pool
}

// NewCredentialRepo создаёт новый CredentialRepo.
func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

// Put сохраняет секрет, заменяя существующий с той же ссылкой.
func (r *CredentialRepo) Put(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (ref, name, value, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (ref) DO UPDATE
		SET name = EXCLUDED.name, value = EXCLUDED.value, updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, cred.Ref, cred.Name, cred.Value)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Resolve возвращает значение секрета по ссылке.
func (r *CredentialRepo) Resolve(ctx context.Context, ref string) (string, error) {
	query := `SELECT value FROM credentials WHERE ref = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, ref).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("credential %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return value, nil
}

// List возвращает секреты без значений.
func (r *CredentialRepo) List(ctx context.Context) ([]Credential, error) {
	query := `
		SELECT ref, name, created_at, updated_at
		FROM credentials
		ORDER BY ref ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Ref, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Delete удаляет секрет.
func (r *CredentialRepo) Delete(ctx context.Context, ref string) error {
	query := `DELETE FROM credentials WHERE ref = $1`
	result, err := r.pool.Exec(ctx, query, ref)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
