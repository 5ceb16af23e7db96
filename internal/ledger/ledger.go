// Package ledger содержит журнал запусков workflow.
//
// Журнал — единственное место, где хранится состояние запусков:
// движок пишет в него переходы статусов, API читает историю.
// Реализации: InMemoryLedger (тесты, одиночный режим) и
// repo.ExecutionRepo (PostgreSQL).
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
)

// Ошибки журнала.
var (
	// ErrRunNotFound — запуск не найден.
	ErrRunNotFound = errors.New("run not found")

	// ErrNodeNotFound — запись узла не найдена.
	ErrNodeNotFound = errors.New("node record not found")

	// ErrTerminalTransition — попытка изменить запись в терминальном статусе.
	ErrTerminalTransition = errors.New("record is already in a terminal status")

	// ErrDuplicateRun — запуск с таким ID уже существует.
	ErrDuplicateRun = errors.New("run already exists")
)

// Ledger — журнал запусков.
//
// Все методы записи проверяют монотонность статусов: терминальные
// записи не перезаписываются, повторный переход возвращает
// ErrTerminalTransition.
type Ledger interface {
	// StartRun создаёт запись запуска.
	StartRun(ctx context.Context, exec *domain.Execution) error

	// NodeStarted фиксирует начало выполнения узла.
	NodeStarted(ctx context.Context, node *domain.NodeExecution) error

	// NodeCompleted фиксирует успешное завершение узла.
	NodeCompleted(ctx context.Context, node *domain.NodeExecution) error

	// NodeFailed фиксирует сбой узла.
	NodeFailed(ctx context.Context, node *domain.NodeExecution) error

	// NodeSkipped фиксирует пропуск узла.
	NodeSkipped(ctx context.Context, node *domain.NodeExecution) error

	// Finalize фиксирует терминальный статус запуска.
	Finalize(ctx context.Context, exec *domain.Execution) error

	// GetRun возвращает запуск вместе с записями узлов.
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.Execution, error)

	// ListRuns возвращает последние запуски workflow, новые первыми.
	// workflowID == uuid.Nil означает запуски всех workflow.
	ListRuns(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.Execution, error)
}
