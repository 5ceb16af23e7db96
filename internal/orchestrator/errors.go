package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — execution не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound — workflow execution не найден.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotPending — execution не в статусе PENDING.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrRunAlreadyActive — execution уже обрабатывается.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
