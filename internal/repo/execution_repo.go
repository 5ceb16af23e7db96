package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/ledger"
)

// ExecutionRepo — репозиторий запусков поверх PostgreSQL.
//
// Реализует ledger.Ledger. Записи узлов хранятся append-only
// с последовательным seq, что сохраняет порядок выполнения.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// CreatePending создаёт запись запуска в статусе PENDING.
//
// Используется слоем API: движок позже заберёт запись и переведёт
// её в RUNNING через StartRun.
func (r *ExecutionRepo) CreatePending(ctx context.Context, exec *domain.Execution) error {
	triggerJSON, err := json.Marshal(exec.TriggerPayload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, workflow_version, status, trigger_payload,
		                        cancel_requested, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.WorkflowVersion,
		exec.Status,
		triggerJSON,
		exec.CancelRequested,
		nullString(exec.IdempotencyKey),
		exec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// StartRun создаёт запись запуска в статусе RUNNING либо переводит
// в RUNNING запись, ранее созданную через CreatePending.
func (r *ExecutionRepo) StartRun(ctx context.Context, exec *domain.Execution) error {
	triggerJSON, err := json.Marshal(exec.TriggerPayload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, workflow_version, status, trigger_payload,
		                        started_at, cancel_requested, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, started_at = EXCLUDED.started_at
		WHERE executions.status = 'PENDING'
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.WorkflowVersion,
		exec.Status,
		triggerJSON,
		exec.StartedAt,
		exec.CancelRequested,
		nullString(exec.IdempotencyKey),
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateRun, exec.ID)
	}
	return nil
}

// NodeStarted фиксирует начало выполнения узла.
func (r *ExecutionRepo) NodeStarted(ctx context.Context, node *domain.NodeExecution) error {
	resolvedJSON, err := json.Marshal(node.ResolvedInput)
	if err != nil {
		return fmt.Errorf("marshal resolved input: %w", err)
	}

	query := `
		INSERT INTO node_executions (id, execution_id, node_id, kind, status, started_at, resolved_input)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		node.ID,
		node.ExecutionID,
		node.NodeID,
		node.Kind,
		node.Status,
		node.StartedAt,
		resolvedJSON,
	)
	if err != nil {
		return fmt.Errorf("insert node execution: %w", err)
	}
	return nil
}

// NodeCompleted фиксирует успешное завершение узла.
func (r *ExecutionRepo) NodeCompleted(ctx context.Context, node *domain.NodeExecution) error {
	outputJSON, err := json.Marshal(node.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	portsJSON, err := json.Marshal(node.ActivatedPorts)
	if err != nil {
		return fmt.Errorf("marshal activated ports: %w", err)
	}
	resolvedJSON, err := json.Marshal(node.ResolvedInput)
	if err != nil {
		return fmt.Errorf("marshal resolved input: %w", err)
	}

	query := `
		UPDATE node_executions
		SET status = $3, finished_at = $4, resolved_input = $5, output = $6, activated_ports = $7
		WHERE execution_id = $1 AND node_id = $2 AND status IN ('PENDING', 'RUNNING')
	`
	result, err := r.pool.Exec(ctx, query,
		node.ExecutionID,
		node.NodeID,
		node.Status,
		node.FinishedAt,
		resolvedJSON,
		outputJSON,
		portsJSON,
	)
	if err != nil {
		return fmt.Errorf("complete node execution: %w", err)
	}
	return r.checkNodeUpdated(ctx, result.RowsAffected(), node)
}

// NodeFailed фиксирует сбой узла.
func (r *ExecutionRepo) NodeFailed(ctx context.Context, node *domain.NodeExecution) error {
	resolvedJSON, err := json.Marshal(node.ResolvedInput)
	if err != nil {
		return fmt.Errorf("marshal resolved input: %w", err)
	}

	query := `
		UPDATE node_executions
		SET status = $3, finished_at = $4, resolved_input = $5, error = $6
		WHERE execution_id = $1 AND node_id = $2 AND status IN ('PENDING', 'RUNNING')
	`
	result, err := r.pool.Exec(ctx, query,
		node.ExecutionID,
		node.NodeID,
		node.Status,
		node.FinishedAt,
		resolvedJSON,
		nullString(node.Error),
	)
	if err != nil {
		return fmt.Errorf("fail node execution: %w", err)
	}
	return r.checkNodeUpdated(ctx, result.RowsAffected(), node)
}

// NodeSkipped фиксирует пропуск узла.
//
// Пропущенный узел не имеет записи NodeStarted, поэтому пропуск
// вставляет запись сразу в терминальном статусе.
func (r *ExecutionRepo) NodeSkipped(ctx context.Context, node *domain.NodeExecution) error {
	query := `
		INSERT INTO node_executions (id, execution_id, node_id, kind, status, finished_at, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		node.ID,
		node.ExecutionID,
		node.NodeID,
		node.Kind,
		node.Status,
		node.FinishedAt,
		nullString(node.SkipReason),
	)
	if err != nil {
		return fmt.Errorf("insert skipped node: %w", err)
	}
	return nil
}

// Finalize фиксирует терминальный статус запуска.
func (r *ExecutionRepo) Finalize(ctx context.Context, exec *domain.Execution) error {
	query := `
		UPDATE executions
		SET status = $2, started_at = COALESCE(executions.started_at, $3),
		    finished_at = $4, error = $5
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.Status,
		exec.StartedAt,
		exec.FinishedAt,
		nullString(exec.Error),
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.GetRun(ctx, exec.ID); errors.Is(getErr, ledger.ErrRunNotFound) {
			return getErr
		}
		return fmt.Errorf("%w: run %s", ledger.ErrTerminalTransition, exec.ID)
	}
	return nil
}

// GetRun возвращает запуск вместе с записями узлов в порядке выполнения.
func (r *ExecutionRepo) GetRun(ctx context.Context, runID uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, status, trigger_payload,
		       started_at, finished_at, error, cancel_requested, idempotency_key, created_at
		FROM executions
		WHERE id = $1
	`
	exec, err := scanExecution(r.pool.QueryRow(ctx, query, runID))
	if err != nil {
		return nil, err
	}

	nodes, err := r.listNodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	exec.Nodes = nodes
	return exec, nil
}

// ListRuns возвращает последние запуски workflow без записей узлов.
// workflowID == uuid.Nil означает запуски всех workflow.
func (r *ExecutionRepo) ListRuns(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, workflow_id, workflow_version, status, trigger_payload,
		       started_at, finished_at, error, cancel_requested, idempotency_key, created_at
		FROM executions
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, nullUUID(workflowID), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// ListPending возвращает запуски в статусе PENDING, старые первыми.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, status, trigger_payload,
		       started_at, finished_at, error, cancel_requested, idempotency_key, created_at
		FROM executions
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// ListCancelRequested возвращает активные запуски с запрошенной отменой.
func (r *ExecutionRepo) ListCancelRequested(ctx context.Context, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, status, trigger_payload,
		       started_at, finished_at, error, cancel_requested, idempotency_key, created_at
		FROM executions
		WHERE cancel_requested AND status IN ('PENDING', 'RUNNING')
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list cancel requested runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// RequestCancel помечает активный запуск на отмену.
//
// Запись в терминальном статусе не меняется: возвращается ErrInvalidState.
func (r *ExecutionRepo) RequestCancel(ctx context.Context, runID uuid.UUID) error {
	query := `
		UPDATE executions
		SET cancel_requested = TRUE
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`
	result, err := r.pool.Exec(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.GetRun(ctx, runID); errors.Is(getErr, ledger.ErrRunNotFound) {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

// GetByIdempotencyKey возвращает запуск по ключу идемпотентности.
func (r *ExecutionRepo) GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, status, trigger_payload,
		       started_at, finished_at, error, cancel_requested, idempotency_key, created_at
		FROM executions
		WHERE workflow_id = $1 AND idempotency_key = $2
	`
	exec, err := scanExecution(r.pool.QueryRow(ctx, query, workflowID, key))
	if errors.Is(err, ledger.ErrRunNotFound) {
		return nil, ErrNotFound
	}
	return exec, err
}

// --- Helpers ---

// checkNodeUpdated различает терминальную запись и отсутствующую.
func (r *ExecutionRepo) checkNodeUpdated(ctx context.Context, affected int64, node *domain.NodeExecution) error {
	if affected > 0 {
		return nil
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM node_executions WHERE execution_id = $1 AND node_id = $2)`
	if err := r.pool.QueryRow(ctx, query, node.ExecutionID, node.NodeID).Scan(&exists); err != nil {
		return fmt.Errorf("check node execution: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: node %s", ledger.ErrNodeNotFound, node.NodeID)
	}
	return fmt.Errorf("%w: node %s", ledger.ErrTerminalTransition, node.NodeID)
}

// listNodes возвращает записи узлов запуска в порядке seq.
func (r *ExecutionRepo) listNodes(ctx context.Context, runID uuid.UUID) ([]domain.NodeExecution, error) {
	query := `
		SELECT id, execution_id, node_id, kind, status, started_at, finished_at,
		       resolved_input, output, activated_ports, error, skip_reason
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var nodes []domain.NodeExecution
	for rows.Next() {
		var n domain.NodeExecution
		var resolvedJSON, outputJSON, portsJSON []byte
		var nodeError, skipReason *string

		if err := rows.Scan(
			&n.ID,
			&n.ExecutionID,
			&n.NodeID,
			&n.Kind,
			&n.Status,
			&n.StartedAt,
			&n.FinishedAt,
			&resolvedJSON,
			&outputJSON,
			&portsJSON,
			&nodeError,
			&skipReason,
		); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}

		if resolvedJSON != nil {
			if err := json.Unmarshal(resolvedJSON, &n.ResolvedInput); err != nil {
				return nil, fmt.Errorf("unmarshal resolved input: %w", err)
			}
		}
		if outputJSON != nil {
			if err := json.Unmarshal(outputJSON, &n.Output); err != nil {
				return nil, fmt.Errorf("unmarshal output: %w", err)
			}
		}
		if portsJSON != nil {
			if err := json.Unmarshal(portsJSON, &n.ActivatedPorts); err != nil {
				return nil, fmt.Errorf("unmarshal activated ports: %w", err)
			}
		}
		if nodeError != nil {
			n.Error = *nodeError
		}
		if skipReason != nil {
			n.SkipReason = *skipReason
		}

		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var triggerJSON []byte
	var execError, idempotencyKey *string

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.WorkflowVersion,
		&exec.Status,
		&triggerJSON,
		&exec.StartedAt,
		&exec.FinishedAt,
		&execError,
		&exec.CancelRequested,
		&idempotencyKey,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if triggerJSON != nil {
		if err := json.Unmarshal(triggerJSON, &exec.TriggerPayload); err != nil {
			return nil, fmt.Errorf("unmarshal trigger payload: %w", err)
		}
	}
	if execError != nil {
		exec.Error = *execError
	}
	if idempotencyKey != nil {
		exec.IdempotencyKey = *idempotencyKey
	}

	return &exec, nil
}

// nullUUID возвращает nil для uuid.Nil (для NULL в БД).
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// isUniqueViolation проверяет код ошибки уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
