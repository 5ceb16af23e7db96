package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск workflow.
//
// Execution создаётся когда:
// - Приходит webhook с payload (Trigger Adapter)
// - Scheduler создаёт запуск по расписанию
// - Пользователь запускает workflow вручную (через API/CLI)
//
// Каждый execution выполняет конкретный снимок графа и ведёт
// собственную последовательность NodeExecution (ledger).
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// WorkflowVersion — контентная версия снимка графа на момент запуска.
	WorkflowVersion string `json:"workflow_version,omitempty"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// TriggerPayload — входной payload, посеянный триггером.
	// Доступен в выражениях как {{$trigger...}} / {{$json...}}.
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если execution завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CancelRequested — запрошена ли отмена. Движок проверяет флаг
	// перед планированием каждого нового узла.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// IdempotencyKey — ключ идемпотентности (для scheduled-запусков:
	// "{schedule_id}_{next_due_at}").
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`

	// Nodes — записи о выполнении узлов в порядке старта.
	// Заполняется при чтении из ledger; при записи ledger ведёт их отдельно.
	Nodes []NodeExecution `json:"nodes,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если execution завершён (в любом статусе).
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит execution в статус RUNNING.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
}

// MarkCompleted переводит execution в статус COMPLETED.
func (e *Execution) MarkCompleted() {
	now := time.Now()
	e.Status = ExecutionStatusCompleted
	e.FinishedAt = &now
}

// MarkFailed переводит execution в статус FAILED с ошибкой.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.FinishedAt = &now
	e.Error = err
}

// MarkCancelled переводит execution в статус CANCELLED.
func (e *Execution) MarkCancelled() {
	now := time.Now()
	e.Status = ExecutionStatusCancelled
	e.FinishedAt = &now
}

// NodeExecution — запись о выполнении одного узла (строка ledger).
//
// Создаётся движком когда узел стартует (или пропускается); переходы
// статуса монотонны — запись в финальном статусе больше не меняется.
type NodeExecution struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ExecutionID — ссылка на родительский execution.
	ExecutionID uuid.UUID `json:"execution_id"`

	// NodeID — ID узла из графа (NodeInstance.ID).
	NodeID string `json:"node_id"`

	// Kind — тип узла (копия NodeInstance.Kind для удобства чтения ledger).
	Kind string `json:"kind"`

	// Status — текущий статус узла.
	Status NodeStatus `json:"status"`

	// StartedAt — время начала выполнения. Nil для SKIPPED узлов.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// ResolvedInput — конфигурация узла после разрешения плейсхолдеров.
	// Секреты сюда не попадают: credentials разрешаются отдельно и не логируются.
	ResolvedInput map[string]any `json:"resolved_input,omitempty"`

	// Output — выходные данные узла. Присутствует только при COMPLETED.
	Output map[string]any `json:"output,omitempty"`

	// ActivatedPorts — порты, активированные узлом при COMPLETED.
	ActivatedPorts []string `json:"activated_ports,omitempty"`

	// Error — текст ошибки. Присутствует только при FAILED.
	Error string `json:"error,omitempty"`

	// SkipReason — причина пропуска при SKIPPED: "branch", "upstream_failed",
	// "cancelled", "unreachable".
	SkipReason string `json:"skip_reason,omitempty"`
}

// Причины пропуска узла.
const (
	SkipReasonBranch         = "branch"
	SkipReasonUpstreamFailed = "upstream_failed"
	SkipReasonCancelled      = "cancelled"
	SkipReasonUnreachable    = "unreachable"
)

// Duration возвращает продолжительность выполнения узла.
func (n *NodeExecution) Duration() time.Duration {
	if n.StartedAt == nil || n.FinishedAt == nil {
		return 0
	}
	return n.FinishedAt.Sub(*n.StartedAt)
}

// MarkRunning переводит запись в статус RUNNING.
func (n *NodeExecution) MarkRunning() {
	now := time.Now()
	n.Status = NodeStatusRunning
	n.StartedAt = &now
}

// MarkCompleted переводит запись в статус COMPLETED с выходными данными.
func (n *NodeExecution) MarkCompleted(output map[string]any, ports []string) {
	now := time.Now()
	n.Status = NodeStatusCompleted
	n.FinishedAt = &now
	n.Output = output
	n.ActivatedPorts = ports
}

// MarkFailed переводит запись в статус FAILED с ошибкой.
func (n *NodeExecution) MarkFailed(err string) {
	now := time.Now()
	n.Status = NodeStatusFailed
	n.FinishedAt = &now
	n.Error = err
}

// MarkSkipped переводит запись в статус SKIPPED с причиной.
func (n *NodeExecution) MarkSkipped(reason string) {
	now := time.Now()
	n.Status = NodeStatusSkipped
	n.FinishedAt = &now
	n.SkipReason = reason
}
