package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
)

// InMemoryLedger — журнал в памяти процесса.
//
// Используется в тестах и в одиночном режиме без базы данных.
// Потокобезопасен. Записи узлов хранятся в порядке добавления,
// что сохраняет порядок выполнения.
type InMemoryLedger struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*runRecord
	seq  []uuid.UUID // порядок создания запусков
}

type runRecord struct {
	exec  *domain.Execution
	nodes []*domain.NodeExecution
	index map[string]*domain.NodeExecution // nodeID → запись
}

// NewInMemoryLedger создаёт пустой журнал.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		runs: make(map[uuid.UUID]*runRecord),
	}
}

// StartRun создаёт запись запуска.
func (l *InMemoryLedger) StartRun(_ context.Context, exec *domain.Execution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.runs[exec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, exec.ID)
	}

	cp := *exec
	l.runs[exec.ID] = &runRecord{
		exec:  &cp,
		index: make(map[string]*domain.NodeExecution),
	}
	l.seq = append(l.seq, exec.ID)
	return nil
}

// NodeStarted фиксирует начало выполнения узла.
func (l *InMemoryLedger) NodeStarted(_ context.Context, node *domain.NodeExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.record(node.ExecutionID)
	if err != nil {
		return err
	}

	if existing, ok := rec.index[node.NodeID]; ok && existing.Status.IsTerminal() {
		return fmt.Errorf("%w: node %s", ErrTerminalTransition, node.NodeID)
	}

	cp := *node
	rec.index[node.NodeID] = &cp
	rec.nodes = append(rec.nodes, &cp)
	return nil
}

// NodeCompleted фиксирует успешное завершение узла.
func (l *InMemoryLedger) NodeCompleted(ctx context.Context, node *domain.NodeExecution) error {
	return l.finishNode(node)
}

// NodeFailed фиксирует сбой узла.
func (l *InMemoryLedger) NodeFailed(ctx context.Context, node *domain.NodeExecution) error {
	return l.finishNode(node)
}

// NodeSkipped фиксирует пропуск узла.
//
// Пропущенный узел может не иметь записи NodeStarted: пропуск
// создаёт запись сразу в терминальном статусе.
func (l *InMemoryLedger) NodeSkipped(_ context.Context, node *domain.NodeExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.record(node.ExecutionID)
	if err != nil {
		return err
	}

	if existing, ok := rec.index[node.NodeID]; ok {
		if existing.Status.IsTerminal() {
			return fmt.Errorf("%w: node %s", ErrTerminalTransition, node.NodeID)
		}
		*existing = *node
		return nil
	}

	cp := *node
	rec.index[node.NodeID] = &cp
	rec.nodes = append(rec.nodes, &cp)
	return nil
}

// finishNode обновляет существующую запись узла терминальным статусом.
func (l *InMemoryLedger) finishNode(node *domain.NodeExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.record(node.ExecutionID)
	if err != nil {
		return err
	}

	existing, ok := rec.index[node.NodeID]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNodeNotFound, node.NodeID)
	}
	if existing.Status.IsTerminal() {
		return fmt.Errorf("%w: node %s", ErrTerminalTransition, node.NodeID)
	}

	*existing = *node
	return nil
}

// Finalize фиксирует терминальный статус запуска.
func (l *InMemoryLedger) Finalize(_ context.Context, exec *domain.Execution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.record(exec.ID)
	if err != nil {
		return err
	}
	if rec.exec.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s", ErrTerminalTransition, exec.ID)
	}

	nodes := rec.exec.Nodes
	cp := *exec
	rec.exec = &cp
	rec.exec.Nodes = nodes
	return nil
}

// GetRun возвращает копию запуска вместе с записями узлов.
func (l *InMemoryLedger) GetRun(_ context.Context, runID uuid.UUID) (*domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, err := l.record(runID)
	if err != nil {
		return nil, err
	}

	return rec.snapshot(), nil
}

// ListRuns возвращает последние запуски, новые первыми.
func (l *InMemoryLedger) ListRuns(_ context.Context, workflowID uuid.UUID, limit int) ([]*domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Execution, 0)
	for _, id := range l.seq {
		rec := l.runs[id]
		if workflowID != uuid.Nil && rec.exec.WorkflowID != workflowID {
			continue
		}
		out = append(out, rec.snapshot())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *InMemoryLedger) record(runID uuid.UUID) (*runRecord, error) {
	rec, exists := l.runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, nil
}

// snapshot делает копию записи запуска вместе с узлами.
func (r *runRecord) snapshot() *domain.Execution {
	cp := *r.exec
	cp.Nodes = make([]domain.NodeExecution, len(r.nodes))
	for i, n := range r.nodes {
		cp.Nodes[i] = *n
	}
	return &cp
}
