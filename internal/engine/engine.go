package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/capability"
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/ledger"
)

// Значения по умолчанию.
const (
	// DefaultRunTimeout — лимит времени запуска по умолчанию.
	DefaultRunTimeout = 10 * time.Minute

	// DefaultNodeTimeout — таймаут одного узла по умолчанию.
	DefaultNodeTimeout = 5 * time.Minute
)

// CredentialResolver разрешает ссылку на credential в значение секрета.
//
// Значения используются только в момент вызова провайдера и никогда
// не попадают в журнал запуска и в логи.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// MapResolver — CredentialResolver поверх map. Используется в тестах.
type MapResolver map[string]string

// Resolve возвращает секрет по ссылке.
func (m MapResolver) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("credential %q not found", ref)
	}
	return v, nil
}

// Config — конфигурация движка.
type Config struct {
	Catalog     *catalog.Registry
	Providers   *capability.Registry
	Ledger      ledger.Ledger
	Credentials CredentialResolver
	Logger      *slog.Logger

	// RunTimeout — лимит времени одного запуска.
	RunTimeout time.Duration

	// NodeTimeout — таймаут одного узла.
	NodeTimeout time.Duration
}

// Engine — координатор выполнения workflow.
//
// Один Engine обслуживает много запусков одновременно; каждый запуск
// координируется отдельной горутиной внутри Execute.
type Engine struct {
	catalog     *catalog.Registry
	providers   *capability.Registry
	ledger      ledger.Ledger
	creds       CredentialResolver
	logger      *slog.Logger
	runTimeout  time.Duration
	nodeTimeout time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]*activeRun
}

// activeRun — выполняющийся запуск, доступный для отмены.
type activeRun struct {
	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func (a *activeRun) cancel() {
	a.cancelOnce.Do(func() { close(a.cancelCh) })
}

// New создаёт движок.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = DefaultNodeTimeout
	}
	return &Engine{
		catalog:     cfg.Catalog,
		providers:   cfg.Providers,
		ledger:      cfg.Ledger,
		creds:       cfg.Credentials,
		logger:      cfg.Logger,
		runTimeout:  cfg.RunTimeout,
		nodeTimeout: cfg.NodeTimeout,
		active:      make(map[uuid.UUID]*activeRun),
	}
}

// RunRequest — запрос на выполнение workflow.
type RunRequest struct {
	// RunID — идентификатор запуска. uuid.Nil означает новый.
	RunID uuid.UUID

	// Workflow — документ workflow на момент запуска.
	Workflow *domain.Workflow

	// Trigger — trigger payload.
	Trigger map[string]any

	// IdempotencyKey — ключ идемпотентности (для запусков по расписанию).
	IdempotencyKey string
}

// nodeResult — результат выполнения одного узла.
type nodeResult struct {
	rec  *domain.NodeExecution
	resp *capability.Response
	err  error
}

// Execute выполняет workflow от начала до конца и возвращает
// итоговую запись запуска из журнала.
//
// Невалидный граф порождает запись запуска в статусе FAILED без
// записей узлов. Ошибка возвращается только при сбое журнала.
func (e *Engine) Execute(ctx context.Context, req RunRequest) (*domain.Execution, error) {
	runID := req.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	wf := req.Workflow

	exec := &domain.Execution{
		ID:              runID,
		WorkflowID:      wf.ID,
		WorkflowVersion: wf.Version,
		Status:          domain.ExecutionStatusPending,
		TriggerPayload:  req.Trigger,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       time.Now(),
	}
	exec.MarkRunning()

	// Журнальные записи должны пережить отмену исходного контекста.
	persistCtx := context.WithoutCancel(ctx)

	if err := e.ledger.StartRun(persistCtx, exec); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	log := e.logger.With("run_id", runID, "workflow_id", wf.ID)

	if errs := Validate(wf, e.catalog); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, ve := range errs {
			msgs[i] = ve.Error()
		}
		exec.MarkFailed("invalid workflow: " + strings.Join(msgs, "; "))
		log.Warn("run rejected by validation", "errors", len(errs))
		if err := e.ledger.Finalize(persistCtx, exec); err != nil {
			return nil, fmt.Errorf("finalize run: %w", err)
		}
		return e.ledger.GetRun(persistCtx, runID)
	}

	ar := &activeRun{cancelCh: make(chan struct{})}
	e.mu.Lock()
	e.active[runID] = ar
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, runID)
		e.mu.Unlock()
	}()

	log.Info("run started", "nodes", len(wf.Nodes))

	g := BuildGraph(wf, e.catalog)
	st := newRunState(g)
	exprCtx := NewExprContext(wf, req.Trigger)

	// Узлы, недостижимые из триггеров, не выполняются никогда.
	reachable := g.Reachable()
	for _, id := range g.Order {
		if !reachable[id] {
			st.markSkipped(id, domain.SkipReasonUnreachable)
			e.recordSkip(persistCtx, exec, g.Node(id), domain.SkipReasonUnreachable)
		}
	}

	for _, id := range g.Triggers {
		st.enqueue(id)
	}

	results := make(chan nodeResult)
	inFlight := 0
	cancelled := false
	timedOut := false

	timer := time.NewTimer(e.runTimeout)
	defer timer.Stop()

	for {
		if !cancelled && !timedOut {
			for {
				id, ok := st.dequeue()
				if !ok {
					break
				}
				if res := e.startNode(ctx, persistCtx, exec, st, exprCtx, g.Node(id), results); res != nil {
					// Узел завершился не начавшись: ошибка разрешения
					// выражения, credentials или отсутствие провайдера.
					e.handleResult(persistCtx, log, exec, st, exprCtx, res)
				} else {
					inFlight++
				}
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case res := <-results:
			inFlight--
			e.handleResult(persistCtx, log, exec, st, exprCtx, &res)
		case <-timer.C:
			timedOut = true
			log.Warn("run timed out", "timeout", e.runTimeout)
		case <-ar.cancelCh:
			cancelled = true
			log.Info("run cancellation requested")
		case <-ctx.Done():
			cancelled = true
			log.Info("run context cancelled", "err", ctx.Err())
		}
	}

	// Узлы, не успевшие начаться, пропускаются. При штатном выходе
	// остатков не бывает: недостижимые узлы пропущены до цикла,
	// достижимые решены каскадом advance. Сюда попадают только узлы,
	// отсечённые отменой или таймаутом.
	leftoverReason := domain.SkipReasonUnreachable
	if cancelled || timedOut {
		leftoverReason = domain.SkipReasonCancelled
	}
	leftovers := append(st.drainQueue(), st.pendingNodes()...)
	for _, id := range leftovers {
		st.markSkipped(id, leftoverReason)
		e.recordSkip(persistCtx, exec, g.Node(id), leftoverReason)
	}

	switch {
	case cancelled:
		exec.MarkCancelled()
	case timedOut:
		exec.MarkFailed(ErrRunTimeout.Error())
	case st.failed:
		exec.MarkFailed(st.firstError)
	default:
		exec.MarkCompleted()
	}

	log.Info("run finished",
		"status", exec.Status,
		"duration", exec.Duration().String())

	if err := e.ledger.Finalize(persistCtx, exec); err != nil {
		return nil, fmt.Errorf("finalize run: %w", err)
	}
	return e.ledger.GetRun(persistCtx, runID)
}

// CancelRun запрашивает отмену выполняющегося запуска.
//
// Узлы в полёте завершаются штатно, новые узлы не начинаются.
// Возвращает ErrRunNotActive, если запуск не выполняется этим
// процессом.
func (e *Engine) CancelRun(runID uuid.UUID) error {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	ar.cancel()
	return nil
}

// ActiveRuns возвращает ID запусков, выполняющихся этим процессом.
func (e *Engine) ActiveRuns() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	return ids
}

// startNode готовит узел к выполнению и запускает провайдер в горутине.
//
// Разрешение выражений и credentials идёт в горутине координатора.
// Ненулевой результат означает, что узел завершился сбоем ещё до
// вызова провайдера.
func (e *Engine) startNode(ctx, persistCtx context.Context, exec *domain.Execution, st *runState, exprCtx *ExprContext, node *domain.NodeInstance, results chan<- nodeResult) *nodeResult {
	rec := &domain.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		NodeID:      node.ID,
		Kind:        node.Kind,
		Status:      domain.NodeStatusPending,
	}
	rec.MarkRunning()
	st.status[node.ID] = domain.NodeStatusRunning

	if err := e.ledger.NodeStarted(persistCtx, rec); err != nil {
		return &nodeResult{rec: rec, err: fmt.Errorf("journal node start: %w", err)}
	}

	tmpl, err := e.catalog.Get(node.Kind)
	if err != nil {
		return &nodeResult{rec: rec, err: err}
	}

	cfg := mergeConfig(tmpl.DefaultConfig(), node.Config)
	resolved, err := exprCtx.ResolveConfig(node.ID, cfg)
	if err != nil {
		return &nodeResult{rec: rec, err: err}
	}
	rec.ResolvedInput = resolved

	// Секреты разрешаются отдельно от конфигурации и не попадают
	// ни в ResolvedInput, ни в журнал.
	creds, err := e.resolveCredentials(ctx, node)
	if err != nil {
		return &nodeResult{rec: rec, err: err}
	}

	provider, err := e.providers.Get(node.Kind)
	if err != nil {
		return &nodeResult{rec: rec, err: err}
	}

	req := &capability.Request{
		RunID:       exec.ID,
		Node:        node,
		Config:      resolved,
		Credentials: creds,
		Trigger:     exec.TriggerPayload,
		Timeout:     e.nodeTimeout,
	}

	go func() {
		// Отмена запуска не прерывает узлы в полёте, поэтому контекст
		// узла не наследует отмену, только таймаут.
		nodeCtx, cancel := context.WithTimeout(persistCtx, e.nodeTimeout)
		defer cancel()

		resp, err := provider.Invoke(nodeCtx, req)
		results <- nodeResult{rec: rec, resp: resp, err: err}
	}()

	return nil
}

// handleResult фиксирует результат узла в журнале и состоянии запуска
// и продвигает готовые и пропущенные узлы.
func (e *Engine) handleResult(persistCtx context.Context, log *slog.Logger, exec *domain.Execution, st *runState, exprCtx *ExprContext, res *nodeResult) {
	rec := res.rec

	if res.err != nil || res.resp == nil {
		msg := "node returned no response"
		if res.err != nil {
			msg = res.err.Error()
		}
		rec.MarkFailed(msg)
		st.markFailed(rec.NodeID, fmt.Sprintf("node %s: %s", rec.NodeID, msg))
		if err := e.ledger.NodeFailed(persistCtx, rec); err != nil {
			log.Error("journal node failure", "node_id", rec.NodeID, "err", err)
		}
		log.Warn("node failed", "node_id", rec.NodeID, "kind", rec.Kind, "err", msg)
	} else {
		ports := res.resp.ActivatedPorts
		if len(ports) == 0 {
			ports = []string{domain.PortDefault}
		}
		rec.MarkCompleted(res.resp.Outputs, ports)
		st.markCompleted(rec.NodeID, ports)
		exprCtx.SetOutput(rec.NodeID, res.resp.Outputs)
		if err := e.ledger.NodeCompleted(persistCtx, rec); err != nil {
			log.Error("journal node completion", "node_id", rec.NodeID, "err", err)
		}
		log.Debug("node completed",
			"node_id", rec.NodeID,
			"kind", rec.Kind,
			"ports", ports,
			"duration", rec.Duration().String())
	}

	for _, id := range st.advance(rec.NodeID) {
		e.recordSkip(persistCtx, exec, st.graph.Node(id), st.skipReason[id])
	}
}

// recordSkip пишет запись пропущенного узла в журнал.
func (e *Engine) recordSkip(persistCtx context.Context, exec *domain.Execution, node *domain.NodeInstance, reason string) {
	rec := &domain.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		NodeID:      node.ID,
		Kind:        node.Kind,
		Status:      domain.NodeStatusPending,
	}
	rec.MarkSkipped(reason)
	if err := e.ledger.NodeSkipped(persistCtx, rec); err != nil {
		e.logger.Error("journal node skip", "run_id", exec.ID, "node_id", node.ID, "err", err)
	}
}

// resolveCredentials разрешает все credential-ссылки узла.
func (e *Engine) resolveCredentials(ctx context.Context, node *domain.NodeInstance) (map[string]string, error) {
	if len(node.CredentialRefs) == 0 {
		return nil, nil
	}
	if e.creds == nil {
		return nil, fmt.Errorf("node %s: no credential resolver configured", node.ID)
	}
	creds := make(map[string]string, len(node.CredentialRefs))
	for slot, ref := range node.CredentialRefs {
		value, err := e.creds.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve credential for slot %q: %w", slot, err)
		}
		creds[slot] = value
	}
	return creds, nil
}

// mergeConfig накладывает конфигурацию узла на значения по умолчанию.
func mergeConfig(defaults, config map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(config))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}
	return merged
}
