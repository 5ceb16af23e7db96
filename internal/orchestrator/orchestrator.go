package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/ledger"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval  = 10 * time.Second
	defaultBatchSize     = 100
	defaultMaxConcurrent = 16
)

// WorkflowStore — доступ к workflows, нужный оркестратору.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// RunStore — доступ к executions, нужный оркестратору.
// Реализуется repo.ExecutionRepo.
type RunStore interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.Execution, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Execution, error)
	ListCancelRequested(ctx context.Context, limit int) ([]*domain.Execution, error)
	Finalize(ctx context.Context, exec *domain.Execution) error
}

// Orchestrator запускает движок для новых executions.
//
// Источники работы:
//   - runs.requested из RabbitMQ (event-driven)
//   - pending executions из БД (polling fallback)
//
// Отмена приходит симметрично: runs.cancel из RabbitMQ либо
// cancel_requested из БД.
type Orchestrator struct {
	workflows WorkflowStore
	runs      RunStore
	engine    *engine.Engine

	// MQ (nil conn — режим polling-only)
	conn *mq.Connection

	runConsumer    *mq.Consumer
	cancelConsumer *mq.Consumer

	// inFlight — executions, запущенные этим процессом.
	inFlight map[uuid.UUID]struct{}
	mu       sync.Mutex

	// sem ограничивает число одновременных executions.
	sem chan struct{}

	pollInterval time.Duration
	batchSize    int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	Workflows WorkflowStore
	Runs      RunStore
	Engine    *engine.Engine

	// Conn — соединение с RabbitMQ. nil означает polling-only режим.
	Conn *mq.Connection

	// PollInterval — интервал polling (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество executions за один poll (default: 100).
	BatchSize int

	// MaxConcurrent — максимум одновременных executions (default: 16).
	MaxConcurrent int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		workflows:    cfg.Workflows,
		runs:         cfg.Runs,
		engine:       cfg.Engine,
		conn:         cfg.Conn,
		inFlight:     make(map[uuid.UUID]struct{}),
		sem:          make(chan struct{}, maxConcurrent),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для runs.requested (если есть MQ)
//   - Consumer для runs.cancel (если есть MQ)
//   - Polling горутину для fallback
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
		"max_concurrent", cap(o.sem),
	)

	if o.conn != nil {
		o.runConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRunsRequested,
			Handler:  o.handleRunRequested,
			Prefetch: 10,
		})

		o.cancelConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRunsCancel,
			Handler:  o.handleRunCancel,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.runConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("run consumer error", "error", err)
			}
		}()

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.cancelConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("cancel consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и дожидается завершения горутин.
// Работающие executions получают отмену: начатые узлы доделываются,
// новые не стартуют, run финализируется как CANCELLED.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	if o.runConsumer != nil {
		o.runConsumer.Stop()
	}
	if o.cancelConsumer != nil {
		o.cancelConsumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// InFlightCount возвращает количество executions, запущенных этим процессом.
func (o *Orchestrator) InFlightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

// --- MQ handlers ---

// handleRunRequested обрабатывает событие run.requested.
func (o *Orchestrator) handleRunRequested(ctx context.Context, ev mq.RunEvent) error {
	o.logger.Debug("received run.requested event", "run_id", ev.RunID)

	if err := o.launchRun(ctx, ev.RunID); err != nil {
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
			o.logger.Debug("run not launched", "run_id", ev.RunID, "reason", err)
			return nil
		}
		if errors.Is(err, ErrRunNotFound) {
			// Сообщение обогнало транзакцию — polling подхватит позже.
			o.logger.Debug("run not found yet", "run_id", ev.RunID)
			return nil
		}
		o.logger.Error("failed to launch run", "run_id", ev.RunID, "error", err)
		return err
	}

	return nil
}

// handleRunCancel обрабатывает событие run.cancel.
func (o *Orchestrator) handleRunCancel(ctx context.Context, ev mq.RunEvent) error {
	o.logger.Debug("received run.cancel event", "run_id", ev.RunID)

	if err := o.engine.CancelRun(ev.RunID); err != nil {
		// Run не у нас: либо терминален, либо выполняется другим
		// процессом, который заметит cancel_requested через polling.
		o.logger.Debug("cancel not applied", "run_id", ev.RunID, "reason", err)
	}

	return nil
}

// --- Polling fallback ---

// pollLoop — цикл polling для fallback.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем executions, созданные
	// пока сервис был выключен)
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (o *Orchestrator) poll(ctx context.Context) {
	pending, err := o.runs.ListPending(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list pending runs", "error", err)
	} else {
		for _, exec := range pending {
			if err := o.launchRun(ctx, exec.ID); err != nil {
				if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
					continue
				}
				o.logger.Error("failed to launch run from poll",
					"run_id", exec.ID,
					"error", err,
				)
			}
		}
	}

	cancels, err := o.runs.ListCancelRequested(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list cancel-requested runs", "error", err)
		return
	}
	for _, exec := range cancels {
		if err := o.engine.CancelRun(exec.ID); err != nil {
			o.logger.Debug("cancel not applied", "run_id", exec.ID, "reason", err)
		}
	}
}

// --- Run lifecycle ---

// launchRun загружает execution и workflow и запускает движок в горутине.
func (o *Orchestrator) launchRun(ctx context.Context, runID uuid.UUID) error {
	if o.isInFlight(runID) {
		return ErrRunAlreadyActive
	}

	exec, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, ledger.ErrRunNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if exec.Status != domain.ExecutionStatusPending {
		return ErrRunNotPending
	}

	wf, err := o.workflows.GetByID(ctx, exec.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return o.failRun(ctx, exec, fmt.Sprintf("workflow not found: %s", exec.WorkflowID))
		}
		return fmt.Errorf("get workflow: %w", err)
	}

	if err := o.markInFlight(runID); err != nil {
		return err
	}

	o.wg.Add(1)
	go o.runExecution(ctx, runID, wf, exec)

	return nil
}

// runExecution выполняет один execution от начала до конца.
func (o *Orchestrator) runExecution(ctx context.Context, runID uuid.UUID, wf *domain.Workflow, exec *domain.Execution) {
	defer o.wg.Done()
	defer o.removeInFlight(runID)

	// Ограничиваем параллелизм
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-o.sem }()

	log := o.logger.With("run_id", runID, "workflow_id", wf.ID)
	log.Info("run launched")

	telemetry.RunsStarted.Inc()
	start := time.Now()

	result, err := o.engine.Execute(ctx, engine.RunRequest{
		RunID:          runID,
		Workflow:       wf,
		Trigger:        exec.TriggerPayload,
		IdempotencyKey: exec.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateRun) {
			// Другой процесс успел захватить run.
			log.Debug("run claimed by another process")
			return
		}
		log.Error("run execution error", "error", err)
		return
	}

	telemetry.RunDuration.Observe(time.Since(start).Seconds())
	telemetry.RunsFinished.WithLabelValues(string(result.Status)).Inc()
	observeNodes(result)

	log.Info("run finished",
		"status", result.Status,
		"duration", result.Duration(),
		"nodes", len(result.Nodes),
	)
}

// failRun финализирует execution как FAILED до запуска движка.
func (o *Orchestrator) failRun(ctx context.Context, exec *domain.Execution, errMsg string) error {
	exec.MarkRunning()
	exec.MarkFailed(errMsg)

	if err := o.runs.Finalize(ctx, exec); err != nil {
		return fmt.Errorf("finalize failed run: %w", err)
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.ExecutionStatusFailed)).Inc()

	o.logger.Warn("run failed early",
		"run_id", exec.ID,
		"error", errMsg,
	)

	return nil
}

// observeNodes записывает метрики по узлам завершённого execution.
func observeNodes(exec *domain.Execution) {
	for i := range exec.Nodes {
		node := &exec.Nodes[i]
		telemetry.NodesExecuted.WithLabelValues(node.Kind, string(node.Status)).Inc()
		if d := node.Duration(); d > 0 {
			telemetry.NodeDuration.WithLabelValues(node.Kind).Observe(d.Seconds())
		}
	}
}

// --- In-flight tracking ---

func (o *Orchestrator) isInFlight(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, exists := o.inFlight[runID]
	return exists
}

func (o *Orchestrator) markInFlight(runID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.inFlight[runID]; exists {
		return ErrRunAlreadyActive
	}

	o.inFlight[runID] = struct{}{}
	return nil
}

func (o *Orchestrator) removeInFlight(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, runID)
}
