package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// ScheduleStore — доступ к schedules, нужный планировщику.
// Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// RunStore — доступ к executions, нужный планировщику.
// Реализуется repo.ExecutionRepo.
type RunStore interface {
	CreatePending(ctx context.Context, exec *domain.Execution) error
	GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error)
}

// WorkflowStore — доступ к workflows, нужный планировщику.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	runs      RunStore
	workflows WorkflowStore
	publisher *mq.Publisher
	logger    *slog.Logger
	batchSize int
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Runs      RunStore
	Workflows WorkflowStore
	Publisher *mq.Publisher
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		runs:      cfg.Runs,
		workflows: cfg.Workflows,
		publisher: cfg.Publisher,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт execution
// 3. Обновляет next_due_at
// 4. Публикует run.requested в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		runCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if runCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"runs_created", created,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если execution был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// 1. Проверяем, что workflow существует и активен
	wf, err := s.workflows.GetByID(ctx, sched.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("workflow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"workflow_id", sched.WorkflowID,
			)
			// Двигаем next_due_at, чтобы schedule не зависал в due
			return false, s.advance(ctx, sched, uuid.Nil, now)
		}
		return false, fmt.Errorf("get workflow: %w", err)
	}

	if !wf.IsActive {
		s.logger.Debug("workflow inactive, skipping schedule",
			"schedule_id", sched.ID,
			"workflow_id", sched.WorkflowID,
		)
		return false, s.advance(ctx, sched, uuid.Nil, now)
	}

	if sched.NextDueAt == nil {
		return false, fmt.Errorf("due schedule has no next_due_at")
	}

	// 2. Формируем idempotency key: "{schedule_id}_{next_due_at_unix}".
	// Для одного schedule и конкретного времени будет создан только
	// один execution, даже если тик выполнится дважды.
	idempKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	// 3. Проверяем, не создан ли уже execution (idempotency)
	existing, err := s.runs.GetByIdempotencyKey(ctx, sched.WorkflowID, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var runCreated bool
	var runID uuid.UUID

	if existing != nil {
		s.logger.Debug("execution already exists (idempotency)",
			"schedule_id", sched.ID,
			"run_id", existing.ID,
			"idempotency_key", idempKey,
		)
		runID = existing.ID
	} else {
		// 4. Создаём новый execution
		exec := &domain.Execution{
			ID:             uuid.New(),
			WorkflowID:     sched.WorkflowID,
			Status:         domain.ExecutionStatusPending,
			TriggerPayload: sched.Payload,
			IdempotencyKey: idempKey,
			CreatedAt:      now,
		}

		if err := s.runs.CreatePending(ctx, exec); err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				// Конкурентный тик успел раньше
				return false, nil
			}
			return false, fmt.Errorf("create execution: %w", err)
		}

		s.logger.Info("created execution from schedule",
			"run_id", exec.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"workflow_id", sched.WorkflowID,
		)

		telemetry.SchedulesFired.Inc()
		runID = exec.ID
		runCreated = true
	}

	// 5-6. Вычисляем следующее время и обновляем schedule
	if err := s.advance(ctx, sched, runID, now); err != nil {
		return runCreated, err
	}

	// 7. Публикуем событие в RabbitMQ (если publisher настроен и execution создан)
	if s.publisher != nil && runCreated {
		if err := s.publisher.PublishRunRequested(ctx, runID, sched.WorkflowID); err != nil {
			// Не фатальная ошибка: execution уже в БД,
			// engine подхватит его через polling
			s.logger.Warn("failed to publish run.requested",
				"run_id", runID,
				"error", err,
			)
		}
	}

	return runCreated, nil
}

// advance вычисляет следующее время выполнения и сохраняет schedule.
func (s *Scheduler) advance(ctx context.Context, sched *domain.Schedule, runID uuid.UUID, now time.Time) error {
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving schedule as is",
			"schedule_id", sched.ID,
			"error", err,
		)
		// Schedule некорректный — лучше не трогать next_due_at
		return nil
	}

	if runID != uuid.Nil {
		sched.RecordRun(runID, nextDue)
	} else {
		sched.NextDueAt = &nextDue
		sched.UpdatedAt = time.Now()
	}

	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}
