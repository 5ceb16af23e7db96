package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
)

// WorkflowStore — хранилище workflows. Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context) ([]domain.Workflow, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — хранилище executions. Реализуется repo.ExecutionRepo.
type RunStore interface {
	CreatePending(ctx context.Context, exec *domain.Execution) error
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.Execution, error)
	ListRuns(ctx context.Context, workflowID uuid.UUID, limit int) ([]*domain.Execution, error)
	RequestCancel(ctx context.Context, runID uuid.UUID) error
	GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error)
}

// CredentialStore — хранилище credentials. Реализуется repo.CredentialRepo.
// Значения секретов наружу не отдаются.
type CredentialStore interface {
	Put(ctx context.Context, cred *repo.Credential) error
	List(ctx context.Context) ([]repo.Credential, error)
	Delete(ctx context.Context, ref string) error
}

// ScheduleStore — хранилище schedules. Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, workflowID uuid.UUID) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows   WorkflowStore
	runs        RunStore
	credentials CredentialStore
	schedules   ScheduleStore
	catalog     *catalog.Registry
	publisher   *mq.Publisher
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows   WorkflowStore
	Runs        RunStore
	Credentials CredentialStore
	Schedules   ScheduleStore
	Catalog     *catalog.Registry
	Publisher   *mq.Publisher
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		workflows:   cfg.Workflows,
		runs:        cfg.Runs,
		credentials: cfg.Credentials,
		schedules:   cfg.Schedules,
		catalog:     cat,
		publisher:   cfg.Publisher,
		logger:      logger,
	}
}
