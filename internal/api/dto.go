package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	Nodes       []domain.NodeInstance `json:"nodes"`
	Edges       []domain.Edge         `json:"edges"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
// Граф заменяется целиком; частичных правок узлов нет.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Tags        *[]string              `json:"tags,omitempty"`
	Nodes       *[]domain.NodeInstance `json:"nodes,omitempty"`
	Edges       *[]domain.Edge         `json:"edges,omitempty"`
}

// SetActiveRequest — запрос на активацию/деактивацию workflow.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Version     string                `json:"version"`
	IsActive    bool                  `json:"is_active"`
	Tags        []string              `json:"tags,omitempty"`
	Nodes       []domain.NodeInstance `json:"nodes"`
	Edges       []domain.Edge         `json:"edges"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf *domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Version:     wf.Version,
		IsActive:    wf.IsActive,
		Tags:        wf.Tags,
		Nodes:       wf.Nodes,
		Edges:       wf.Edges,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// WorkflowSummary — сокращённый workflow для списков (без графа).
type WorkflowSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	IsActive  bool      `json:"is_active"`
	Tags      []string  `json:"tags,omitempty"`
	Nodes     int       `json:"nodes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowSummaryFromDomain конвертирует domain.Workflow в WorkflowSummary.
func WorkflowSummaryFromDomain(wf *domain.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:        wf.ID,
		Name:      wf.Name,
		Version:   wf.Version,
		IsActive:  wf.IsActive,
		Tags:      wf.Tags,
		Nodes:     len(wf.Nodes),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
}

// Run DTOs

// CreateRunRequest — запрос на ручной запуск workflow.
type CreateRunRequest struct {
	Trigger        map[string]any `json:"trigger,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RunResponse — ответ с execution.
type RunResponse struct {
	ID              uuid.UUID            `json:"id"`
	WorkflowID      uuid.UUID            `json:"workflow_id"`
	WorkflowVersion string               `json:"workflow_version,omitempty"`
	Status          string               `json:"status"`
	TriggerPayload  map[string]any       `json:"trigger_payload,omitempty"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	FinishedAt      *time.Time           `json:"finished_at,omitempty"`
	Error           string               `json:"error,omitempty"`
	CancelRequested bool                 `json:"cancel_requested,omitempty"`
	IdempotencyKey  string               `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	Nodes           []NodeRecordResponse `json:"nodes,omitempty"`
}

// NodeRecordResponse — запись о выполнении узла.
type NodeRecordResponse struct {
	NodeID         string         `json:"node_id"`
	Kind           string         `json:"kind"`
	Status         string         `json:"status"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	ResolvedInput  map[string]any `json:"resolved_input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	ActivatedPorts []string       `json:"activated_ports,omitempty"`
	Error          string         `json:"error,omitempty"`
	SkipReason     string         `json:"skip_reason,omitempty"`
}

// RunFromDomain конвертирует domain.Execution в RunResponse.
// withNodes управляет включением записей узлов (в списках они избыточны).
func RunFromDomain(exec *domain.Execution, withNodes bool) RunResponse {
	resp := RunResponse{
		ID:              exec.ID,
		WorkflowID:      exec.WorkflowID,
		WorkflowVersion: exec.WorkflowVersion,
		Status:          string(exec.Status),
		TriggerPayload:  exec.TriggerPayload,
		StartedAt:       exec.StartedAt,
		FinishedAt:      exec.FinishedAt,
		Error:           exec.Error,
		CancelRequested: exec.CancelRequested,
		IdempotencyKey:  exec.IdempotencyKey,
		CreatedAt:       exec.CreatedAt,
	}

	if withNodes {
		resp.Nodes = make([]NodeRecordResponse, len(exec.Nodes))
		for i := range exec.Nodes {
			n := &exec.Nodes[i]
			resp.Nodes[i] = NodeRecordResponse{
				NodeID:         n.NodeID,
				Kind:           n.Kind,
				Status:         string(n.Status),
				StartedAt:      n.StartedAt,
				FinishedAt:     n.FinishedAt,
				ResolvedInput:  n.ResolvedInput,
				Output:         n.Output,
				ActivatedPorts: n.ActivatedPorts,
				Error:          n.Error,
				SkipReason:     n.SkipReason,
			}
		}
	}

	return resp
}

// Credential DTOs

// PutCredentialRequest — запрос на сохранение credential.
// Значение принимается один раз и наружу больше не отдаётся.
type PutCredentialRequest struct {
	Ref   string `json:"ref"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

// CredentialResponse — ответ с credential. Без значения.
type CredentialResponse struct {
	Ref       string    `json:"ref"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialFromRepo конвертирует repo.Credential в CredentialResponse.
func CredentialFromRepo(c *repo.Credential) CredentialResponse {
	return CredentialResponse{
		Ref:       c.Ref,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string         `json:"name,omitempty"`
	CronExpr    *string         `json:"cron_expr,omitempty"`
	IntervalSec *int            `json:"interval_sec,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
	Payload     *map[string]any `json:"payload,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  uuid.UUID      `json:"workflow_id"`
	Name        string         `json:"name"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone"`
	Enabled     bool           `json:"enabled"`
	NextDueAt   *time.Time     `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
	LastRunID   *uuid.UUID     `json:"last_run_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:          s.ID,
		WorkflowID:  s.WorkflowID,
		Name:        s.Name,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		LastRunID:   s.LastRunID,
		Payload:     s.Payload,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
