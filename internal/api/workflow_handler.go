package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// ListWorkflows возвращает список всех workflows без графов.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowSummary, len(workflows))
	for i := range workflows {
		result[i] = WorkflowSummaryFromDomain(&workflows[i])
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow.
//
// Граф проверяется структурно до сохранения; при нарушениях возвращается
// 422 со списком всех проблем сразу.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	now := time.Now()
	wf := &domain.Workflow{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Version:     newContentVersion(),
		IsActive:    false,
		Tags:        req.Tags,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if details := h.validateGraph(wf); details != nil {
		InvalidGraph(w, details)
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.Create(r.Context(), wf), "") {
		return
	}

	Created(w, WorkflowFromDomain(wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(wf))
}

// UpdateWorkflow обновляет workflow. Граф заменяется целиком,
// контентная версия меняется при каждом сохранении.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Tags != nil {
		wf.Tags = *req.Tags
	}
	if req.Nodes != nil {
		wf.Nodes = *req.Nodes
	}
	if req.Edges != nil {
		wf.Edges = *req.Edges
	}
	wf.Version = newContentVersion()
	wf.UpdatedAt = time.Now()

	if details := h.validateGraph(wf); details != nil {
		InvalidGraph(w, details)
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.Update(r.Context(), wf), "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(wf))
}

// SetWorkflowActive активирует или деактивирует workflow.
// Активировать можно только структурно валидный граф.
// PUT /api/v1/workflows/{id}/active
func (h *Handler) SetWorkflowActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Active {
		if details := h.validateGraph(wf); details != nil {
			InvalidGraph(w, details)
			return
		}
	}

	if HandleRepoError(w, h.logger, h.workflows.SetActive(r.Context(), id, req.Active), "workflow not found") {
		return
	}

	wf.IsActive = req.Active
	Success(w, WorkflowFromDomain(wf))
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.Delete(r.Context(), id), "workflow not found") {
		return
	}

	NoContent(w)
}

// ValidateWorkflow проверяет граф без сохранения.
// POST /api/v1/workflows/validate
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf := &domain.Workflow{Nodes: req.Nodes, Edges: req.Edges}
	if details := h.validateGraph(wf); details != nil {
		InvalidGraph(w, details)
		return
	}

	Success(w, map[string]any{"valid": true})
}

// validateGraph прогоняет структурную валидацию и возвращает список
// нарушений. nil означает валидный граф.
func (h *Handler) validateGraph(wf *domain.Workflow) []string {
	errs := engine.Validate(wf, h.catalog)
	if len(errs) == 0 {
		return nil
	}

	details := make([]string, len(errs))
	for i, ve := range errs {
		details[i] = ve.Error()
	}
	return details
}

// newContentVersion выдаёт новую контентную версию снимка графа.
func newContentVersion() string {
	return uuid.New().String()
}
