package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
)

// maxWebhookBody — лимит размера тела вебхука.
const maxWebhookBody = 1 << 20 // 1 MB

// ListRuns возвращает список executions с фильтрацией.
// Записи узлов в списке не возвращаются.
// GET /api/v1/runs?workflow_id=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	var workflowID uuid.UUID
	if s := r.URL.Query().Get("workflow_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		workflowID = id
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), workflowID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run, false)
	}

	List(w, result, len(result))
}

// CreateRun создаёт execution вручную (без вебхука).
// POST /api/v1/workflows/{id}/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	// Idempotency: повторный запрос с тем же ключом возвращает прежний run
	if req.IdempotencyKey != "" {
		existing, err := h.runs.GetByIdempotencyKey(r.Context(), workflowID, req.IdempotencyKey)
		if err == nil && existing != nil {
			Success(w, RunFromDomain(existing, false))
			return
		}
	}

	exec := &domain.Execution{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		Status:         domain.ExecutionStatusPending,
		TriggerPayload: req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	if HandleRepoError(w, h.logger, h.runs.CreatePending(r.Context(), exec), "") {
		return
	}

	h.publishRunRequested(r, exec)

	Created(w, RunFromDomain(exec, false))
}

// GetRun возвращает execution по ID вместе с записями узлов.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	exec, err := h.runs.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(exec, true))
}

// CancelRun запрашивает отмену execution.
//
// Отмена кооперативная: уже начатые узлы доделываются, новые не стартуют.
// Ответ приходит сразу после установки флага, не дожидаясь финализации.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if HandleRepoError(w, h.logger, h.runs.RequestCancel(r.Context(), id), "run not found") {
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRunCancel(r.Context(), id); err != nil {
			h.logger.Warn("failed to publish run.cancel", "run_id", id, "error", err)
		}
	}

	exec, err := h.runs.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Accepted(w, RunFromDomain(exec, false))
}

// Webhook принимает входящий HTTP-запрос и запускает workflow.
//
// Trigger payload собирается из тела, заголовков и query-параметров
// запроса. Принимаются только активные workflows.
// POST /api/v1/hooks/{workflowId}
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("workflowId"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if !wf.IsActive {
		Conflict(w, "workflow is not active")
		return
	}

	trigger, err := webhookPayload(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	exec := &domain.Execution{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		Status:         domain.ExecutionStatusPending,
		TriggerPayload: trigger,
		CreatedAt:      time.Now(),
	}

	if HandleRepoError(w, h.logger, h.runs.CreatePending(r.Context(), exec), "") {
		return
	}

	h.publishRunRequested(r, exec)

	Accepted(w, map[string]any{
		"run_id": exec.ID,
		"status": exec.Status,
	})
}

// publishRunRequested публикует run.requested, если publisher настроен.
// Ошибка публикации не фатальна: движок подхватит run через polling.
func (h *Handler) publishRunRequested(r *http.Request, exec *domain.Execution) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishRunRequested(r.Context(), exec.ID, exec.WorkflowID); err != nil {
		h.logger.Warn("failed to publish run.requested", "run_id", exec.ID, "error", err)
	}
}

// webhookPayload собирает trigger payload из запроса.
func webhookPayload(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, err
	}

	// Тело: JSON разбираем, остальное передаём строкой
	var body any
	if len(raw) > 0 {
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/json") || looksLikeJSON(raw) {
			if err := json.Unmarshal(raw, &body); err != nil {
				body = string(raw)
			}
		} else {
			body = string(raw)
		}
	}

	headers := make(map[string]any, len(r.Header))
	for name := range r.Header {
		headers[strings.ToLower(name)] = r.Header.Get(name)
	}

	query := make(map[string]any)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	return map[string]any{
		"body":    body,
		"headers": headers,
		"query":   query,
		"method":  r.Method,
		"path":    r.URL.Path,
	}, nil
}

func looksLikeJSON(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
