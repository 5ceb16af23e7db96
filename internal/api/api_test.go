package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

// --- Fakes ---

type fakeWorkflowStore struct {
	mu  sync.Mutex
	wfs map[uuid.UUID]*domain.Workflow
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{wfs: make(map[uuid.UUID]*domain.Workflow)}
}

func (s *fakeWorkflowStore) Create(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wfs[wf.ID] = wf
	return nil
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.wfs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

func (s *fakeWorkflowStore) List(_ context.Context) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Workflow, 0, len(s.wfs))
	for _, wf := range s.wfs {
		out = append(out, *wf)
	}
	return out, nil
}

func (s *fakeWorkflowStore) Update(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wfs[wf.ID]; !ok {
		return repo.ErrNotFound
	}
	s.wfs[wf.ID] = wf
	return nil
}

func (s *fakeWorkflowStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.wfs[id]
	if !ok {
		return repo.ErrNotFound
	}
	wf.IsActive = active
	return nil
}

func (s *fakeWorkflowStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wfs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.wfs, id)
	return nil
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Execution
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*domain.Execution)}
}

func (s *fakeRunStore) CreatePending(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[exec.ID] = exec
	return nil
}

func (s *fakeRunStore) GetRun(_ context.Context, runID uuid.UUID) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.runs[runID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return exec, nil
}

func (s *fakeRunStore) ListRuns(_ context.Context, workflowID uuid.UUID, limit int) ([]*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Execution
	for _, exec := range s.runs {
		if workflowID != uuid.Nil && exec.WorkflowID != workflowID {
			continue
		}
		out = append(out, exec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeRunStore) RequestCancel(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.runs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	if exec.IsFinished() {
		return repo.ErrInvalidState
	}
	exec.CancelRequested = true
	return nil
}

func (s *fakeRunStore) GetByIdempotencyKey(_ context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exec := range s.runs {
		if exec.WorkflowID == workflowID && exec.IdempotencyKey == key {
			return exec, nil
		}
	}
	return nil, repo.ErrNotFound
}

type fakeCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*repo.Credential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{creds: make(map[string]*repo.Credential)}
}

func (s *fakeCredentialStore) Put(_ context.Context, cred *repo.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred.UpdatedAt = time.Now()
	if existing, ok := s.creds[cred.Ref]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = cred.UpdatedAt
	}
	s.creds[cred.Ref] = cred
	return nil
}

func (s *fakeCredentialStore) List(_ context.Context) ([]repo.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repo.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		// Как и настоящий repo, список не отдаёт значения
		out = append(out, repo.Credential{
			Ref:       cred.Ref,
			Name:      cred.Name,
			CreatedAt: cred.CreatedAt,
			UpdatedAt: cred.UpdatedAt,
		})
	}
	return out, nil
}

func (s *fakeCredentialStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[ref]; !ok {
		return repo.ErrNotFound
	}
	delete(s.creds, ref)
	return nil
}

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.Schedule
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: make(map[uuid.UUID]*domain.Schedule)}
}

func (s *fakeScheduleStore) Create(_ context.Context, sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
	return nil
}

func (s *fakeScheduleStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return sched, nil
}

func (s *fakeScheduleStore) List(_ context.Context, workflowID uuid.UUID) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Schedule
	for _, sched := range s.schedules {
		if workflowID != uuid.Nil && sched.WorkflowID != workflowID {
			continue
		}
		out = append(out, *sched)
	}
	return out, nil
}

func (s *fakeScheduleStore) Update(_ context.Context, sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.ID]; !ok {
		return repo.ErrNotFound
	}
	s.schedules[sched.ID] = sched
	return nil
}

func (s *fakeScheduleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *fakeScheduleStore) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	sched.Enabled = enabled
	return nil
}

// --- Helpers ---

type testEnv struct {
	mux       *http.ServeMux
	workflows *fakeWorkflowStore
	runs      *fakeRunStore
	creds     *fakeCredentialStore
	schedules *fakeScheduleStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		mux:       http.NewServeMux(),
		workflows: newFakeWorkflowStore(),
		runs:      newFakeRunStore(),
		creds:     newFakeCredentialStore(),
		schedules: newFakeScheduleStore(),
	}

	h := NewHandler(Config{
		Workflows:   env.workflows,
		Runs:        env.runs,
		Credentials: env.creds,
		Schedules:   env.schedules,
	})
	h.RegisterRoutes(env.mux)

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func validWorkflowBody() map[string]any {
	return map[string]any{
		"name": "ping",
		"nodes": []map[string]any{
			{"id": "hook", "kind": "webhook", "label": "Hook"},
			{"id": "reply", "kind": "response", "label": "Reply"},
		},
		"edges": []map[string]any{
			{"id": "e1", "source_node_id": "hook", "source_port": "default", "target_node_id": "reply"},
		},
	}
}

// --- Workflows ---

func TestCreateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	wf := decodeData[WorkflowResponse](t, rec)
	if wf.Name != "ping" {
		t.Errorf("name = %q, want ping", wf.Name)
	}
	if wf.Version == "" {
		t.Error("expected content version to be set")
	}
	if wf.IsActive {
		t.Error("new workflow must be inactive")
	}
}

func TestCreateWorkflowInvalidGraph(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"name": "broken",
		"nodes": []map[string]any{
			{"id": "a", "kind": "no-such-kind"},
		},
		"edges": []map[string]any{
			{"id": "e1", "source_node_id": "a", "source_port": "default", "target_node_id": "ghost"},
		},
	}

	rec := env.do(t, http.MethodPost, "/api/v1/workflows", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeInvalidGraph {
		t.Errorf("code = %s, want INVALID_GRAPH", resp.Error.Code)
	}
	// Клиент получает все нарушения разом, не только первое
	if len(resp.Error.Details) < 2 {
		t.Errorf("details = %v, want at least 2 violations", resp.Error.Details)
	}

	env.workflows.mu.Lock()
	defer env.workflows.mu.Unlock()
	if len(env.workflows.wfs) != 0 {
		t.Error("invalid workflow must not be saved")
	}
}

func TestCreateWorkflowDetachedCycleSaved(t *testing.T) {
	env := newTestEnv(t)

	// Цикл в острове, недостижимом из триггера, не мешает сохранению:
	// движок пропустит его узлы как недостижимые.
	body := validWorkflowBody()
	body["nodes"] = append(body["nodes"].([]map[string]any),
		map[string]any{"id": "loop_a", "kind": "response", "label": "A"},
		map[string]any{"id": "loop_b", "kind": "response", "label": "B"},
	)
	body["edges"] = append(body["edges"].([]map[string]any),
		map[string]any{"id": "e2", "source_node_id": "loop_a", "source_port": "default", "target_node_id": "loop_b"},
		map[string]any{"id": "e3", "source_node_id": "loop_b", "source_port": "default", "target_node_id": "loop_a"},
	)

	rec := env.do(t, http.MethodPost, "/api/v1/workflows", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	env.workflows.mu.Lock()
	defer env.workflows.mu.Unlock()
	if len(env.workflows.wfs) != 1 {
		t.Errorf("saved workflows = %d, want 1", len(env.workflows.wfs))
	}
}

func TestActivateInvalidGraph(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "empty"}
	env.workflows.wfs[wf.ID] = wf

	rec := env.do(t, http.MethodPut, "/api/v1/workflows/"+wf.ID.String()+"/active",
		map[string]any{"active": true})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
	if wf.IsActive {
		t.Error("workflow with invalid graph must not activate")
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/workflows/validate", validWorkflowBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

// --- Runs ---

func TestCreateRunIdempotent(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "ping", IsActive: true}
	env.workflows.wfs[wf.ID] = wf

	body := map[string]any{
		"trigger":         map[string]any{"k": "v"},
		"idempotency_key": "once",
	}

	first := env.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/runs", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201: %s", first.Code, first.Body)
	}
	firstRun := decodeData[RunResponse](t, first)

	second := env.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/runs", body)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200: %s", second.Code, second.Body)
	}
	secondRun := decodeData[RunResponse](t, second)

	if firstRun.ID != secondRun.ID {
		t.Errorf("idempotent replay created a new run: %s vs %s", firstRun.ID, secondRun.ID)
	}

	env.runs.mu.Lock()
	defer env.runs.mu.Unlock()
	if len(env.runs.runs) != 1 {
		t.Errorf("runs = %d, want 1", len(env.runs.runs))
	}
}

func TestCancelFinishedRun(t *testing.T) {
	env := newTestEnv(t)

	runID := uuid.New()
	exec := &domain.Execution{ID: runID, WorkflowID: uuid.New(), Status: domain.ExecutionStatusPending}
	exec.MarkRunning()
	exec.MarkCompleted()
	env.runs.runs[runID] = exec

	rec := env.do(t, http.MethodPost, "/api/v1/runs/"+runID.String()+"/cancel", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
}

// --- Webhooks ---

func TestWebhookCreatesRun(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "ping", IsActive: true}
	env.workflows.wfs[wf.ID] = wf

	rec := env.do(t, http.MethodPost, "/api/v1/hooks/"+wf.ID.String(),
		map[string]any{"order_id": 42})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}

	env.runs.mu.Lock()
	defer env.runs.mu.Unlock()
	if len(env.runs.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(env.runs.runs))
	}
	for _, exec := range env.runs.runs {
		if exec.Status != domain.ExecutionStatusPending {
			t.Errorf("status = %s, want PENDING", exec.Status)
		}
		body, ok := exec.TriggerPayload["body"].(map[string]any)
		if !ok {
			t.Fatalf("trigger body = %#v, want object", exec.TriggerPayload["body"])
		}
		if body["order_id"] != float64(42) {
			t.Errorf("order_id = %v, want 42", body["order_id"])
		}
	}
}

func TestWebhookInactiveWorkflow(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "ping", IsActive: false}
	env.workflows.wfs[wf.ID] = wf

	rec := env.do(t, http.MethodPost, "/api/v1/hooks/"+wf.ID.String(), map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body)
	}
	if len(env.runs.runs) != 0 {
		t.Error("inactive workflow must not start runs")
	}
}

func TestWebhookUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/hooks/"+uuid.NewString(), map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body)
	}
}

// --- Credentials ---

func TestCredentialValueNeverReturned(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/credentials",
		map[string]any{"ref": "tg-bot", "name": "Telegram bot", "value": "s3cret-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "s3cret-token") {
		t.Fatal("credential value leaked into PUT response")
	}

	list := env.do(t, http.MethodGet, "/api/v1/credentials", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200: %s", list.Code, list.Body)
	}
	if strings.Contains(list.Body.String(), "s3cret-token") {
		t.Fatal("credential value leaked into list response")
	}
	if !strings.Contains(list.Body.String(), "tg-bot") {
		t.Error("expected credential ref in list response")
	}
}

func TestPutCredentialRequiresValue(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/credentials", map[string]any{"ref": "tg-bot"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

// --- Schedules ---

func TestCreateSchedule(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "ping"}
	env.workflows.wfs[wf.ID] = wf

	rec := env.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/schedules",
		map[string]any{"name": "daily", "cron_expr": "0 9 * * *", "enabled": true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	sched := decodeData[ScheduleResponse](t, rec)
	if sched.NextDueAt == nil {
		t.Error("expected next_due_at to be computed on create")
	}
	if sched.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", sched.Timezone)
	}
}

func TestCreateScheduleTimingValidation(t *testing.T) {
	env := newTestEnv(t)

	wf := &domain.Workflow{ID: uuid.New(), Name: "ping"}
	env.workflows.wfs[wf.ID] = wf

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no timing", map[string]any{"name": "s"}},
		{"both timings", map[string]any{"name": "s", "cron_expr": "0 9 * * *", "interval_sec": 60}},
		{"bad cron", map[string]any{"name": "s", "cron_expr": "not a cron"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/schedules", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body)
			}
		})
	}
}

// --- Catalog ---

func TestGetCatalog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/catalog", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	for _, kind := range []string{"webhook", "if-condition", "telegram-send"} {
		if !strings.Contains(rec.Body.String(), kind) {
			t.Errorf("catalog response missing kind %q", kind)
		}
	}
}
