package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/matrix-api/internal/api/shared"
	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/platform/gemini"
	"github.com/phrazzld/matrix-api/internal/service"
	"github.com/phrazzld/matrix-api/internal/store"
)

type mockTaskStore struct {
	tasks map[uuid.UUID]*domain.Task
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *mockTaskStore) Create(_ context.Context, task *domain.Task) error {
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockTaskStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTaskStore) Update(_ context.Context, task *domain.Task) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskStore) WithTx(_ *sql.Tx) store.TaskStore { return m }

type mockSuggester struct {
	suggestions []gemini.Suggestion
	err         error
}

func (m *mockSuggester) Suggest(_ context.Context, _ []*domain.Task) ([]gemini.Suggestion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.suggestions, nil
}

type taskFixture struct {
	router    chi.Router
	taskStore *mockTaskStore
	suggester *mockSuggester
	aiBreaker *breaker.Breaker
	userID    uuid.UUID
}

// newTaskFixture wires a real TaskService over in-memory mocks behind the
// task routes, with the fixture's user injected the way the auth middleware
// would.
func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := cache.NewManager(map[string]cache.TierConfig{
		cache.TierMain:      {DefaultTTL: time.Minute, MaxEntries: 100},
		cache.TierAIResults: {DefaultTTL: time.Minute, MaxEntries: 100},
	}, logger)

	f := &taskFixture{
		taskStore: newMockTaskStore(),
		suggester: &mockSuggester{},
		aiBreaker: breaker.New("ai", breaker.Config{FailureThreshold: 2, ResetTimeout: time.Minute}),
		userID:    uuid.New(),
	}

	svc, err := service.NewTaskService(
		f.taskStore, mgr, breaker.New("database", breaker.Config{}), f.aiBreaker, nil, f.suggester, nil, logger)
	require.NoError(t, err)

	taskHandler := NewTaskHandler(svc)
	suggestHandler := NewSuggestHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.UserIDContextKey, f.userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/tasks", taskHandler.Create)
	r.Get("/tasks", taskHandler.List)
	r.Get("/tasks/{id}", taskHandler.Get)
	r.Patch("/tasks/{id}", taskHandler.Update)
	r.Post("/tasks/{id}/complete", taskHandler.Complete)
	r.Delete("/tasks/{id}", taskHandler.Delete)
	r.Post("/ai/suggest", suggestHandler.Suggest)

	f.router = r
	return f
}

func (f *taskFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *taskFixture) createTask(t *testing.T, title, quadrant string) TaskResponse {
	t.Helper()

	w := f.do(t, http.MethodPost, "/tasks", CreateTaskRequest{Title: title, Quadrant: quadrant})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTaskHandler_Create(t *testing.T) {
	f := newTaskFixture(t)

	resp := f.createTask(t, "Write report", "q1")
	assert.Equal(t, "Write report", resp.Title)
	assert.Equal(t, "q1", resp.Quadrant)
	assert.False(t, resp.Completed)
	assert.NotEqual(t, uuid.Nil, resp.ID)
}

func TestTaskHandler_Create_Validation(t *testing.T) {
	f := newTaskFixture(t)

	w := f.do(t, http.MethodPost, "/tasks", CreateTaskRequest{Quadrant: "q1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/tasks", CreateTaskRequest{Title: "x", Quadrant: "q9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_GetAndList(t *testing.T) {
	f := newTaskFixture(t)

	created := f.createTask(t, "One", "q2")

	w := f.do(t, http.MethodGet, "/tasks/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)

	w = f.do(t, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list TaskListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)
}

func TestTaskHandler_Get_NotFoundAndBadID(t *testing.T) {
	f := newTaskFixture(t)

	w := f.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_Get_OtherUsersTask(t *testing.T) {
	f := newTaskFixture(t)

	other, err := domain.NewTask(uuid.New(), "Theirs", "", domain.QuadrantSchedule, nil)
	require.NoError(t, err)
	require.NoError(t, f.taskStore.Create(context.Background(), other))

	w := f.do(t, http.MethodGet, "/tasks/"+other.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTaskHandler_Update(t *testing.T) {
	f := newTaskFixture(t)
	created := f.createTask(t, "One", "q3")

	newTitle := "Renamed"
	newQuadrant := "q1"
	w := f.do(t, http.MethodPatch, "/tasks/"+created.ID.String(), UpdateTaskRequest{
		Title:    &newTitle,
		Quadrant: &newQuadrant,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "q1", updated.Quadrant)
}

func TestTaskHandler_Update_EmptyTitleIsBadRequest(t *testing.T) {
	f := newTaskFixture(t)
	created := f.createTask(t, "One", "q3")

	empty := ""
	w := f.do(t, http.MethodPatch, "/tasks/"+created.ID.String(), UpdateTaskRequest{
		Title: &empty,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// The task keeps its original title.
	got := f.do(t, http.MethodGet, "/tasks/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, got.Code)

	var task TaskResponse
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &task))
	assert.Equal(t, "One", task.Title)
}

func TestTaskHandler_Complete(t *testing.T) {
	f := newTaskFixture(t)
	created := f.createTask(t, "One", "q1")

	w := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var done TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.True(t, done.Completed)
}

func TestTaskHandler_Delete(t *testing.T) {
	f := newTaskFixture(t)
	created := f.createTask(t, "One", "q4")

	w := f.do(t, http.MethodDelete, "/tasks/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/tasks/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuggestHandler_Suggest(t *testing.T) {
	f := newTaskFixture(t)
	created := f.createTask(t, "One", "q4")

	f.suggester.suggestions = []gemini.Suggestion{
		{TaskID: created.ID, Quadrant: domain.QuadrantDoFirst, Reason: "deadline approaching"},
	}

	w := f.do(t, http.MethodPost, "/ai/suggest", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SuggestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, created.ID, resp.Suggestions[0].TaskID)
}

func TestSuggestHandler_NoOpenTasks(t *testing.T) {
	f := newTaskFixture(t)

	w := f.do(t, http.MethodPost, "/ai/suggest", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSuggestHandler_OpenCircuitWithoutFallback(t *testing.T) {
	f := newTaskFixture(t)
	f.createTask(t, "One", "q1")

	f.aiBreaker.ForceOpen()

	w := f.do(t, http.MethodPost, "/ai/suggest", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
