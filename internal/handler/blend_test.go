package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/underplayed/api/internal/middleware"
	"github.com/underplayed/api/internal/model"
	"github.com/underplayed/api/internal/service"
	"github.com/underplayed/api/internal/store"
)

const testSessionSecret = "test-secret-for-handlers"

type fakeStore struct {
	jobs     map[string]*model.Job
	sessions map[string]*model.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[string]*model.Job),
		sessions: make(map[string]*model.Session),
	}
}

func (f *fakeStore) PutJob(ctx context.Context, job *model.Job, ttl time.Duration) error {
	copied := *job
	f.jobs[job.ProcessID] = &copied
	return nil
}

func (f *fakeStore) GetJob(ctx context.Context, processID string) (*model.Job, error) {
	job, ok := f.jobs[processID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) DeleteJob(ctx context.Context, processID string) error {
	delete(f.jobs, processID)
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// setupApp builds the blend routes the way main.go does, with faked storage
// and queue so no Redis is needed.
func setupApp(t *testing.T) (*fiber.App, *fakeStore) {
	t.Helper()

	st := newFakeStore()
	st.sessions["sess1"] = &model.Session{
		ID:          "sess1",
		SpotifyUser: "user1",
		AccessToken: "tok",
		LastfmUser:  "alice",
	}

	blendService := service.NewBlendService(st, &fakeEnqueuer{}, time.Hour)
	blendHandler := NewBlendHandler(blendService, validator.New())
	sessionMiddleware := middleware.NewSessionMiddleware(st, testSessionSecret)

	app := fiber.New()
	api := app.Group("/api", sessionMiddleware.Authenticate())
	api.Post("/blend/start", blendHandler.Start)
	api.Get("/blend/status/:processId", blendHandler.Status)
	api.Delete("/blend/status/:processId", blendHandler.Dismiss)
	return app, st
}

func authRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	token, err := middleware.IssueSessionToken("sess1", testSessionSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	return req
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", body, err)
	}
	return result
}

func TestBlendStart_Accepted(t *testing.T) {
	app, st := setupApp(t)

	resp, err := app.Test(authRequest(t, http.MethodPost, "/api/blend/start"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	processID, _ := result["processId"].(string)
	if processID == "" {
		t.Fatal("expected processId in response")
	}
	if result["state"] != string(model.StatePending) {
		t.Errorf("expected pending state, got %v", result["state"])
	}

	if _, ok := st.jobs[processID]; !ok {
		t.Error("expected pending snapshot to be stored")
	}
}

func TestBlendStart_NoSession(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/blend/start", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBlendStart_ExpiredSessionInStore(t *testing.T) {
	app, st := setupApp(t)
	delete(st.sessions, "sess1")

	resp, err := app.Test(authRequest(t, http.MethodPost, "/api/blend/start"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session, got %d", resp.StatusCode)
	}
}

func TestBlendStatus_Found(t *testing.T) {
	app, st := setupApp(t)
	st.jobs["p1"] = &model.Job{
		ProcessID: "p1",
		State:     model.StateApplyingShuffle,
		Message:   "Building the weighted track order",
		Progress:  55,
		UpdatedAt: time.Now().UnixMilli(),
	}

	resp, err := app.Test(authRequest(t, http.MethodGet, "/api/blend/status/p1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	if result["state"] != string(model.StateApplyingShuffle) {
		t.Errorf("expected applying_shuffle, got %v", result["state"])
	}
	if result["progress"] != float64(55) {
		t.Errorf("expected progress 55, got %v", result["progress"])
	}
}

func TestBlendStatus_NotFound(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(authRequest(t, http.MethodGet, "/api/blend/status/unknown"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	errObj, _ := result["error"].(map[string]interface{})
	if errObj == nil || errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND error code, got %v", result)
	}
}

func TestBlendDismiss_RemovesTerminalSnapshot(t *testing.T) {
	app, st := setupApp(t)
	st.jobs["p1"] = &model.Job{
		ProcessID: "p1",
		State:     model.StateCompleted,
		Message:   "Playlist created with 3 tracks",
		Progress:  100,
		UpdatedAt: time.Now().UnixMilli(),
	}

	resp, err := app.Test(authRequest(t, http.MethodDelete, "/api/blend/status/p1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, ok := st.jobs["p1"]; ok {
		t.Error("expected snapshot to be removed")
	}

	// Polling after dismissal behaves like an expired ID.
	resp, err = app.Test(authRequest(t, http.MethodGet, "/api/blend/status/p1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after dismissal, got %d", resp.StatusCode)
	}
}

func TestBlendDismiss_RunningJobRefused(t *testing.T) {
	app, st := setupApp(t)
	st.jobs["p1"] = &model.Job{
		ProcessID: "p1",
		State:     model.StateMatchingTracks,
		Progress:  35,
		UpdatedAt: time.Now().UnixMilli(),
	}

	resp, err := app.Test(authRequest(t, http.MethodDelete, "/api/blend/status/p1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a running job, got %d", resp.StatusCode)
	}
	if _, ok := st.jobs["p1"]; !ok {
		t.Error("expected running job snapshot to be kept")
	}
}

func TestBlendDismiss_Unknown(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(authRequest(t, http.MethodDelete, "/api/blend/status/unknown"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
