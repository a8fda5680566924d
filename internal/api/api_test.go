package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/rotationservice"
	"github.com/starford/attune/internal/scheduler"
	"github.com/starford/attune/internal/testutil"
)

// testEnv wires a file-backed registry, a reading engine and a manager behind
// the router. An empty authToken disables auth.
func testEnv(t *testing.T, authToken string, sseHandler http.Handler) http.Handler {
	t.Helper()
	reg := testutil.TestRegistry(t)
	readings := reading.NewEngine()
	mgr := scheduler.NewManager(reg, readings, scheduler.WithHeartbeat(time.Millisecond))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	defaults := scheduler.Config{
		DurationPerTarget: time.Hour,
		OnlyActive:        true,
		LinkReading:       true,
		Reading:           reading.SessionParams{BaselineToneArm: 5, Sensitivity: 1},
	}
	svc := rotationservice.New(reg, readings, mgr, defaults)
	return NewRouter(svc, authToken != "", authToken, sseHandler)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createTarget(t *testing.T, h http.Handler, name string, priority int) Target {
	t.Helper()
	w := do(t, h, http.MethodPost, "/targets", map[string]any{
		"name":     name,
		"locator":  "https://example.com/" + name,
		"priority": priority,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s = %d, body = %s", name, w.Code, w.Body.String())
	}
	return decode[Target](t, w)
}

func TestTargetCRUD(t *testing.T) {
	h := testEnv(t, "", nil)
	created := createTarget(t, h, "alpha", 3)
	if created.ID == "" || !created.IsActive || created.Priority != 3 {
		t.Errorf("created = %+v", created)
	}

	w := do(t, h, http.MethodGet, "/targets/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	w = do(t, h, http.MethodPatch, "/targets/"+created.ID, map[string]any{"name": "beta", "priority": 8})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[Target](t, w); got.Name != "beta" || got.Priority != 8 {
		t.Errorf("patched = %+v", got)
	}

	w = do(t, h, http.MethodPost, "/targets/"+created.ID+"/refresh", nil)
	if w.Code != http.StatusOK {
		t.Errorf("refresh = %d", w.Code)
	}

	w = do(t, h, http.MethodDelete, "/targets/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/targets/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestCreateTarget_Invalid(t *testing.T) {
	h := testEnv(t, "", nil)

	w := do(t, h, http.MethodPost, "/targets", map[string]any{"name": "", "locator": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name = %d, want 400", w.Code)
	}
	w = do(t, h, http.MethodPost, "/targets", map[string]any{"name": "a", "locator": "x", "bogus": 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d, want 400", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/targets", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken json = %d, want 400", rec.Code)
	}
}

func TestListTargets_Filter(t *testing.T) {
	h := testEnv(t, "", nil)
	createTarget(t, h, "low", 2)
	createTarget(t, h, "high", 9)

	w := do(t, h, http.MethodGet, "/targets?min_priority=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	resp := decode[TargetListResponse](t, w)
	if resp.Total != 1 || resp.Targets[0].Name != "high" {
		t.Errorf("filtered = %+v", resp)
	}

	w = do(t, h, http.MethodGet, "/targets?only_active=maybe", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad bool = %d, want 400", w.Code)
	}
}

func TestReadingSessionEndpoints(t *testing.T) {
	h := testEnv(t, "", nil)

	w := do(t, h, http.MethodPost, "/readings/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d, body = %s", w.Code, w.Body.String())
	}
	info := decode[reading.SessionInfo](t, w)
	if info.Sensitivity != 1 {
		t.Errorf("default sensitivity = %v", info.Sensitivity)
	}

	for i := 0; i < 4; i++ {
		w = do(t, h, http.MethodPost, "/readings/sessions/"+info.ID+"/readings", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("reading = %d", w.Code)
		}
	}
	w = do(t, h, http.MethodGet, "/readings/sessions/"+info.ID+"/summary", nil)
	if sum := decode[reading.Summary](t, w); sum.Count != 4 {
		t.Errorf("summary count = %d", sum.Count)
	}

	w = do(t, h, http.MethodDelete, "/readings/sessions/"+info.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/readings/sessions/"+info.ID+"/readings", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("reading after close = %d, want 404", w.Code)
	}

	w = do(t, h, http.MethodPost, "/readings/sessions", map[string]any{"sensitivity": 9})
	if w.Code != http.StatusBadRequest {
		t.Errorf("out of range sensitivity = %d, want 400", w.Code)
	}
}

type statusBody struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	QueueLength int    `json:"queue_length"`
	Config      struct {
		DurationPerTargetMs int64 `json:"duration_per_target_ms"`
	} `json:"config"`
}

func TestRotationLifecycle(t *testing.T) {
	h := testEnv(t, "", nil)

	w := do(t, h, http.MethodPost, "/rotations", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("start with empty registry = %d, want 409", w.Code)
	}

	createTarget(t, h, "a", 5)
	createTarget(t, h, "b", 5)

	w = do(t, h, http.MethodPost, "/rotations", map[string]any{"duration_per_target_ms": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative duration = %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodPost, "/rotations", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start = %d, body = %s", w.Code, w.Body.String())
	}
	st := decode[statusBody](t, w)
	if st.QueueLength != 2 || st.Config.DurationPerTargetMs != time.Hour.Milliseconds() {
		t.Errorf("started = %+v", st)
	}

	w = do(t, h, http.MethodGet, "/rotations/"+st.ID+"/queue?n=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("queue = %d", w.Code)
	}
	if q := decode[QueueResponse](t, w); len(q.Entries) != 1 {
		t.Errorf("single pass preview = %+v", q.Entries)
	}
	w = do(t, h, http.MethodGet, "/rotations/"+st.ID+"/queue?n=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad n = %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodPost, "/rotations/"+st.ID+"/resume", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("resume while running = %d, want 409", w.Code)
	}
	w = do(t, h, http.MethodPost, "/rotations/"+st.ID+"/pause", nil)
	if got := decode[statusBody](t, w); w.Code != http.StatusOK || got.State != "PAUSED" {
		t.Errorf("pause = %d %+v", w.Code, got)
	}
	w = do(t, h, http.MethodPost, "/rotations/"+st.ID+"/resume", nil)
	if got := decode[statusBody](t, w); w.Code != http.StatusOK || got.State != "RUNNING" {
		t.Errorf("resume = %d %+v", w.Code, got)
	}

	w = do(t, h, http.MethodGet, "/rotations", nil)
	if list := decode[RotationListResponse](t, w); len(list.Rotations) != 1 {
		t.Errorf("rotations = %d", len(list.Rotations))
	}

	w = do(t, h, http.MethodPost, "/rotations/"+st.ID+"/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/rotations/"+st.ID+"/stop", nil)
	if w.Code != http.StatusOK {
		t.Errorf("second stop = %d, want 200", w.Code)
	}
	w = do(t, h, http.MethodGet, "/rotations/"+st.ID, nil)
	if got := decode[statusBody](t, w); got.State != "STOPPED" {
		t.Errorf("state after stop = %s", got.State)
	}
	w = do(t, h, http.MethodGet, "/rotations/"+st.ID+"/stats", nil)
	if w.Code != http.StatusOK {
		t.Errorf("stats = %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/rotations/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown rotation = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := testEnv(t, "secret123", nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret123", http.StatusOK},
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret123", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/targets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := testEnv(t, "", nil)
	w := do(t, h, http.MethodGet, "/targets", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	})
	h := testEnv(t, "tok", sse)

	w := do(t, h, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}
