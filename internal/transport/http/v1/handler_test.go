package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/tests/helpers"
)

// gateStage blocks until released so a run stays active.
type gateStage struct {
	name    domain.StageName
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *gateStage) Name() domain.StageName { return s.name }

func (s *gateStage) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	return pipeline.Result{Summary: domain.StageSummary{"discovered": 1}}, nil
}

type fakeBridge struct {
	mu       sync.Mutex
	resolved []string
	known    map[string]bool
	pingErr  error
	pending  []bridge.PendingTask
}

func (b *fakeBridge) Resolve(id string, result json.RawMessage, errMsg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolved = append(b.resolved, id)
	return b.known[id]
}

func (b *fakeBridge) PendingTasks() []bridge.PendingTask { return b.pending }

func (b *fakeBridge) Ping(ctx context.Context) error { return b.pingErr }

type testEnv struct {
	handler *Handler
	orch    *pipeline.Orchestrator
	bridge  *fakeBridge
	front   *fakeStorefront
	stage   *gateStage
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	stage := &gateStage{name: domain.StageDiscovery, gate: make(chan struct{}), entered: make(chan struct{})}
	orch := pipeline.New(st, []pipeline.Stage{stage}, pipeline.Options{})
	t.Cleanup(func() {
		select {
		case <-stage.gate:
		default:
			close(stage.gate)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Wait(ctx)
	})

	fb := &fakeBridge{known: map[string]bool{"cmd_known": true}}
	front := &fakeStorefront{}
	return &testEnv{
		handler: NewHandler(orch, fb, front, nil, nil),
		orch:    orch,
		bridge:  fb,
		front:   front,
		stage:   stage,
	}
}

func (env *testEnv) release() { close(env.stage.gate) }

func newRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func TestTriggerRunAccepted(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", `{"kind":"trend_scout"}`), rec)
	require.NoError(t, env.handler.TriggerRun(c))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.RunID, "run_"))
	assert.Equal(t, domain.RunKindTrendScout, resp.Kind)
	assert.Equal(t, domain.RunStatusQueued, resp.Status)
}

func TestTriggerRunDefaultsToFull(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", ""), rec)
	require.NoError(t, env.handler.TriggerRun(c))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp domain.TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.RunKindFull, resp.Kind)
}

func TestTriggerRunConflict(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", `{"kind":"trend_scout"}`), rec)
	require.NoError(t, env.handler.TriggerRun(c))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var first domain.TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", `{"kind":"full"}`), rec)
	require.NoError(t, env.handler.TriggerRun(c))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	var conflict domain.ConflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "pipeline already running", conflict.Error)
	assert.Equal(t, first.RunID, conflict.ActiveRunID)
}

func TestTriggerRunRejectsUnknownKind(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", `{"kind":"competitor_scan"}`), rec)
	require.NoError(t, env.handler.TriggerRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "/v1/pipeline/runs", `{"kind":"full","triggered_by":"pager"}`), rec)
	require.NoError(t, env.handler.TriggerRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndGetRun(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	run, err := env.orch.Start(context.Background(), domain.RunKindTrendScout, domain.Limits{}, domain.TriggerManual)
	require.NoError(t, err)
	<-env.stage.entered

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/v1/pipeline/status", ""), rec)
	require.NoError(t, env.handler.GetStatus(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IsRunning)
	require.NotNil(t, status.ActiveRun)
	assert.Equal(t, run.RunID, status.ActiveRun.RunID)

	env.release()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.orch.Wait(ctx))

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodGet, "/", ""), rec)
	c.SetPath("/v1/pipeline/runs/:run_id")
	c.SetParamNames("run_id")
	c.SetParamValues(run.RunID)
	require.NoError(t, env.handler.GetRun(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", ""), rec)
	c.SetParamNames("run_id")
	c.SetParamValues("run_missing")
	require.NoError(t, env.handler.GetRun(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsPaging(t *testing.T) {
	env := newTestHandler(t)
	env.release()
	e := echo.New()

	for i := 0; i < 3; i++ {
		_, err := env.orch.Start(context.Background(), domain.RunKindTrendScout, domain.Limits{}, domain.TriggerManual)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, env.orch.Wait(ctx))
		cancel()
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/v1/pipeline/runs?page=2&limit=2", ""), rec)
	require.NoError(t, env.handler.ListRuns(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var history domain.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Runs, 1)
	assert.Equal(t, 3, history.Pagination.Total)
	assert.Equal(t, 2, history.Pagination.Page)
	assert.Equal(t, 2, history.Pagination.Limit)
}

func TestCancelRun(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	run, err := env.orch.Start(context.Background(), domain.RunKindTrendScout, domain.Limits{}, domain.TriggerManual)
	require.NoError(t, err)
	<-env.stage.entered

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", ""), rec)
	c.SetParamNames("run_id")
	c.SetParamValues(run.RunID)
	require.NoError(t, env.handler.CancelRun(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	env.release()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.orch.Wait(ctx))

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "/", ""), rec)
	c.SetParamNames("run_id")
	c.SetParamValues(run.RunID)
	require.NoError(t, env.handler.CancelRun(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "/", ""), rec)
	c.SetParamNames("run_id")
	c.SetParamValues("run_missing")
	require.NoError(t, env.handler.CancelRun(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentCallbackAlwaysAcknowledges(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	cases := []struct {
		name string
		body string
	}{
		{"known", `{"correlation_id":"cmd_known","result":{"id":"42"}}`},
		{"unknown", `{"correlation_id":"cmd_late","result":{}}`},
		{"missing id", `{"result":{}}`},
		{"garbage", `{not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(newRequest(http.MethodPost, "/v1/agent/callback", tc.body), rec)
			require.NoError(t, env.handler.AgentCallback(c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		})
	}

	assert.Equal(t, []string{"cmd_known", "cmd_late"}, env.bridge.resolved)
}

func TestListPendingTasks(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/v1/agent/pending", ""), rec)
	require.NoError(t, env.handler.ListPendingTasks(c))
	assert.JSONEq(t, `{"pending":[],"count":0}`, rec.Body.String())

	env.bridge.pending = []bridge.PendingTask{{CorrelationID: "cmd_1", Type: domain.CommandCreateListing}}
	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodGet, "/v1/agent/pending", ""), rec)
	require.NoError(t, env.handler.ListPendingTasks(c))
	assert.Contains(t, rec.Body.String(), `"cmd_1"`)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestRoutesRequireKeys(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()
	env.handler.RegisterRoutes(e, Auth{AdminKey: "admin-secret", AgentKey: "agent-secret"})

	do := func(method, path, header, key, body string) int {
		req := newRequest(method, path, body)
		if header != "" {
			req.Header.Set(header, key)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/health", "", "", ""))
	rejected := []int{http.StatusBadRequest, http.StatusUnauthorized}
	assert.Contains(t, rejected, do(http.MethodGet, "/v1/pipeline/status", "", "", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/v1/pipeline/status", AdminKeyHeader, "wrong", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/v1/pipeline/status", AdminKeyHeader, "admin-secret", ""))
	assert.Contains(t, rejected, do(http.MethodGet, "/v1/storefront/count", "", "", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/v1/storefront/count", AdminKeyHeader, "admin-secret", ""))

	// The agent key does not open operator routes and vice versa.
	assert.Contains(t, rejected, do(http.MethodGet, "/v1/pipeline/status", AgentKeyHeader, "agent-secret", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/v1/agent/callback", AgentKeyHeader, "admin-secret", `{}`))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/v1/agent/callback", AgentKeyHeader, "agent-secret", `{"correlation_id":"cmd_x"}`))
}

func TestRoutesOpenWithoutKeys(t *testing.T) {
	env := newTestHandler(t)
	e := echo.New()
	env.handler.RegisterRoutes(e, Auth{})

	req := newRequest(http.MethodGet, "/v1/pipeline/status", "")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
