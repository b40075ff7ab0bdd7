package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/teamflow/internal/export"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/dyluth/teamflow/internal/watch"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	createIdea string
	createOpts service.CreateOptions
	createErr  error

	view      *service.RunView
	statusErr error

	regenStage string
	regenErr   error

	cancelErr error

	streamOpts   watch.Options
	streamFrames []watch.Frame
	streamErr    error

	exportFormat string
	doc          export.Document
	exportErr    error

	artifacts map[string]string
}

func (f *fakeService) Create(ctx context.Context, idea string, opts service.CreateOptions) (service.RunRef, error) {
	f.createIdea, f.createOpts = idea, opts
	if f.createErr != nil {
		return service.RunRef{}, f.createErr
	}
	return service.RunRef{ID: "run_abc", Status: runstore.RunStatusQueued}, nil
}

func (f *fakeService) Status(ctx context.Context, runID string) (*service.RunView, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.view, nil
}

func (f *fakeService) Regenerate(ctx context.Context, runID, stage string) (service.RunRef, error) {
	f.regenStage = stage
	if f.regenErr != nil {
		return service.RunRef{}, f.regenErr
	}
	return service.RunRef{ID: runID, Status: runstore.RunStatusQueued, Step: stage}, nil
}

func (f *fakeService) Cancel(ctx context.Context, runID string) (service.RunRef, error) {
	if f.cancelErr != nil {
		return service.RunRef{}, f.cancelErr
	}
	return service.RunRef{ID: runID, Status: runstore.RunStatusCancelled}, nil
}

func (f *fakeService) Stream(ctx context.Context, runID string, opts watch.Options, emit func(watch.Frame) error) error {
	f.streamOpts = opts
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, frame := range f.streamFrames {
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeService) Export(ctx context.Context, runID, format string) (export.Document, error) {
	f.exportFormat = format
	if f.exportErr != nil {
		return export.Document{}, f.exportErr
	}
	return f.doc, nil
}

func (f *fakeService) Artifact(ctx context.Context, runID, name string) (string, error) {
	content, ok := f.artifacts[name]
	if !ok {
		return "", fmt.Errorf("%w: artifact %s", service.ErrNotFound, name)
	}
	return content, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestHandler(svc RunService) http.Handler {
	return NewHandler(Config{StreamPoll: 10 * time.Millisecond, StreamTimeout: time.Second}, svc, fakePinger{}, nil)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateRun(t *testing.T) {
	svc := &fakeService{}
	rec := do(newTestHandler(svc), http.MethodPost, "/runs", `{"idea":"todo app","max_chars":3000,"fast_mode":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "todo app", svc.createIdea)
	assert.Equal(t, 3000, svc.createOpts.MaxChars)
	assert.True(t, svc.createOpts.FastMode)

	var ref service.RunRef
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ref))
	assert.Equal(t, "run_abc", ref.ID)
	assert.Equal(t, runstore.RunStatusQueued, ref.Status)
}

func TestCreateRunInvalidBody(t *testing.T) {
	rec := do(newTestHandler(&fakeService{}), http.MethodPost, "/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "400", body.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: run x", service.ErrNotFound), http.StatusNotFound},
		{"bad request", fmt.Errorf("%w: unknown stage", service.ErrBadRequest), http.StatusBadRequest},
		{"conflict", fmt.Errorf("%w: disabled", service.ErrConflict), http.StatusConflict},
		{"internal", errors.New("redis down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{regenErr: tt.err}
			rec := do(newTestHandler(svc), http.MethodPost, "/runs/run_1/steps/design/regenerate", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "design", svc.regenStage)
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	svc := &fakeService{statusErr: errors.New("dial tcp: connection refused")}
	rec := do(newTestHandler(svc), http.MethodGet, "/runs/run_1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetRunAndCancel(t *testing.T) {
	svc := &fakeService{view: &service.RunView{ID: "run_1", Status: runstore.RunStatusRunning}}
	h := newTestHandler(svc)

	rec := do(h, http.MethodGet, "/runs/run_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_1"`)

	rec = do(h, http.MethodPost, "/runs/run_1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ref service.RunRef
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ref))
	assert.Equal(t, runstore.RunStatusCancelled, ref.Status)
}

func TestStreamEventsFraming(t *testing.T) {
	svc := &fakeService{streamFrames: []watch.Frame{
		{Record: runstore.EventRecord{ID: 0, Event: runstore.Event{Type: runstore.EventRunStarted}}},
		{Heartbeat: true},
		{Record: runstore.EventRecord{ID: 1, Event: runstore.Event{Type: runstore.EventStepStarted, Step: "intake"}}},
	}}

	req := httptest.NewRequest(http.MethodGet, "/runs/run_1/events?start=0", nil)
	req.Header.Set("Last-Event-ID", "4")
	rec := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "4", svc.streamOpts.LastEventID)
	assert.Equal(t, time.Second, svc.streamOpts.MaxDuration)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "id: 0\ndata: {"), body)
	assert.Contains(t, body, ": keep-alive\n\n")
	assert.Contains(t, body, "id: 1\ndata: ")
	assert.Contains(t, body, `"step":"intake"`)
}

func TestStreamEventsErrors(t *testing.T) {
	rec := do(newTestHandler(&fakeService{}), http.MethodGet, "/runs/run_1/events?start=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &fakeService{streamErr: fmt.Errorf("%w: run x", service.ErrNotFound)}
	rec = do(newTestHandler(svc), http.MethodGet, "/runs/x/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportRun(t *testing.T) {
	svc := &fakeService{doc: export.Document{
		Format:      export.FormatIDE,
		Content:     "# prompt",
		ContentType: "text/markdown; charset=utf-8",
		Filename:    export.IDEPromptFilename,
	}}
	rec := do(newTestHandler(svc), http.MethodGet, "/runs/run_1/export?format=ide", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ide", svc.exportFormat)
	assert.Equal(t, "# prompt", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), export.IDEPromptFilename)

	svc = &fakeService{exportErr: fmt.Errorf("%w: not finalized", service.ErrConflict)}
	rec = do(newTestHandler(svc), http.MethodGet, "/runs/run_1/export?format=md", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetArtifact(t *testing.T) {
	svc := &fakeService{artifacts: map[string]string{"prd": "# Product Requirements (PRD)\n- users"}}
	h := newTestHandler(svc)

	rec := do(h, http.MethodGet, "/runs/run_1/artifacts/prd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "- users")

	rec = do(h, http.MethodGet, "/runs/run_1/artifacts/arch", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := do(NewHandler(Config{}, &fakeService{}, fakePinger{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connected")

	rec = do(NewHandler(Config{}, &fakeService{}, fakePinger{err: errors.New("down")}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("teamflow_runs_created_total 1\n"))
	})
	h := NewHandler(Config{}, &fakeService{}, fakePinger{}, metrics)

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "runs_created_total")

	rec = do(newTestHandler(&fakeService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
