package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/prediction"
	"github.com/lewtec/anotador/internal/repository"
)

const testConfig = `
meta:
  name: cars
  description: "Box every car"
auth:
  alice: { password: secret }
prediction:
  threshold: 0.5
tasks:
  - id: detection
    title: Cars
    domain: detection
    labels:
      - { id: car, name: Car, description: "Anything with four wheels" }
`

type testApp struct {
	app    *AnnotatorApp
	server *httptest.Server
}

func newTestApp(t *testing.T, service prediction.Service) *testApp {
	t.Helper()
	config, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	db := repository.SetupTestDB(t)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "a.png", []byte("not really a png"), 0o644))

	repo := repository.NewMediaRepository(db)
	for _, item := range []domain.MediaItem{
		{Identifier: domain.ImageIdentifier("aaa"), Name: "a.png", Path: "a.png", SHA256: "aaa", Metadata: domain.MediaMetadata{Width: 100, Height: 50}},
		{Identifier: domain.ImageIdentifier("bbb"), Name: "b.png", Path: "b.png", SHA256: "bbb", Metadata: domain.MediaMetadata{Width: 100, Height: 50}},
	} {
		_, err := repo.Create(context.Background(), item)
		require.NoError(t, err)
	}

	app := &AnnotatorApp{Config: config, Database: db, MediaFS: fs, Predictions: service}
	server := httptest.NewServer(app.GetHTTPHandler())
	t.Cleanup(server.Close)
	return &testApp{app: app, server: server}
}

func (ta *testApp) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ta *testApp) state(t *testing.T, method, path string, body interface{}) sessionState {
	t.Helper()
	resp := ta.do(t, method, path, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state sessionState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestAuthentication(t *testing.T) {
	ta := newTestApp(t, nil)

	resp, err := http.Get(ta.server.URL + "/api/media")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, ta.server.URL+"/api/media", nil)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ta.do(t, http.MethodGet, "/api/media", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var media []domain.MediaItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&media))
	require.Len(t, media, 2)
	assert.Equal(t, "a.png", media[0].Name)
}

func TestSessionLifecycle(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := ta.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ta.do(t, http.MethodPost, "/api/sessions/image:zzz", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ta.do(t, http.MethodPost, "/api/sessions/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	state := ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)
	assert.Equal(t, "a.png", state.Media.Name)
	assert.Equal(t, "detection", state.SelectedTask)
	assert.Empty(t, state.Annotations)
	assert.False(t, state.CanUndo)

	box := domain.Shape{Type: domain.ShapeRect, X: 1, Y: 2, Width: 10, Height: 10}
	state = ta.state(t, http.MethodPost, "/api/session/add-shapes", opRequest{
		Shapes:   []domain.Shape{box},
		LabelIDs: []string{"car"},
		Tool:     "box",
	})
	require.Len(t, state.Annotations, 1)
	assert.True(t, state.Annotations[0].HasLabel("car"))
	assert.True(t, state.CanUndo)
	assert.Equal(t, map[string]int{"box": 1}, state.Tools)

	state = ta.state(t, http.MethodPost, "/api/session/undo", nil)
	assert.Empty(t, state.Annotations)
	assert.True(t, state.CanRedo)

	state = ta.state(t, http.MethodPost, "/api/session/redo", nil)
	require.Len(t, state.Annotations, 1)
	id := state.Annotations[0].ID

	state = ta.state(t, http.MethodPost, "/api/session/select", opRequest{IDs: []string{id}})
	assert.True(t, state.Annotations[0].IsSelected)

	resp = ta.do(t, http.MethodPost, "/api/session/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved, err := repository.NewSceneRepository(ta.app.Database).Get(context.Background(), "image:aaa", "alice")
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Len(t, saved.Annotations, 1)
	assert.False(t, saved.Annotations[0].IsSelected, "ui flags are not persisted")

	item, err := repository.NewMediaRepository(ta.app.Database).Get(context.Background(), "image:aaa")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnnotated, item.AnnotationStatus)

	// reopening starts a fresh history over the saved annotations
	state = ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)
	require.Len(t, state.Annotations, 1)
	assert.Equal(t, id, state.Annotations[0].ID)
	assert.False(t, state.CanUndo)

	resp = ta.do(t, http.MethodDelete, "/api/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ta.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSessionOperationErrors(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)

	resp := ta.do(t, http.MethodPost, "/api/session/teleport", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ta.do(t, http.MethodPost, "/api/session/add-shapes", opRequest{
		Shapes:   []domain.Shape{{Type: domain.ShapeRect, Width: 1, Height: 1}},
		LabelIDs: []string{"bicycle"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "unknown label bicycle")

	resp = ta.do(t, http.MethodPost, "/api/session/remove", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ta.do(t, http.MethodPost, "/api/session/task", opRequest{Task: "missing"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredictions(t *testing.T) {
	car := domain.Label{ID: "car", Name: "Car", Group: "detection"}
	service := prediction.ServiceFunc(func(ctx context.Context, req prediction.Request) (*prediction.Result, error) {
		if req.Media.ImageID != "aaa" {
			return nil, errors.New("unexpected media")
		}
		return &prediction.Result{Annotations: []domain.Annotation{
			{ID: "p1", Shape: domain.Shape{Type: domain.ShapeRect, Width: 5, Height: 5}, Labels: []domain.AnnotationLabel{domain.PredictedLabel(car, 0.9, "model")}},
			{ID: "p2", Shape: domain.Shape{Type: domain.ShapeRect, X: 20, Width: 5, Height: 5}, Labels: []domain.AnnotationLabel{domain.PredictedLabel(car, 0.2, "model")}},
		}}, nil
	})
	ta := newTestApp(t, service)
	ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)

	resp := ta.do(t, http.MethodPost, "/api/session/predictions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched struct {
		Applied bool         `json:"applied"`
		State   sessionState `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.True(t, fetched.Applied)
	assert.Len(t, fetched.State.Annotations, 2, "an empty scene takes the predictions")
	assert.False(t, fetched.State.CanUndo, "auto applied predictions skip history")

	resp = ta.do(t, http.MethodGet, "/api/session/merge-enabled", nil)
	assert.JSONEq(t, `{"enabled": true}`, readBody(t, resp))

	state := ta.state(t, http.MethodPost, "/api/session/accept", acceptRequest{})
	require.Len(t, state.Annotations, 1, "predictions under the threshold are rejected")
	assert.Equal(t, "p1", state.Annotations[0].ID)
	assert.True(t, state.CanUndo)

	resp = ta.do(t, http.MethodGet, "/metrics", nil)
	metrics := readBody(t, resp)
	assert.Contains(t, metrics, `anotador_predictions_accepted_total{mode="replace"} 1`)
	assert.Contains(t, metrics, `anotador_http_requests_total{code="200"}`)
}

func TestPredictionTimeline(t *testing.T) {
	car := domain.Label{ID: "car", Name: "Car", Group: "detection"}
	service := prediction.ServiceFunc(func(ctx context.Context, req prediction.Request) (*prediction.Result, error) {
		return &prediction.Result{Annotations: []domain.Annotation{
			{ID: req.Media.Key(), Shape: domain.Shape{Type: domain.ShapeRect, Width: 5, Height: 5}, Labels: []domain.AnnotationLabel{domain.PredictedLabel(car, 0.9, "model")}},
		}}, nil
	})
	ta := newTestApp(t, service)
	_, err := repository.NewMediaRepository(ta.app.Database).Create(context.Background(), domain.MediaItem{
		Identifier: domain.VideoIdentifier("vvv"), Name: "v.mp4", Path: "v.mp4", SHA256: "vvv",
		Metadata: domain.MediaMetadata{Width: 100, Height: 50, Frames: 100, FPS: 25},
	})
	require.NoError(t, err)

	ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)
	resp := ta.do(t, http.MethodGet, "/api/session/timeline", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, frame := range []string{"30", "10"} {
		ta.state(t, http.MethodPost, "/api/sessions/videoFrame:vvv:"+frame, nil)
		resp = ta.do(t, http.MethodPost, "/api/session/predictions", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = ta.do(t, http.MethodGet, "/api/session/timeline?frame=30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var timeline struct {
		Frames      []int               `json:"frames"`
		Predictions []domain.Annotation `json:"predictions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&timeline))
	assert.Equal(t, []int{10, 30}, timeline.Frames)
	assert.Equal(t, []string{"videoFrame:vvv:30"}, domain.AnnotationIDs(timeline.Predictions))

	resp = ta.do(t, http.MethodGet, "/api/session/timeline?frame=20", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ta.do(t, http.MethodDelete, "/api/session/timeline", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ta.do(t, http.MethodGet, "/api/session/timeline", nil)
	assert.JSONEq(t, `{"frames": []}`, readBody(t, resp))
}

func TestPredictionsUnavailable(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)

	resp := ta.do(t, http.MethodPost, "/api/session/predictions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNext(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.state(t, http.MethodPost, "/api/sessions/image:aaa", nil)

	resp := ta.do(t, http.MethodGet, "/api/session/next", nil)
	var next struct {
		Type  string           `json:"type"`
		Media domain.MediaItem `json:"media"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	assert.Equal(t, "media", next.Type)
	assert.Equal(t, "bbb", next.Media.Identifier.ImageID)

	resp = ta.do(t, http.MethodGet, "/api/session/next?direction=previous", nil)
	assert.JSONEq(t, `{"type": "none"}`, readBody(t, resp))

	resp = ta.do(t, http.MethodGet, "/api/session/next?active=1,x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssetsAndPages(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := ta.do(t, http.MethodGet, "/asset/aaa", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "not really a png", readBody(t, resp))

	resp = ta.do(t, http.MethodGet, "/asset/zzz", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ta.do(t, http.MethodGet, "/asset/bbb", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "b.png is not on disk")

	resp = ta.do(t, http.MethodGet, "/help", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Box every car")
	assert.Contains(t, body, `href="/help/detection"`)

	resp = ta.do(t, http.MethodGet, "/help/detection", nil)
	assert.Contains(t, readBody(t, resp), "Anything with four wheels")
	resp = ta.do(t, http.MethodGet, "/help/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ta.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Welcome to anotador")

	resp = ta.do(t, http.MethodGet, "/favicon.svg", nil)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
}
