package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/anotador/internal/domain"
)

const defaultTestTTL = time.Minute

func TestHTTPServiceGetPredictions(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.ImageIdentifier("img"), req.Media)
		assert.Equal(t, "detect", req.TaskID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{
			Annotations: []domain.Annotation{predictedAt("p", 0, 10, 0.8, car)},
			Maps:        []domain.Explanation{{ID: "m", Name: "saliency"}},
		})
	}))
	defer server.Close()

	service := NewHTTPService(server.URL+"/", time.Second)
	result, err := service.GetPredictions(context.Background(), Request{Media: domain.ImageIdentifier("img"), TaskID: "detect"})
	require.NoError(t, err)
	require.Len(t, result.Annotations, 1)
	assert.Equal(t, "p", result.Annotations[0].ID)
	require.NotNil(t, result.Annotations[0].Labels[0].Score)
	assert.InDelta(t, 0.8, *result.Annotations[0].Labels[0].Score, 1e-9)
	assert.Equal(t, "saliency", result.Maps[0].Name)
}

func TestHTTPServiceUnexpectedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not deployed", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPService(server.URL, time.Second).GetPredictions(context.Background(), Request{Media: domain.ImageIdentifier("img")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not deployed")
}

func TestFetcherSharesInFlightRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	service := ServiceFunc(func(ctx context.Context, req Request) (*Result, error) {
		calls.Add(1)
		<-release
		return &Result{Annotations: []domain.Annotation{predictedAt("p", 0, 1, 1, car)}}, nil
	})
	fetcher := NewFetcher(service)
	req := Request{Media: domain.ImageIdentifier("img"), TaskID: "detect"}

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, _, err := fetcher.Fetch(context.Background(), "alice", req)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, []string{"p"}, domain.AnnotationIDs(result.Annotations))
	}
}

func TestFetcherReportsStaleResponses(t *testing.T) {
	t.Parallel()

	slow := make(chan struct{})
	service := ServiceFunc(func(ctx context.Context, req Request) (*Result, error) {
		if req.Media.ImageID == "first" {
			<-slow
		}
		return &Result{}, nil
	})
	fetcher := NewFetcher(service)

	done := make(chan bool)
	go func() {
		_, latest, err := fetcher.Fetch(context.Background(), "alice", Request{Media: domain.ImageIdentifier("first")})
		assert.NoError(t, err)
		done <- latest
	}()

	// wait for the first request to take its generation
	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.seq == 1
	}, time.Second, time.Millisecond)

	_, latest, err := fetcher.Fetch(context.Background(), "alice", Request{Media: domain.ImageIdentifier("second")})
	require.NoError(t, err)
	assert.True(t, latest)

	close(slow)
	assert.False(t, <-done)
}

func TestFetcherScopesAreIndependent(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	slow := make(chan struct{})
	service := ServiceFunc(func(ctx context.Context, req Request) (*Result, error) {
		if req.Media.ImageID == "a" {
			close(started)
			<-slow
		}
		return &Result{Annotations: []domain.Annotation{predictedAt(req.Media.ImageID, 0, 1, 1, car)}}, nil
	})
	fetcher := NewFetcher(service)

	type outcome struct {
		result *Result
		latest bool
	}
	done := make(chan outcome)
	go func() {
		result, latest, err := fetcher.Fetch(context.Background(), "alice", Request{Media: domain.ImageIdentifier("a")})
		assert.NoError(t, err)
		done <- outcome{result, latest}
	}()
	<-started

	result, latest, err := fetcher.Fetch(context.Background(), "bob", Request{Media: domain.ImageIdentifier("b")})
	require.NoError(t, err)
	assert.True(t, latest)
	assert.Equal(t, []string{"b"}, domain.AnnotationIDs(result.Annotations))

	close(slow)
	got := <-done
	assert.True(t, got.latest)
	assert.Equal(t, []string{"a"}, domain.AnnotationIDs(got.result.Annotations))

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Empty(t, fetcher.latest)
}

func TestTimeline(t *testing.T) {
	t.Parallel()

	timeline := NewTimeline(defaultTestTTL)
	timeline.Put("vid", "detect", 20, []domain.Annotation{predictedAt("b", 0, 1, 1, car)})
	timeline.Put("vid", "detect", 10, []domain.Annotation{predictedAt("a", 0, 1, 1, car)})
	timeline.Put("vid", "other", 5, nil)

	assert.Equal(t, []int{10, 20}, timeline.Frames("vid", "detect"))

	frame, ok := timeline.Frame("vid", "detect", 10)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, domain.AnnotationIDs(frame))

	_, ok = timeline.Frame("vid", "detect", 15)
	assert.False(t, ok)

	timeline.Invalidate("vid", "detect")
	assert.Empty(t, timeline.Frames("vid", "detect"))
	assert.Equal(t, []int{5}, timeline.Frames("vid", "other"))
}
