package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher collapses identical concurrent requests into one service call
// and tells callers whether their response is still the latest one of
// their scope.
type Fetcher struct {
	service Service
	group   singleflight.Group

	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
}

func NewFetcher(service Service) *Fetcher {
	return &Fetcher{service: service, latest: map[string]uint64{}}
}

// Fetch returns the predictions for req. latest is false when another
// Fetch of the same scope started after this one, in which case the
// result must be ignored. Callers use one scope per editing session.
func (f *Fetcher) Fetch(ctx context.Context, scope string, req Request) (result *Result, latest bool, err error) {
	f.mu.Lock()
	f.seq++
	generation := f.seq
	f.latest[scope] = generation
	f.mu.Unlock()

	value, err, shared := f.group.Do(requestKey(req), func() (interface{}, error) {
		return f.service.GetPredictions(ctx, req)
	})
	if shared {
		log.Printf("prediction: shared in-flight request for %s", req.Media.Key())
	}

	f.mu.Lock()
	latest = f.latest[scope] == generation
	if latest {
		delete(f.latest, scope)
	}
	f.mu.Unlock()

	if err != nil {
		return nil, latest, err
	}
	result, _ = value.(*Result)
	if result == nil {
		result = &Result{}
	}
	return result, latest, nil
}

func requestKey(req Request) string {
	roi := ""
	if req.ROI != nil {
		data, _ := json.Marshal(req.ROI)
		roi = string(data)
	}
	return fmt.Sprintf("%s|%s|%s", req.Media.Key(), req.TaskID, roi)
}
