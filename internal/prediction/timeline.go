package prediction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lewtec/anotador/internal/domain"
)

// Timeline caches per-frame predictions of videos, keyed by video and task
type Timeline struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewTimeline creates a timeline whose entries expire after ttl
func NewTimeline(ttl time.Duration) *Timeline {
	return &Timeline{cache: cache.New(ttl, ttl*2)}
}

func timelineKey(videoID, taskID string) string {
	return fmt.Sprintf("%s/%s", videoID, taskID)
}

// Put stores the predictions of one frame
func (t *Timeline) Put(videoID, taskID string, frame int, annotations []domain.Annotation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := timelineKey(videoID, taskID)
	frames := map[int][]domain.Annotation{}
	if cached, found := t.cache.Get(key); found {
		if existing, ok := cached.(map[int][]domain.Annotation); ok {
			for n, list := range existing {
				frames[n] = list
			}
		}
	}
	frames[frame] = domain.CloneAnnotations(annotations)
	t.cache.Set(key, frames, cache.DefaultExpiration)
}

// Frame returns the cached predictions of one frame
func (t *Timeline) Frame(videoID, taskID string, frame int) ([]domain.Annotation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames, ok := t.frames(videoID, taskID)
	if !ok {
		return nil, false
	}
	annotations, ok := frames[frame]
	return domain.CloneAnnotations(annotations), ok
}

// Frames returns the frame numbers with cached predictions, ascending
func (t *Timeline) Frames(videoID, taskID string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames, _ := t.frames(videoID, taskID)
	numbers := make([]int, 0, len(frames))
	for n := range frames {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Invalidate drops everything cached for a video and task
func (t *Timeline) Invalidate(videoID, taskID string) {
	t.cache.Delete(timelineKey(videoID, taskID))
}

func (t *Timeline) frames(videoID, taskID string) (map[int][]domain.Annotation, bool) {
	cached, found := t.cache.Get(timelineKey(videoID, taskID))
	if !found {
		return nil, false
	}
	frames, ok := cached.(map[int][]domain.Annotation)
	return frames, ok
}
