package annotation

import (
	"context"
	"net/http"
	"sync"

	"github.com/lewtec/anotador/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestCacheKey contextKey = "request_cache"

// RequestCache holds cached data for a single HTTP request
type RequestCache struct {
	mu    sync.RWMutex
	media []domain.MediaItem
}

// NewRequestCache creates a new request cache
func NewRequestCache() *RequestCache {
	return &RequestCache{}
}

// GetMedia returns cached media items if available
func (rc *RequestCache) GetMedia() ([]domain.MediaItem, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.media != nil {
		return rc.media, true
	}
	return nil, false
}

// SetMedia caches the media list
func (rc *RequestCache) SetMedia(media []domain.MediaItem) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.media = media
}

// WithRequestCache adds a request cache to the context
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey, NewRequestCache())
}

// GetRequestCache retrieves the request cache from context
func GetRequestCache(ctx context.Context) *RequestCache {
	if cache, ok := ctx.Value(requestCacheKey).(*RequestCache); ok {
		return cache
	}
	return nil
}

// requestCacheMiddleware adds a request cache to the context for each request
func requestCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestCache(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
