package annotation

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/navigation"
	"github.com/lewtec/anotador/internal/prediction"
	"github.com/lewtec/anotador/internal/repository"
)

type AnnotatorApp struct {
	Config   *Config
	Database *sql.DB
	MediaFS  billy.Filesystem
	// Predictions overrides the inference service built from the config
	Predictions prediction.Service

	once      sync.Once
	mediaRepo domain.MediaRepository
	sceneRepo domain.SceneRepository
	sessions  *SessionStore
	metrics   *Metrics
	timeline  *prediction.Timeline
	fetcher   *prediction.Fetcher
}

func (a *AnnotatorApp) init() {
	a.once.Do(func() {
		a.mediaRepo = repository.NewMediaRepository(a.Database)
		a.sceneRepo = repository.NewSceneRepository(a.Database)
		a.sessions = NewSessionStore()
		a.metrics = NewMetrics()
		a.timeline = prediction.NewTimeline(a.Config.TimelineTTL)
		if a.Predictions == nil && a.Config.Prediction.URL != "" {
			a.Predictions = prediction.NewHTTPService(a.Config.Prediction.URL, a.Config.Prediction.Timeout)
		}
		if a.Predictions != nil {
			a.fetcher = prediction.NewFetcher(a.Predictions)
		}
	})
}

func stringOr(str, or string) string {
	if str != "" {
		return str
	}
	return or
}

type userContextKey struct{}

// UserFromContext returns the authenticated user of a request
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userContextKey{}).(string)
	return user
}

func (a *AnnotatorApp) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if ok {
			auth, known := a.Config.Authentication[user]
			ok = known && subtle.ConstantTimeCompare([]byte(auth.Password), []byte(password)) == 1
		}
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="anotador"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
	})
}

// sessionMiddleware installs the scene, task chain and prediction providers
// of the user's open session
func (a *AnnotatorApp) sessionMiddleware(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.sessions.Get(UserFromContext(r.Context()))
		if !ok {
			writeError(w, http.StatusConflict, errors.New("no media item is open, open one with POST /api/sessions/{media}"))
			return
		}
		next(w, r.WithContext(session.Context(r.Context())), session)
	}
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Printf("error: http: while encoding response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Printf("error: http: %s", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, value interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(value); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("while decoding request body: %w", err)
	}
	return nil
}

// listMedia returns every media item, memoized for the request
func (a *AnnotatorApp) listMedia(ctx context.Context) ([]domain.MediaItem, error) {
	cache := GetRequestCache(ctx)
	if cache != nil {
		if media, ok := cache.GetMedia(); ok {
			return media, nil
		}
	}
	items, err := a.mediaRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("while listing media: %w", err)
	}
	media := make([]domain.MediaItem, len(items))
	for i, item := range items {
		media[i] = *item
	}
	if cache != nil {
		cache.SetMedia(media)
	}
	return media, nil
}

func (a *AnnotatorApp) GetHTTPHandler() http.Handler {
	a.init()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /help", a.handleHelp)
	mux.HandleFunc("GET /help/{task}", a.handleHelp)
	mux.HandleFunc("GET /favicon.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		io.WriteString(w, GetFavicon())
	})
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /asset/{id}", a.handleAsset)

	mux.HandleFunc("GET /api/media", func(w http.ResponseWriter, r *http.Request) {
		media, err := a.listMedia(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, media)
	})
	mux.HandleFunc("POST /api/sessions/{media}", func(w http.ResponseWriter, r *http.Request) {
		session, err := a.OpenSession(r.Context(), UserFromContext(r.Context()), r.PathValue("media"))
		if errors.Is(err, ErrMediaNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, session.State())
	})
	mux.HandleFunc("GET /api/session", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		writeJSON(w, http.StatusOK, s.State())
	}))
	mux.HandleFunc("DELETE /api/session", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		a.sessions.Close(s.User)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /api/session/save", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		s.mu.Lock()
		defer s.mu.Unlock()
		saved, err := a.SaveSession(r.Context(), s)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"savedAt": saved.SavedAt, "annotations": len(saved.Annotations)})
	}))
	mux.HandleFunc("POST /api/session/predictions", a.sessionMiddleware(a.handlePredictions))
	mux.HandleFunc("POST /api/session/accept", a.sessionMiddleware(a.handleAccept))
	mux.HandleFunc("GET /api/session/merge-enabled", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		reconciler := prediction.MustFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": reconciler.EnableMergingPredictions()})
	}))
	mux.HandleFunc("GET /api/session/next", a.sessionMiddleware(a.handleNext))
	mux.HandleFunc("GET /api/session/timeline", a.sessionMiddleware(a.handleTimeline))
	mux.HandleFunc("DELETE /api/session/timeline", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		media := s.Media.Identifier
		if !media.IsVideoBacked() {
			writeError(w, http.StatusBadRequest, errNotVideo)
			return
		}
		a.timeline.Invalidate(media.VideoID, selectedTaskID(s))
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /api/session/{op}", a.sessionMiddleware(func(w http.ResponseWriter, r *http.Request, s *Session) {
		var req opRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.mu.Lock()
		err := s.Apply(r.PathValue("op"), req)
		s.mu.Unlock()
		if errors.Is(err, ErrUnknownOperation) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, s.State())
	}))

	mux.HandleFunc("GET /{$}", a.handleHome)

	var handler http.Handler = mux
	handler = requestCacheMiddleware(handler)
	handler = a.authMiddleware(handler)
	handler = a.metrics.HTTPLogger(handler)
	return handler
}

func (a *AnnotatorApp) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log.Printf("http: fetching asset id %s", id)

	var item *domain.MediaItem
	for _, key := range []string{domain.ImageIdentifier(id).Key(), domain.VideoIdentifier(id).Key()} {
		found, err := a.mediaRepo.Get(r.Context(), key)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			log.Printf("error: while querying for the filename of asset %s: %s", id, err)
			return
		}
		if found != nil {
			item = found
			break
		}
	}
	if item == nil {
		log.Printf("http: asset id %s was not found in the database", id)
		http.NotFoundHandler().ServeHTTP(w, r)
		return
	}

	f, err := a.MediaFS.Open(item.Path)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFoundHandler().ServeHTTP(w, r)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.Printf("error: http: while serving asset: %s", err)
		return
	}
	defer f.Close()
	if contentType := mime.TypeByExtension(path.Ext(item.Path)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	io.Copy(w, f)
}

type predictionsRequest struct {
	ROI *domain.Shape `json:"roi"`
}

func (a *AnnotatorApp) handlePredictions(w http.ResponseWriter, r *http.Request, s *Session) {
	if a.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no inference service configured"))
		return
	}
	var body predictionsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reconciler := prediction.MustFromContext(r.Context())
	media := reconciler.Media()
	req := prediction.Request{Media: media, ROI: body.ROI, TaskID: selectedTaskID(s)}

	result, latest, err := a.fetcher.Fetch(r.Context(), s.User, req)
	if err != nil {
		// the scene keeps its previous state
		writeError(w, http.StatusBadGateway, err)
		return
	}
	applied := false
	if latest {
		s.mu.Lock()
		applied = reconciler.HandleFetched(media, *result)
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":     applied,
		"predictions": result.Annotations,
		"maps":        result.Maps,
		"state":       s.State(),
	})
}

type acceptRequest struct {
	Merge bool `json:"merge"`
}

func (a *AnnotatorApp) handleAccept(w http.ResponseWriter, r *http.Request, s *Session) {
	var body acceptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reconciler := prediction.MustFromContext(r.Context())
	s.mu.Lock()
	if body.Merge && !reconciler.EnableMergingPredictions() {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, errors.New("merging predictions is not available for this project"))
		return
	}
	var reject prediction.RejectFunc
	if threshold := a.Config.Prediction.Threshold; threshold > 0 {
		reject = prediction.ThresholdRejector(threshold)
	}
	reconciler.AcceptPrediction(body.Merge, reject)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.State())
}

func parseFrames(value string) ([]int, error) {
	if value == "" {
		return nil, nil
	}
	var frames []int
	for _, part := range strings.Split(value, ",") {
		frame, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid frame %q", part)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// handleNext answers where the next (or, with direction=previous, the
// previous) action goes. ?active= and ?filter= restrict video frames.
func (a *AnnotatorApp) handleNext(w http.ResponseWriter, r *http.Request, s *Session) {
	query := r.URL.Query()
	active, err := parseFrames(query.Get("active"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filtered, err := parseFrames(query.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items, err := a.listMedia(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	vc := navigation.VideoContext{
		ActiveLearning: query.Has("active"),
		ActiveFrames:   active,
		FilterActive:   query.Has("filter"),
		FilteredFrames: filtered,
		FrameSkip:      a.Config.FrameSkip,
	}
	criteria := navigation.Forward(s.Resolver.NextAnnotation)
	if query.Get("direction") == "previous" {
		criteria = navigation.Backward(s.Resolver.PreviousAnnotation)
	}

	s.mu.Lock()
	next, ok := navigation.NextMediaItem(s.Media, items, vc, criteria)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"type": "none"})
		return
	}
	switch n := next.(type) {
	case navigation.AnnotationNext:
		writeJSON(w, http.StatusOK, map[string]interface{}{"type": "annotation", "annotation": n.Annotation})
	case navigation.VideoFrameNext:
		writeJSON(w, http.StatusOK, map[string]interface{}{"type": "videoFrame", "media": n.Frame})
	case navigation.MediaNext:
		writeJSON(w, http.StatusOK, map[string]interface{}{"type": "media", "media": n.Media})
	}
}

var errNotVideo = errors.New("session media is not a video")

func selectedTaskID(s *Session) string {
	if task := s.Resolver.SelectedTask(); task != nil {
		return task.ID
	}
	return ""
}

// handleTimeline lists the frames of the session video with cached
// predictions for the selected task. ?frame= adds the predictions of that frame.
func (a *AnnotatorApp) handleTimeline(w http.ResponseWriter, r *http.Request, s *Session) {
	media := s.Media.Identifier
	if !media.IsVideoBacked() {
		writeError(w, http.StatusBadRequest, errNotVideo)
		return
	}
	taskID := selectedTaskID(s)
	body := map[string]interface{}{"frames": a.timeline.Frames(media.VideoID, taskID)}
	if value := r.URL.Query().Get("frame"); value != "" {
		frame, err := strconv.Atoi(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid frame %q", value))
			return
		}
		annotations, ok := a.timeline.Frame(media.VideoID, taskID, frame)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("no predictions cached for frame %d", frame))
			return
		}
		body["predictions"] = annotations
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *AnnotatorApp) handleHelp(w http.ResponseWriter, r *http.Request) {
	var markdownBuilder strings.Builder
	fmt.Fprintf(&markdownBuilder, "# [<](/) Project help\n")
	fmt.Fprintf(&markdownBuilder, "## Description\n")
	fmt.Fprintf(&markdownBuilder, "> %s\n\n", strings.ReplaceAll(stringOr(a.Config.Meta.Description, "(No description provided)"), "\n", "\n>"))

	taskID := r.PathValue("task")
	if taskID == "" {
		fmt.Fprintf(&markdownBuilder, "## Tasks\n\n")
		for _, task := range a.Config.Tasks {
			fmt.Fprintf(&markdownBuilder, "### [%s](/help/%s)\n", task.Title, task.ID)
			fmt.Fprintf(&markdownBuilder, "> %s, %d labels\n\n", task.Domain, len(task.Labels))
		}
	} else {
		task := a.Config.GetTask(taskID)
		if task == nil {
			http.NotFoundHandler().ServeHTTP(w, r)
			return
		}
		fmt.Fprintf(&markdownBuilder, "## Task: %s\n", task.Title)
		fmt.Fprintf(&markdownBuilder, "> %s\n\n", task.Domain)
		fmt.Fprintf(&markdownBuilder, "### Labels\n")
		for _, label := range task.Labels {
			fmt.Fprintf(&markdownBuilder, "#### %s (%s)\n", stringOr(label.Name, "(No name)"), label.ID)
			if label.Parent != "" {
				fmt.Fprintf(&markdownBuilder, "Child of `%s`. ", label.Parent)
			}
			if len(label.Behaviour) > 0 {
				fmt.Fprintf(&markdownBuilder, "Behaviour: %s.", strings.Join(label.Behaviour, ", "))
			}
			fmt.Fprintf(&markdownBuilder, "\n\n> %s\n\n", strings.ReplaceAll(stringOr(label.Description, "(No description provided)"), "\n", "\n>"))
			if len(label.Examples) > 0 {
				fmt.Fprintf(&markdownBuilder, "##### Examples\n")
				for _, example := range label.Examples {
					fmt.Fprintf(&markdownBuilder, "![](/asset/%s)", example)
				}
				fmt.Fprintf(&markdownBuilder, "\n\n")
			}
		}
	}
	if err := RenderPage(r.Context(), w, "help", map[string]any{"Title": "Help", "Content": markdownBuilder.String()}); err != nil {
		log.Printf("error: http: while rendering help: %s", err)
	}
}

func (a *AnnotatorApp) handleHome(w http.ResponseWriter, r *http.Request) {
	var markdownBuilder strings.Builder
	fmt.Fprintf(&markdownBuilder, "# Welcome to anotador\n")
	fmt.Fprintf(&markdownBuilder, "> %s\n\n", strings.ReplaceAll(a.Config.Meta.Description, "\n", "\n>"))
	fmt.Fprintf(&markdownBuilder, "[Annotation instructions](/help)\n")

	data := map[string]any{"Title": "Welcome", "Content": markdownBuilder.String()}
	if stats, err := a.sceneRepo.GetStats(r.Context()); err == nil {
		data["Stats"] = stats
	}
	if count, err := a.mediaRepo.Count(r.Context()); err == nil {
		data["MediaCount"] = count
	}
	if err := RenderPage(r.Context(), w, "home", data); err != nil {
		log.Printf("error: http: while rendering home: %s", err)
	}
}
