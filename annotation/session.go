package annotation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/lewtec/anotador/internal/analytics"
	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/labels"
	"github.com/lewtec/anotador/internal/prediction"
	"github.com/lewtec/anotador/internal/provider"
	"github.com/lewtec/anotador/internal/scene"
	"github.com/lewtec/anotador/internal/taskchain"
)

// ErrMediaNotFound is returned when a session is opened for an unknown media item
var ErrMediaNotFound = errors.New("media item not found")

// Session is the editing state of one user on one media item
type Session struct {
	mu sync.Mutex

	User       string
	Media      domain.MediaItem
	Labels     *labels.Tree
	Scene      *scene.Scene
	Resolver   *taskchain.Resolver
	Reconciler *prediction.Reconciler
	Tools      *analytics.ToolUsage
}

// SessionStore keeps the open session of every user
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*Session{}}
}

func (s *SessionStore) Get(user string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[user]
	return session, ok
}

func (s *SessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.User] = session
}

func (s *SessionStore) Close(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, user)
}

var sessionKey = provider.NewKey[*Session]("annotation.SessionFromContext", "session middleware")

func WithSession(ctx context.Context, session *Session) context.Context {
	return sessionKey.With(ctx, session)
}

func SessionFromContext(ctx context.Context) (*Session, error) {
	return sessionKey.From(ctx)
}

// resolveMedia finds the media item of key; video frames resolve through their video
func (a *AnnotatorApp) resolveMedia(ctx context.Context, key string) (*domain.MediaItem, error) {
	identifier, err := domain.ParseMediaKey(key)
	if err != nil {
		return nil, err
	}
	lookup := key
	if identifier.Type == domain.MediaVideoFrame {
		lookup = domain.VideoIdentifier(identifier.VideoID).Key()
	}
	item, err := a.mediaRepo.Get(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("while looking up media %s: %w", key, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, key)
	}
	if identifier.Type == domain.MediaVideoFrame {
		if identifier.FrameNumber >= item.Metadata.Frames {
			return nil, fmt.Errorf("%w: frame %d of a %d frame video", ErrMediaNotFound, identifier.FrameNumber, item.Metadata.Frames)
		}
		frame := domain.VideoFrameOf(*item, identifier.FrameNumber)
		return &frame, nil
	}
	return item, nil
}

// OpenSession loads the saved scene of user on the media item of key,
// replacing any session the user had open
func (a *AnnotatorApp) OpenSession(ctx context.Context, user, key string) (*Session, error) {
	item, err := a.resolveMedia(ctx, key)
	if err != nil {
		return nil, err
	}
	project := a.Config.Project()

	var initial []domain.Annotation
	saved, err := a.sceneRepo.Get(ctx, item.Identifier.Key(), user)
	if err != nil {
		return nil, fmt.Errorf("while loading scene of %s: %w", key, err)
	}
	if saved != nil {
		initial = saved.Annotations
	}
	if len(initial) == 0 && project.IsSingleTask(domain.DomainClassification) {
		// classification annotates the whole media item
		initial = []domain.Annotation{{
			ID:    uuid.NewString(),
			Shape: domain.Shape{Type: domain.ShapeRect, Width: float64(item.Metadata.Width), Height: float64(item.Metadata.Height)},
		}}
	}

	tree := labels.NewTree(project.Labels())
	tools := analytics.NewToolUsage()
	s := scene.New(tree, initial,
		scene.WithUser(user),
		scene.WithObserver(analytics.Multi(tools, a.metrics.Observer())),
	)

	var selectedTask *domain.Task
	if !project.IsTaskChain() {
		selectedTask = &project.Tasks[0]
	}
	resolver := taskchain.NewResolver(project, selectedTask, s)
	reconciler := prediction.NewReconciler(s, resolver, item.Identifier,
		prediction.WithTimeline(a.timeline),
		prediction.WithAcceptHook(a.metrics.Accepted),
	)

	session := &Session{
		User:       user,
		Media:      *item,
		Labels:     tree,
		Scene:      s,
		Resolver:   resolver,
		Reconciler: reconciler,
		Tools:      tools,
	}
	a.sessions.Put(session)
	log.Printf("session: %s opened %s with %d annotations", user, item.Identifier.Key(), len(initial))
	return session, nil
}

// SaveSession persists the scene and updates the annotation status of the media item
func (a *AnnotatorApp) SaveSession(ctx context.Context, session *Session) (*domain.SavedScene, error) {
	annotations := session.Scene.Annotations()
	key := session.Media.Identifier.Key()
	saved, err := a.sceneRepo.Save(ctx, key, session.User, annotations)
	if err != nil {
		return nil, fmt.Errorf("while saving scene of %s: %w", key, err)
	}
	status := domain.StatusNone
	if len(annotations) > 0 {
		status = domain.StatusAnnotated
		for _, annotation := range annotations {
			if len(annotation.Labels) == 0 {
				status = domain.StatusPartial
				break
			}
		}
	}
	// frames share the record of their video
	if !session.Media.Identifier.IsVideoBacked() {
		if err := a.mediaRepo.UpdateStatus(ctx, key, status); err != nil {
			return nil, fmt.Errorf("while updating status of %s: %w", key, err)
		}
	}
	log.Printf("session: %s saved %d annotations on %s", session.User, len(annotations), key)
	return saved, nil
}

// Context installs the providers of the session into ctx
func (s *Session) Context(ctx context.Context) context.Context {
	ctx = scene.WithScene(ctx, s.Scene)
	ctx = taskchain.WithResolver(ctx, s.Resolver)
	ctx = prediction.WithReconciler(ctx, s.Reconciler)
	return WithSession(ctx, s)
}

// SelectTask switches the task the session works on, "" meaning every task
func (s *Session) SelectTask(taskID string) error {
	if taskID == "" {
		s.Resolver.SetSelectedTask(nil)
		return nil
	}
	project := s.Resolver.Project()
	task := project.Task(taskID)
	if task == nil {
		return fmt.Errorf("unknown task %s", taskID)
	}
	s.Resolver.SetSelectedTask(task)
	return nil
}
