// Package scene holds the annotation set of the media item being edited,
// together with its undo/redo history.
package scene

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/lewtec/anotador/internal/analytics"
	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/labels"
	"github.com/lewtec/anotador/internal/provider"
)

// ErrTransactionInFlight is returned by Batch when another batch is running
var ErrTransactionInFlight = errors.New("scene: a history transaction is already in flight")

// Predicate selects annotations for the flag setters
type Predicate func(domain.Annotation) bool

// Scene is the single writer of the annotation list of one media item.
// It is safe for concurrent use.
type Scene struct {
	mu sync.Mutex

	tree     *labels.Tree
	userID   string
	newID    func() string
	observer analytics.Observer

	present []domain.Annotation
	past    [][]domain.Annotation
	future  [][]domain.Annotation

	inBatch          bool
	batchSnapshotted bool

	isDrawing          bool
	shapePointSelected bool
}

type Option func(*Scene)

// WithObserver reports history-tracked mutations to observer
func WithObserver(observer analytics.Observer) Option {
	return func(s *Scene) { s.observer = observer }
}

// WithIDGenerator overrides how new annotation ids are generated
func WithIDGenerator(newID func() string) Option {
	return func(s *Scene) { s.newID = newID }
}

// WithUser attributes labels assigned through the scene to userID
func WithUser(userID string) Option {
	return func(s *Scene) { s.userID = userID }
}

// New creates a scene over tree holding initial
func New(tree *labels.Tree, initial []domain.Annotation, opts ...Option) *Scene {
	s := &Scene{
		tree:     tree,
		newID:    uuid.NewString,
		observer: analytics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.present = normalizeZIndex(domain.CloneAnnotations(initial))
	return s
}

// Labels returns the project labels in canonical order
func (s *Scene) Labels() []domain.Label {
	return s.tree.Labels()
}

// Annotations returns a copy of the current annotations
func (s *Scene) Annotations() []domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneAnnotations(s.present)
}

// Annotation returns the annotation with id
func (s *Scene) Annotation(id string) (domain.Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, annotation := range s.present {
		if annotation.ID == id {
			return annotation.Clone(), true
		}
	}
	return domain.Annotation{}, false
}

// Reset loads a new initial annotation set, dropping the history
func (s *Scene) Reset(initial []domain.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = normalizeZIndex(domain.CloneAnnotations(initial))
	s.past, s.future = nil, nil
	s.isDrawing, s.shapePointSelected = false, false
	s.observer.Reset()
}

// AddShapes creates one annotation per shape with labels applied through conflict
func (s *Scene) AddShapes(shapes []domain.Shape, labelList []domain.Label, isSelected bool, conflict labels.ConflictPredicate) []domain.Annotation {
	if len(shapes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.CloneAnnotations(s.present)
	created := make([]domain.Annotation, 0, len(shapes))
	for i, shape := range shapes {
		var assigned []domain.AnnotationLabel
		for _, label := range labelList {
			assigned = s.tree.Add(assigned, domain.UserLabel(label, s.userID), conflict)
		}
		annotation := domain.Annotation{
			ID:         s.newID(),
			Shape:      shape.Clone(),
			Labels:     assigned,
			ZIndex:     len(next) + i,
			IsSelected: isSelected,
		}
		created = append(created, annotation)
	}
	next = append(next, domain.CloneAnnotations(created)...)
	s.commit(next, false, analytics.EventCreated, domain.AnnotationIDs(created))
	return created
}

// AddAnnotations appends complete annotations and deselects the existing ones.
// An annotation whose id is already in the scene replaces it in place.
func (s *Scene) AddAnnotations(annotations []domain.Annotation) {
	if len(annotations) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.CloneAnnotations(s.present)
	index := indexByID(next)
	for i := range next {
		next[i].IsSelected = false
	}
	for _, annotation := range annotations {
		annotation = annotation.Clone()
		if at, ok := index[annotation.ID]; ok {
			annotation.ZIndex = next[at].ZIndex
			next[at] = annotation
			continue
		}
		annotation.ZIndex = len(next)
		index[annotation.ID] = len(next)
		next = append(next, annotation)
	}
	s.commit(next, false, analytics.EventCreated, domain.AnnotationIDs(annotations))
}

// RemoveAnnotations removes the annotations by id and reindexes zIndex
func (s *Scene) RemoveAnnotations(annotations []domain.Annotation, skipHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(idSet(annotations), skipHistory)
}

func (s *Scene) remove(ids map[string]bool, skipHistory bool) []string {
	next := make([]domain.Annotation, 0, len(s.present))
	var removed []string
	for _, annotation := range s.present {
		if ids[annotation.ID] {
			removed = append(removed, annotation.ID)
			continue
		}
		next = append(next, annotation.Clone())
	}
	if len(removed) == 0 {
		return nil
	}
	for i := range next {
		next[i].ZIndex = i
	}
	s.commit(next, skipHistory, analytics.EventRemoved, removed)
	return removed
}

// UpdateAnnotation replaces the annotation with the same id, keeping its zIndex
func (s *Scene) UpdateAnnotation(annotation domain.Annotation) {
	s.UpdateAnnotations([]domain.Annotation{annotation})
}

// UpdateAnnotations replaces every annotation matching by id in one history step
func (s *Scene) UpdateAnnotations(annotations []domain.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.CloneAnnotations(s.present)
	index := indexByID(next)
	var updated []string
	for _, annotation := range annotations {
		at, ok := index[annotation.ID]
		if !ok {
			continue
		}
		annotation = annotation.Clone()
		annotation.ZIndex = next[at].ZIndex
		next[at] = annotation
		updated = append(updated, annotation.ID)
	}
	if len(updated) == 0 {
		return
	}
	s.commit(next, false, analytics.EventUpdated, updated)
}

// ReplaceAnnotations swaps the whole annotation list
func (s *Scene) ReplaceAnnotations(annotations []domain.Annotation, skipHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := normalizeZIndex(domain.CloneAnnotations(annotations))
	if next == nil {
		next = []domain.Annotation{}
	}
	s.commit(next, skipHistory, analytics.EventReplaced, domain.AnnotationIDs(next))
}

// AddLabel assigns label to the annotations in annotationIDs
func (s *Scene) AddLabel(label domain.Label, annotationIDs []string, conflict labels.ConflictPredicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapLabels(annotationIDs, false, func(existing []domain.AnnotationLabel) []domain.AnnotationLabel {
		return s.tree.Add(existing, domain.UserLabel(label, s.userID), conflict)
	})
}

// RemoveLabels drops labels, and their descendants, from the annotations in annotationIDs
func (s *Scene) RemoveLabels(labelList []domain.Label, annotationIDs []string, skipHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapLabels(annotationIDs, skipHistory, func(existing []domain.AnnotationLabel) []domain.AnnotationLabel {
		return s.tree.Remove(existing, labelList)
	})
}

func (s *Scene) mapLabels(annotationIDs []string, skipHistory bool, fn func([]domain.AnnotationLabel) []domain.AnnotationLabel) {
	ids := make(map[string]bool, len(annotationIDs))
	for _, id := range annotationIDs {
		ids[id] = true
	}
	next := domain.CloneAnnotations(s.present)
	var touched []string
	for i := range next {
		if !ids[next[i].ID] {
			continue
		}
		next[i].Labels = fn(next[i].Labels)
		touched = append(touched, next[i].ID)
	}
	if len(touched) == 0 {
		return
	}
	s.commit(next, skipHistory, analytics.EventLabeled, touched)
}

// Batch runs fn as a single history transaction: every mutation made
// inside it is undone by one Undo.
func (s *Scene) Batch(fn func()) error {
	s.mu.Lock()
	if s.inBatch {
		s.mu.Unlock()
		return ErrTransactionInFlight
	}
	s.inBatch, s.batchSnapshotted = true, false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inBatch, s.batchSnapshotted = false, false
		s.mu.Unlock()
	}()
	fn()
	return nil
}

// commit installs next as the present state. Unless skipHistory it
// pushes the previous state and truncates the redo tail.
func (s *Scene) commit(next []domain.Annotation, skipHistory bool, kind analytics.EventKind, ids []string) {
	if !skipHistory {
		if !s.inBatch || !s.batchSnapshotted {
			s.past = append(s.past, s.present)
			s.batchSnapshotted = s.inBatch
		}
		s.future = nil
		s.observer.Record(analytics.Event{Kind: kind, AnnotationIDs: ids})
	}
	s.present = next
}

// Undo restores the state before the last history-tracked mutation
func (s *Scene) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.past) == 0 || s.inBatch {
		return false
	}
	last := len(s.past) - 1
	s.future = append(s.future, s.present)
	s.present = s.past[last]
	s.past = s.past[:last]
	s.observer.Record(analytics.Event{Kind: analytics.EventUndo})
	return true
}

// Redo reapplies the last undone mutation
func (s *Scene) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.future) == 0 || s.inBatch {
		return false
	}
	last := len(s.future) - 1
	s.past = append(s.past, s.present)
	s.present = s.future[last]
	s.future = s.future[:last]
	s.observer.Record(analytics.Event{Kind: analytics.EventRedo})
	return true
}

func (s *Scene) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.past) > 0
}

func (s *Scene) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.future) > 0
}

// HistoryDepth returns the sizes of the undo and redo stacks
func (s *Scene) HistoryDepth() (past, future int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.past), len(s.future)
}

var sceneKey = provider.NewKey[*Scene]("scene.FromContext", "annotation scene provider")

// WithScene installs s as the annotation scene provider of ctx
func WithScene(ctx context.Context, s *Scene) context.Context {
	return sceneKey.With(ctx, s)
}

// FromContext returns the scene installed with WithScene
func FromContext(ctx context.Context) (*Scene, error) {
	return sceneKey.From(ctx)
}

// MustFromContext is FromContext that panics outside a scene provider
func MustFromContext(ctx context.Context) *Scene {
	return sceneKey.Must(ctx)
}

func idSet(annotations []domain.Annotation) map[string]bool {
	ids := make(map[string]bool, len(annotations))
	for _, annotation := range annotations {
		ids[annotation.ID] = true
	}
	return ids
}

func indexByID(annotations []domain.Annotation) map[string]int {
	index := make(map[string]int, len(annotations))
	for i, annotation := range annotations {
		index[annotation.ID] = i
	}
	return index
}

// normalizeZIndex keeps zIndex values that already form a permutation of
// [0, n) and otherwise reassigns them in array order
func normalizeZIndex(annotations []domain.Annotation) []domain.Annotation {
	seen := make([]bool, len(annotations))
	valid := true
	for _, annotation := range annotations {
		if annotation.ZIndex < 0 || annotation.ZIndex >= len(annotations) || seen[annotation.ZIndex] {
			valid = false
			break
		}
		seen[annotation.ZIndex] = true
	}
	if !valid {
		for i := range annotations {
			annotations[i].ZIndex = i
		}
	}
	return annotations
}
