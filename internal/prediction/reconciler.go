// Package prediction reconciles model predictions with the annotations
// a user made in the scene.
package prediction

import (
	"context"
	"log"
	"sync"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/provider"
	"github.com/lewtec/anotador/internal/scene"
	"github.com/lewtec/anotador/internal/taskchain"
)

// RejectFunc reports whether a prediction must not be accepted
type RejectFunc func(domain.Annotation) bool

// ThresholdRejector rejects predictions whose scored labels all fall below threshold
func ThresholdRejector(threshold float64) RejectFunc {
	return func(annotation domain.Annotation) bool {
		scored := false
		for _, label := range annotation.Labels {
			if label.Score == nil {
				continue
			}
			scored = true
			if *label.Score >= threshold {
				return false
			}
		}
		return scored
	}
}

// Reconciler merges or replaces predictions into a scene
type Reconciler struct {
	scene    *scene.Scene
	resolver *taskchain.Resolver
	merge    MergeFunc
	timeline *Timeline
	onAccept func(mode string, count int)

	mu           sync.Mutex
	media        domain.MediaIdentifier
	predictions  []domain.Annotation
	explanations []domain.Explanation
}

type Option func(*Reconciler)

// WithMergeFunc replaces MergeAnnotations
func WithMergeFunc(merge MergeFunc) Option {
	return func(r *Reconciler) { r.merge = merge }
}

// WithTimeline pushes predictions of video-backed media into timeline
func WithTimeline(timeline *Timeline) Option {
	return func(r *Reconciler) { r.timeline = timeline }
}

// WithAcceptHook is called after every AcceptPrediction with "merge" or "replace"
func WithAcceptHook(hook func(mode string, count int)) Option {
	return func(r *Reconciler) { r.onAccept = hook }
}

func NewReconciler(s *scene.Scene, resolver *taskchain.Resolver, media domain.MediaIdentifier, opts ...Option) *Reconciler {
	r := &Reconciler{
		scene:    s,
		resolver: resolver,
		merge:    MergeAnnotations,
		media:    media,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Media returns the media item this reconciler accepts results for
func (r *Reconciler) Media() domain.MediaIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.media
}

// SetMedia switches to another media item, dropping cached predictions
func (r *Reconciler) SetMedia(media domain.MediaIdentifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = media
	r.predictions, r.explanations = nil, nil
}

// SetPredictions replaces the raw predictions and explanations wholesale
func (r *Reconciler) SetPredictions(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = domain.CloneAnnotations(result.Annotations)
	r.explanations = append([]domain.Explanation(nil), result.Maps...)
}

func (r *Reconciler) Predictions() []domain.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.CloneAnnotations(r.predictions)
}

func (r *Reconciler) Explanations() []domain.Explanation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Explanation(nil), r.explanations...)
}

// EnableMergingPredictions reports whether merging predictions into the
// user's annotations makes sense for the project
func (r *Reconciler) EnableMergingPredictions() bool {
	project := r.resolver.Project()
	userAnnotations := r.scene.Annotations()

	if len(project.Tasks) == 1 {
		task := project.Tasks[0]
		switch {
		case task.IsClassification():
			return false
		case task.IsAnomaly():
			if len(userAnnotations) <= 1 {
				return false
			}
			return allAnomalous(userAnnotations) && allAnomalous(r.Predictions())
		case task.IsKeypoint():
			return false
		}
	}
	return len(userAnnotations) > 0
}

func allAnomalous(annotations []domain.Annotation) bool {
	for _, annotation := range annotations {
		anomalous := false
		for _, label := range annotation.Labels {
			if label.IsAnomalous() {
				anomalous = true
				break
			}
		}
		if !anomalous {
			return false
		}
	}
	return true
}

// AcceptPrediction applies the current predictions that pass isRejected
// and, in a chain, belong to the selected inputs
func (r *Reconciler) AcceptPrediction(merge bool, isRejected RejectFunc) {
	accepted := r.acceptedPredictions(isRejected)
	mode := "replace"
	if merge {
		mode = "merge"
		r.scene.ReplaceAnnotations(r.merge(accepted, r.scene.Annotations()), false)
	} else {
		r.ReplaceAnnotations(accepted)
	}
	log.Printf("prediction: accepted %d predictions (%s) for %s", len(accepted), mode, r.Media().Key())
	if r.onAccept != nil {
		r.onAccept(mode, len(accepted))
	}
}

func (r *Reconciler) acceptedPredictions(isRejected RejectFunc) []domain.Annotation {
	predictions := r.Predictions()
	if isRejected == nil {
		isRejected = func(domain.Annotation) bool { return false }
	}

	var allowed map[string]bool
	if r.resolver.HasPreviousTask() {
		allowed = r.allowedOutputIDs(predictions)
	}

	var accepted []domain.Annotation
	for _, prediction := range predictions {
		if isRejected(prediction) {
			continue
		}
		if allowed != nil && !allowed[prediction.ID] {
			continue
		}
		accepted = append(accepted, prediction)
	}
	return accepted
}

// allowedOutputIDs collects the outputs of the predicted inputs that fall
// on the user's selected inputs, or of every predicted input when none is selected
func (r *Reconciler) allowedOutputIDs(predictions []domain.Annotation) map[string]bool {
	partition := taskchain.InputsOutputsFor(r.resolver.Project(), r.resolver.SelectedTask())
	_, predictionInputs := partition(predictions)
	selected := r.resolver.SelectedInputs()

	allowed := map[string]bool{}
	for _, input := range predictionInputs {
		if len(selected) > 0 && !onSelection(*r.resolver.SelectedTask(), input.Annotation, selected) {
			continue
		}
		for _, id := range input.OutputIDs() {
			allowed[id] = true
		}
	}
	return allowed
}

func onSelection(task domain.Task, annotation domain.Annotation, selected []domain.TaskChainInput) bool {
	for _, input := range selected {
		if taskchain.IsOutputOf(task, input.Annotation, annotation) {
			return true
		}
	}
	return false
}

// ReplaceAnnotations replaces the scene annotations with predictions,
// scoped to the selected task chain inputs when there are any
func (r *Reconciler) ReplaceAnnotations(predictions []domain.Annotation) {
	project := r.resolver.Project()

	if project.IsSingleTask(domain.DomainClassification) {
		// an unlabeled classification result keeps the placeholder annotation
		for _, prediction := range predictions {
			if len(prediction.Labels) > 0 {
				r.scene.ReplaceAnnotations(predictions, false)
				return
			}
		}
		return
	}

	selectedInputs := r.resolver.SelectedInputs()
	if len(selectedInputs) == 0 {
		r.scene.ReplaceAnnotations(predictions, false)
		return
	}

	outputIDs := map[string]bool{}
	for _, input := range selectedInputs {
		for _, id := range input.OutputIDs() {
			outputIDs[id] = true
		}
	}
	var existing []domain.Annotation
	present := map[string]bool{}
	for _, annotation := range r.scene.Annotations() {
		if outputIDs[annotation.ID] {
			continue
		}
		present[annotation.ID] = true
		existing = append(existing, annotation)
	}
	for _, input := range selectedInputs {
		if !present[input.ID] {
			existing = append(existing, input.Annotation)
		}
	}
	r.scene.ReplaceAnnotations(r.merge(predictions, existing), false)
}

// HandleFetched applies the side effects of a successful fetch for
// media. Results for another media item are ignored and false is returned.
func (r *Reconciler) HandleFetched(media domain.MediaIdentifier, result Result) bool {
	if current := r.Media(); current != media {
		log.Printf("prediction: ignoring stale predictions for %s, current media is %s", media.Key(), current.Key())
		return false
	}
	r.SetPredictions(result)

	if r.timeline != nil && media.IsVideoBacked() {
		taskID := ""
		if task := r.resolver.SelectedTask(); task != nil {
			taskID = task.ID
		}
		r.timeline.Put(media.VideoID, taskID, media.FrameNumber, result.Annotations)
	}

	if r.scene.IsDrawing() {
		return true
	}

	if r.sceneIsBlank() {
		r.scene.ReplaceAnnotations(result.Annotations, true)
		return true
	}

	project := r.resolver.Project()
	if project.IsTaskChain() && project.Tasks[1].IsClassification() {
		r.patchSelectedClassification(result.Annotations)
	}
	return true
}

// sceneIsBlank reports whether the scene holds no user work: it is empty,
// or a single classification project only has its unlabeled placeholder
func (r *Reconciler) sceneIsBlank() bool {
	annotations := r.scene.Annotations()
	if len(annotations) == 0 {
		return true
	}
	if !r.resolver.Project().IsSingleTask(domain.DomainClassification) {
		return false
	}
	for _, annotation := range annotations {
		if len(annotation.Labels) > 0 {
			return false
		}
	}
	return true
}

// patchSelectedClassification updates only the labels of the selected
// input when it has no classification yet or still carries a prediction
func (r *Reconciler) patchSelectedClassification(predictions []domain.Annotation) {
	input, ok := r.resolver.SelectedInput()
	if !ok {
		return
	}
	if len(input.Labels) != 1 && !input.IsPrediction() {
		return
	}
	classification := r.resolver.Project().Tasks[1]
	for _, prediction := range predictions {
		if !classification.Owns(prediction) {
			continue
		}
		if !taskchain.IsOutputOf(classification, input.Annotation, prediction) {
			continue
		}
		patched := input.Annotation.Clone()
		patched.Labels = mergeLabels(input.Labels, prediction.Labels)
		r.scene.UpdateAnnotation(patched)
		return
	}
}

var reconcilerKey = provider.NewKey[*Reconciler]("prediction.FromContext", "prediction provider")

func WithReconciler(ctx context.Context, r *Reconciler) context.Context {
	return reconcilerKey.With(ctx, r)
}

func FromContext(ctx context.Context) (*Reconciler, error) {
	return reconcilerKey.From(ctx)
}

func MustFromContext(ctx context.Context) *Reconciler {
	return reconcilerKey.Must(ctx)
}
