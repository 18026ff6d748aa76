// Package taskchain splits the annotations of a pipeline project into the
// regions of interest fed to the selected task (inputs) and the
// annotations that task produced inside them (outputs).
package taskchain

import (
	"context"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/provider"
)

// InputsOutputs is the partition computed for the selected task
type InputsOutputs struct {
	Inputs  []domain.TaskChainInput
	Outputs []domain.Annotation
}

// GetInputsOutputs partitions annotations for selectedTask. A nil
// selectedTask ("All tasks") or a single task project makes every
// annotation both an input and an output.
func GetInputsOutputs(annotations []domain.Annotation, project domain.Project, selectedTask *domain.Task) InputsOutputs {
	if selectedTask == nil || !project.IsTaskChain() {
		inputs := make([]domain.TaskChainInput, len(annotations))
		for i, annotation := range annotations {
			inputs[i] = domain.TaskChainInput{Annotation: annotation}
		}
		return InputsOutputs{Inputs: inputs, Outputs: annotations}
	}

	outputs := filterByTask(annotations, *selectedTask)
	previous := project.PreviousTask(selectedTask)
	if previous == nil {
		return InputsOutputs{Outputs: outputs}
	}

	var inputs []domain.TaskChainInput
	for _, annotation := range filterByTask(annotations, *previous) {
		inputs = append(inputs, domain.TaskChainInput{
			Annotation: annotation,
			Outputs:    outputsOf(annotation, outputs),
		})
	}
	return InputsOutputs{Inputs: inputs, Outputs: outputs}
}

// InputsOutputsFor returns a partitioner applying the same rules to
// freshly fetched predictions
func InputsOutputsFor(project domain.Project, selectedTask *domain.Task) func([]domain.Annotation) ([]domain.Annotation, []domain.TaskChainInput) {
	return func(predictions []domain.Annotation) ([]domain.Annotation, []domain.TaskChainInput) {
		partition := GetInputsOutputs(predictions, project, selectedTask)
		return partition.Outputs, partition.Inputs
	}
}

// IsOutputOf reports whether candidate, produced by task, belongs to input.
// Tasks labelling in place (detection followed by classification) only own
// the input itself; the others own whatever lies inside its bounds.
func IsOutputOf(task domain.Task, input, candidate domain.Annotation) bool {
	if candidate.ID == input.ID {
		return true
	}
	if task.Domain.LabelsInPlace() {
		return false
	}
	return input.Shape.Bounds().Contains(candidate.Shape.Bounds())
}

func outputsOf(task domain.Task, input domain.Annotation, outputs []domain.Annotation) []domain.Annotation {
	var result []domain.Annotation
	for _, output := range outputs {
		if IsOutputOf(task, input, output) {
			result = append(result, output)
		}
	}
	return result
}

func filterByTask(annotations []domain.Annotation, task domain.Task) []domain.Annotation {
	var result []domain.Annotation
	for _, annotation := range annotations {
		if task.Owns(annotation) {
			result = append(result, annotation)
		}
	}
	return result
}

// FindNextAnnotationCriteria picks, among inputs stacked strictly below
// selected, the one with the highest zIndex
func FindNextAnnotationCriteria(selected domain.Annotation, inputs []domain.TaskChainInput) (domain.Annotation, bool) {
	var best *domain.TaskChainInput
	for i := range inputs {
		input := &inputs[i]
		if input.ZIndex >= selected.ZIndex {
			continue
		}
		if best == nil || input.ZIndex > best.ZIndex {
			best = input
		}
	}
	if best == nil {
		return domain.Annotation{}, false
	}
	return best.Annotation, true
}

// FindPreviousAnnotationCriteria is the mirror of FindNextAnnotationCriteria
func FindPreviousAnnotationCriteria(selected domain.Annotation, inputs []domain.TaskChainInput) (domain.Annotation, bool) {
	var best *domain.TaskChainInput
	for i := range inputs {
		input := &inputs[i]
		if input.ZIndex <= selected.ZIndex {
			continue
		}
		if best == nil || input.ZIndex < best.ZIndex {
			best = input
		}
	}
	if best == nil {
		return domain.Annotation{}, false
	}
	return best.Annotation, true
}

// AnnotationsSource supplies the current annotations, normally the scene
type AnnotationsSource interface {
	Annotations() []domain.Annotation
}

// Resolver binds the rules above to a project, a selected task and a live annotation source
type Resolver struct {
	project      domain.Project
	selectedTask *domain.Task
	source       AnnotationsSource
}

func NewResolver(project domain.Project, selectedTask *domain.Task, source AnnotationsSource) *Resolver {
	return &Resolver{project: project, selectedTask: selectedTask, source: source}
}

func (r *Resolver) Project() domain.Project   { return r.project }
func (r *Resolver) SelectedTask() *domain.Task { return r.selectedTask }

// SetSelectedTask changes the task in focus; nil is the "All tasks" view
func (r *Resolver) SetSelectedTask(task *domain.Task) {
	r.selectedTask = task
}

// PreviousTask returns the task feeding the selected one, if any
func (r *Resolver) PreviousTask() *domain.Task {
	if !r.project.IsTaskChain() {
		return nil
	}
	return r.project.PreviousTask(r.selectedTask)
}

func (r *Resolver) HasPreviousTask() bool {
	return r.PreviousTask() != nil
}

// InputsOutputs partitions the current annotations
func (r *Resolver) InputsOutputs() InputsOutputs {
	return GetInputsOutputs(r.source.Annotations(), r.project, r.selectedTask)
}

// SelectedInputs returns the selected inputs of the selected task. It is
// empty unless the selected task has a previous task in the chain.
func (r *Resolver) SelectedInputs() []domain.TaskChainInput {
	if !r.HasPreviousTask() {
		return nil
	}
	var selected []domain.TaskChainInput
	for _, input := range r.InputsOutputs().Inputs {
		if input.IsSelected {
			selected = append(selected, input)
		}
	}
	return selected
}

// SelectedInput returns the first selected input
func (r *Resolver) SelectedInput() (domain.TaskChainInput, bool) {
	selected := r.SelectedInputs()
	if len(selected) == 0 {
		return domain.TaskChainInput{}, false
	}
	return selected[0], true
}

// NextAnnotation applies FindNextAnnotationCriteria to the selected input
func (r *Resolver) NextAnnotation() (domain.Annotation, bool) {
	selected, ok := r.SelectedInput()
	if !ok {
		return domain.Annotation{}, false
	}
	return FindNextAnnotationCriteria(selected.Annotation, r.InputsOutputs().Inputs)
}

// PreviousAnnotation applies FindPreviousAnnotationCriteria to the selected input
func (r *Resolver) PreviousAnnotation() (domain.Annotation, bool) {
	selected, ok := r.SelectedInput()
	if !ok {
		return domain.Annotation{}, false
	}
	return FindPreviousAnnotationCriteria(selected.Annotation, r.InputsOutputs().Inputs)
}

var resolverKey = provider.NewKey[*Resolver]("taskchain.FromContext", "task chain provider")

func WithResolver(ctx context.Context, r *Resolver) context.Context {
	return resolverKey.With(ctx, r)
}

func FromContext(ctx context.Context) (*Resolver, error) {
	return resolverKey.From(ctx)
}

func MustFromContext(ctx context.Context) *Resolver {
	return resolverKey.Must(ctx)
}
