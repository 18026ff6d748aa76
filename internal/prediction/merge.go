package prediction

import "github.com/lewtec/anotador/internal/domain"

// MergeFunc combines predictions with existing annotations
type MergeFunc func(predictions, existing []domain.Annotation) []domain.Annotation

// MergeAnnotations de-duplicates by id with predictions taking precedence.
// When a prediction targets an existing id, the existing labels whose
// group (or id) the prediction does not cover are kept: a classification
// prediction on a detected box keeps the detection label. UI flags of the
// existing annotation survive the merge.
func MergeAnnotations(predictions, existing []domain.Annotation) []domain.Annotation {
	result := domain.CloneAnnotations(existing)
	index := make(map[string]int, len(result))
	for i, annotation := range result {
		index[annotation.ID] = i
	}
	for _, prediction := range predictions {
		prediction = prediction.Clone()
		at, ok := index[prediction.ID]
		if !ok {
			index[prediction.ID] = len(result)
			result = append(result, prediction)
			continue
		}
		current := result[at]
		prediction.Labels = mergeLabels(current.Labels, prediction.Labels)
		prediction.ZIndex = current.ZIndex
		prediction.IsSelected = current.IsSelected
		prediction.IsHidden = current.IsHidden
		prediction.IsLocked = current.IsLocked
		prediction.IsHovered = current.IsHovered
		result[at] = prediction
	}
	return result
}

func mergeLabels(existing, predicted []domain.AnnotationLabel) []domain.AnnotationLabel {
	groups := map[string]bool{}
	ids := map[string]bool{}
	for _, label := range predicted {
		ids[label.ID] = true
		if label.Group != "" {
			groups[label.Group] = true
		}
	}
	var result []domain.AnnotationLabel
	for _, label := range existing {
		if ids[label.ID] || (label.Group != "" && groups[label.Group]) {
			continue
		}
		result = append(result, label.Clone())
	}
	for _, label := range predicted {
		result = append(result, label.Clone())
	}
	return result
}
