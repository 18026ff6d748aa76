package domain

import (
	"context"
	"time"
)

// Annotation is a labeled geometric region on a media item
type Annotation struct {
	ID     string            `json:"id"`
	Shape  Shape             `json:"shape"`
	Labels []AnnotationLabel `json:"labels"`
	ZIndex int               `json:"zIndex"`

	// UI state, stripped before persisting
	IsSelected bool `json:"isSelected,omitempty"`
	IsHidden   bool `json:"isHidden,omitempty"`
	IsLocked   bool `json:"isLocked,omitempty"`
	IsHovered  bool `json:"isHovered,omitempty"`
}

// Clone deep copies the annotation
func (a Annotation) Clone() Annotation {
	a.Shape = a.Shape.Clone()
	if a.Labels != nil {
		labels := make([]AnnotationLabel, len(a.Labels))
		for i, label := range a.Labels {
			labels[i] = label.Clone()
		}
		a.Labels = labels
	}
	return a
}

// Persistable returns a copy without transient UI flags
func (a Annotation) Persistable() Annotation {
	a = a.Clone()
	a.IsSelected, a.IsHidden, a.IsLocked, a.IsHovered = false, false, false, false
	return a
}

// HasLabel reports whether the annotation carries labelID
func (a Annotation) HasLabel(labelID string) bool {
	for _, label := range a.Labels {
		if label.ID == labelID {
			return true
		}
	}
	return false
}

// IsPrediction reports whether any of the labels is still model made
func (a Annotation) IsPrediction() bool {
	for _, label := range a.Labels {
		if label.IsPrediction {
			return true
		}
	}
	return false
}

// CloneAnnotations deep copies a list of annotations
func CloneAnnotations(annotations []Annotation) []Annotation {
	if annotations == nil {
		return nil
	}
	result := make([]Annotation, len(annotations))
	for i, annotation := range annotations {
		result[i] = annotation.Clone()
	}
	return result
}

// AnnotationIDs collects the ids of annotations
func AnnotationIDs(annotations []Annotation) []string {
	ids := make([]string, len(annotations))
	for i, annotation := range annotations {
		ids[i] = annotation.ID
	}
	return ids
}

// TaskChainInput is an annotation acting as region of interest for the
// next task in a pipeline
type TaskChainInput struct {
	Annotation
	Outputs []Annotation `json:"outputs"`
}

// OutputIDs returns the ids of the outputs of the input
func (t TaskChainInput) OutputIDs() []string {
	return AnnotationIDs(t.Outputs)
}

// Explanation is a saliency map produced alongside a prediction
type Explanation struct {
	ID       string `json:"id"`
	LabelsID string `json:"labelsId"`
	Name     string `json:"name"`
	ROI      struct {
		ID    string `json:"id"`
		Shape Shape  `json:"shape"`
	} `json:"roi"`
	Binary []byte `json:"binary,omitempty"`
	URL    string `json:"url,omitempty"`
}

// SavedScene is the persisted annotation set of a media item
type SavedScene struct {
	ID          int64
	MediaKey    string
	Username    string
	Annotations []Annotation
	SavedAt     time.Time
}

// SceneStats provides statistics about persisted scenes
type SceneStats struct {
	AnnotatedMedia   int64
	TotalAnnotations int64
	TotalUsers       int64
}

// SceneRepository defines the interface for annotation storage operations
type SceneRepository interface {
	// Save creates or replaces the scene of a media item for a user
	Save(ctx context.Context, mediaKey string, username string, annotations []Annotation) (*SavedScene, error)

	// Get retrieves the scene of a media item for a user
	Get(ctx context.Context, mediaKey string, username string) (*SavedScene, error)

	// GetForMedia retrieves every user's scene of a media item
	GetForMedia(ctx context.Context, mediaKey string) ([]*SavedScene, error)

	// ListByUser retrieves scenes saved by a user (paginated)
	ListByUser(ctx context.Context, username string, limit, offset int) ([]*SavedScene, error)

	// Delete removes a scene by ID
	Delete(ctx context.Context, id int64) error

	// DeleteForMedia removes all scenes of a media item
	DeleteForMedia(ctx context.Context, mediaKey string) error

	// GetStats returns overall annotation statistics
	GetStats(ctx context.Context) (*SceneStats, error)
}
