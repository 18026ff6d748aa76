package domain

// LabelBehaviour is a bit set describing how a label interacts with others
type LabelBehaviour uint8

const (
	// BehaviourExclusive marks the empty ("No object") label of a task
	BehaviourExclusive LabelBehaviour = 1 << iota
	BehaviourAnomalous
	BehaviourGlobal
)

// Label is a project label definition
type Label struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Color     string         `json:"color,omitempty" yaml:"color"`
	Group     string         `json:"group,omitempty" yaml:"group"`
	ParentID  string         `json:"parentLabelId,omitempty" yaml:"parent"`
	Behaviour LabelBehaviour `json:"behaviour,omitempty" yaml:"-"`
}

func (l Label) IsEmpty() bool     { return l.Behaviour&BehaviourExclusive != 0 }
func (l Label) IsAnomalous() bool { return l.Behaviour&BehaviourAnomalous != 0 }
func (l Label) IsGlobal() bool    { return l.Behaviour&BehaviourGlobal != 0 }

// LabelSource tells who assigned a label to an annotation
type LabelSource struct {
	UserID         string `json:"userId,omitempty"`
	ModelID        string `json:"modelId,omitempty"`
	ModelStorageID string `json:"modelStorageId,omitempty"`
}

// AnnotationLabel is a label assigned to one annotation
type AnnotationLabel struct {
	Label
	Score        *float64    `json:"score,omitempty"`
	Source       LabelSource `json:"source"`
	IsPrediction bool        `json:"isPrediction,omitempty"`
}

// UserLabel assigns label on behalf of a user
func UserLabel(label Label, userID string) AnnotationLabel {
	return AnnotationLabel{Label: label, Source: LabelSource{UserID: userID}}
}

// PredictedLabel assigns label on behalf of a model
func PredictedLabel(label Label, score float64, modelID string) AnnotationLabel {
	return AnnotationLabel{
		Label:        label,
		Score:        &score,
		Source:       LabelSource{ModelID: modelID},
		IsPrediction: true,
	}
}

// Clone copies the label, including its score pointer target
func (l AnnotationLabel) Clone() AnnotationLabel {
	if l.Score != nil {
		score := *l.Score
		l.Score = &score
	}
	return l
}
