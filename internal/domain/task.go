package domain

// Domain is the kind of problem a task solves
type Domain string

const (
	DomainClassification        Domain = "classification"
	DomainDetection             Domain = "detection"
	DomainRotatedDetection      Domain = "rotated-detection"
	DomainSegmentation          Domain = "segmentation"
	DomainInstanceSegmentation  Domain = "instance-segmentation"
	DomainAnomalyClassification Domain = "anomaly-classification"
	DomainAnomalyDetection      Domain = "anomaly-detection"
	DomainAnomalySegmentation   Domain = "anomaly-segmentation"
	DomainKeypointDetection     Domain = "keypoint-detection"
)

// Valid reports whether d is a known domain
func (d Domain) Valid() bool {
	switch d {
	case DomainClassification, DomainDetection, DomainRotatedDetection,
		DomainSegmentation, DomainInstanceSegmentation,
		DomainAnomalyClassification, DomainAnomalyDetection, DomainAnomalySegmentation,
		DomainKeypointDetection:
		return true
	}
	return false
}

func (d Domain) IsAnomaly() bool {
	return d == DomainAnomalyClassification || d == DomainAnomalyDetection || d == DomainAnomalySegmentation
}

// LabelsInPlace reports whether the domain labels its input annotation
// instead of drawing new shapes inside it
func (d Domain) LabelsInPlace() bool {
	return d == DomainClassification || d == DomainAnomalyClassification
}

// Task is one step of a project pipeline
type Task struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Domain Domain  `json:"domain"`
	Labels []Label `json:"labels"`
}

func (t Task) IsClassification() bool { return t.Domain == DomainClassification }
func (t Task) IsAnomaly() bool        { return t.Domain.IsAnomaly() }
func (t Task) IsKeypoint() bool       { return t.Domain == DomainKeypointDetection }

// HasLabel reports whether labelID belongs to the task
func (t Task) HasLabel(labelID string) bool {
	for _, label := range t.Labels {
		if label.ID == labelID {
			return true
		}
	}
	return false
}

// Owns reports whether the annotation carries any label of the task
func (t Task) Owns(annotation Annotation) bool {
	for _, label := range annotation.Labels {
		if t.HasLabel(label.ID) {
			return true
		}
	}
	return false
}

// Project is an ordered pipeline of tasks
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// IsTaskChain reports whether the project has more than one task
func (p Project) IsTaskChain() bool {
	return len(p.Tasks) > 1
}

// IsSingleTask reports whether the project is a single task of domain d
func (p Project) IsSingleTask(d Domain) bool {
	return len(p.Tasks) == 1 && p.Tasks[0].Domain == d
}

// Labels returns every label in canonical order
func (p Project) Labels() []Label {
	var labels []Label
	for _, task := range p.Tasks {
		labels = append(labels, task.Labels...)
	}
	return labels
}

// Task returns the task with the given id
func (p Project) Task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// PreviousTask returns the task before task in the pipeline, or nil
func (p Project) PreviousTask(task *Task) *Task {
	if task == nil {
		return nil
	}
	for i := range p.Tasks {
		if p.Tasks[i].ID == task.ID {
			if i == 0 {
				return nil
			}
			return &p.Tasks[i-1]
		}
	}
	return nil
}
