package annotation

import (
	"errors"
	"fmt"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/labels"
)

// ErrUnknownOperation is returned by Session.Apply for an operation it does not know
var ErrUnknownOperation = errors.New("unknown operation")

// opRequest is the body of POST /api/session/{op}. Each operation reads
// only the fields it needs.
type opRequest struct {
	Shapes      []domain.Shape      `json:"shapes,omitempty"`
	Annotations []domain.Annotation `json:"annotations,omitempty"`
	IDs         []string            `json:"ids,omitempty"`
	LabelIDs    []string            `json:"labelIds,omitempty"`
	Selected    bool                `json:"selected,omitempty"`
	Value       bool                `json:"value,omitempty"`
	SkipHistory bool                `json:"skipHistory,omitempty"`
	Task        string              `json:"task,omitempty"`
	Tool        string              `json:"tool,omitempty"`
}

type sessionState struct {
	Media        domain.MediaItem    `json:"media"`
	SelectedTask string              `json:"selectedTask,omitempty"`
	Annotations  []domain.Annotation `json:"annotations"`
	CanUndo      bool                `json:"canUndo"`
	CanRedo      bool                `json:"canRedo"`
	IsDrawing    bool                `json:"isDrawing"`
	Tools        map[string]int      `json:"tools"`
}

// State is the snapshot returned by every session endpoint
func (s *Session) State() sessionState {
	state := sessionState{
		Media:       s.Media,
		Annotations: s.Scene.Annotations(),
		CanUndo:     s.Scene.CanUndo(),
		CanRedo:     s.Scene.CanRedo(),
		IsDrawing:   s.Scene.IsDrawing(),
		Tools:       s.Tools.Counts(),
	}
	if state.Annotations == nil {
		state.Annotations = []domain.Annotation{}
	}
	if task := s.Resolver.SelectedTask(); task != nil {
		state.SelectedTask = task.ID
	}
	return state
}

func (s *Session) lookupLabels(ids []string) ([]domain.Label, error) {
	found := make([]domain.Label, 0, len(ids))
	for _, id := range ids {
		label, ok := s.Labels.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown label %s", id)
		}
		found = append(found, label)
	}
	return found, nil
}

func requireIDs(req opRequest) error {
	if len(req.IDs) == 0 {
		return errors.New("no annotation ids given")
	}
	return nil
}

func inIDs(ids []string) func(domain.Annotation) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(annotation domain.Annotation) bool { return set[annotation.ID] }
}

// Apply runs one scene operation named by op
func (s *Session) Apply(op string, req opRequest) error {
	scn := s.Scene
	switch op {
	case "add-shapes":
		found, err := s.lookupLabels(req.LabelIDs)
		if err != nil {
			return err
		}
		if req.Tool != "" {
			s.Tools.SetActiveTool(req.Tool)
		}
		scn.AddShapes(req.Shapes, found, req.Selected, labels.DefaultConflict)
	case "add-annotations":
		scn.AddAnnotations(req.Annotations)
	case "remove":
		if err := requireIDs(req); err != nil {
			return err
		}
		var remove []domain.Annotation
		for _, id := range req.IDs {
			remove = append(remove, domain.Annotation{ID: id})
		}
		scn.RemoveAnnotations(remove, req.SkipHistory)
	case "update":
		if len(req.Annotations) != 1 {
			return errors.New("update takes exactly one annotation")
		}
		scn.UpdateAnnotation(req.Annotations[0])
	case "update-many":
		scn.UpdateAnnotations(req.Annotations)
	case "replace":
		scn.ReplaceAnnotations(req.Annotations, req.SkipHistory)
	case "add-label":
		if len(req.LabelIDs) != 1 {
			return errors.New("add-label takes exactly one label")
		}
		found, err := s.lookupLabels(req.LabelIDs)
		if err != nil {
			return err
		}
		scn.AddLabel(found[0], req.IDs, labels.DefaultConflict)
	case "remove-labels":
		found, err := s.lookupLabels(req.LabelIDs)
		if err != nil {
			return err
		}
		scn.RemoveLabels(found, req.IDs, req.SkipHistory)
	case "hover":
		// no ids clears the hover
		id := ""
		if len(req.IDs) > 0 {
			id = req.IDs[0]
		}
		scn.HoverAnnotation(id)
	case "select", "unselect", "hide", "show", "toggle-lock":
		if err := requireIDs(req); err != nil {
			return err
		}
		for _, id := range req.IDs {
			switch op {
			case "select":
				scn.SelectAnnotation(id)
			case "unselect":
				scn.UnselectAnnotation(id)
			case "hide":
				scn.HideAnnotation(id)
			case "show":
				scn.ShowAnnotation(id)
			case "toggle-lock":
				scn.ToggleLock(req.Value, id)
			}
		}
	case "unselect-all":
		scn.UnselectAllAnnotations()
	case "set-selected":
		scn.SetSelectedAnnotations(inIDs(req.IDs))
	case "set-hidden":
		scn.SetHiddenAnnotations(inIDs(req.IDs))
	case "set-locked":
		scn.SetLockedAnnotations(inIDs(req.IDs))
	case "delete-selected":
		scn.DeleteSelected()
	case "drawing":
		scn.SetDrawing(req.Value)
	case "shape-point":
		scn.SetShapePointSelected(req.Value)
	case "undo":
		scn.Undo()
	case "redo":
		scn.Redo()
	case "task":
		return s.SelectTask(req.Task)
	case "tool":
		s.Tools.SetActiveTool(req.Tool)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return nil
}
