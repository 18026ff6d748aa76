package scene

import "github.com/lewtec/anotador/internal/domain"

// The mutations in this file only touch UI state and never enter the
// undo history.

func (s *Scene) setFlags(fn func(*domain.Annotation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := domain.CloneAnnotations(s.present)
	for i := range next {
		fn(&next[i])
	}
	s.commit(next, true, "", nil)
}

func (s *Scene) SelectAnnotation(id string) {
	s.setFlags(func(a *domain.Annotation) {
		if a.ID == id {
			a.IsSelected = true
		}
	})
}

func (s *Scene) UnselectAnnotation(id string) {
	s.setFlags(func(a *domain.Annotation) {
		if a.ID == id {
			a.IsSelected = false
		}
	})
}

func (s *Scene) UnselectAllAnnotations() {
	s.setFlags(func(a *domain.Annotation) { a.IsSelected = false })
}

// SetSelectedAnnotations selects exactly the annotations matching predicate
func (s *Scene) SetSelectedAnnotations(predicate Predicate) {
	s.setFlags(func(a *domain.Annotation) { a.IsSelected = predicate(*a) })
}

// SetHiddenAnnotations hides exactly the annotations matching predicate
func (s *Scene) SetHiddenAnnotations(predicate Predicate) {
	s.setFlags(func(a *domain.Annotation) { a.IsHidden = predicate(*a) })
}

// SetLockedAnnotations locks exactly the annotations matching predicate
func (s *Scene) SetLockedAnnotations(predicate Predicate) {
	s.setFlags(func(a *domain.Annotation) { a.IsLocked = predicate(*a) })
}

// HoverAnnotation marks id as hovered; an empty id clears the hover
func (s *Scene) HoverAnnotation(id string) {
	s.setFlags(func(a *domain.Annotation) { a.IsHovered = id != "" && a.ID == id })
}

func (s *Scene) ToggleLock(lock bool, id string) {
	s.setFlags(func(a *domain.Annotation) {
		if a.ID == id {
			a.IsLocked = lock
		}
	})
}

func (s *Scene) HideAnnotation(id string) {
	s.setFlags(func(a *domain.Annotation) {
		if a.ID == id {
			a.IsHidden = true
		}
	})
}

func (s *Scene) ShowAnnotation(id string) {
	s.setFlags(func(a *domain.Annotation) {
		if a.ID == id {
			a.IsHidden = false
		}
	})
}

// SetDrawing flags that a shape is being drawn
func (s *Scene) SetDrawing(drawing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isDrawing = drawing
}

func (s *Scene) IsDrawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDrawing
}

// SetShapePointSelected flags that a single vertex of a shape is being edited
func (s *Scene) SetShapePointSelected(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapePointSelected = selected
}

func (s *Scene) HasShapePointSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shapePointSelected
}

// DeleteSelected removes the selected, unlocked annotations. It does
// nothing while a shape point is selected.
func (s *Scene) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shapePointSelected {
		return false
	}
	ids := map[string]bool{}
	for _, annotation := range s.present {
		if annotation.IsSelected && !annotation.IsLocked {
			ids[annotation.ID] = true
		}
	}
	return len(s.remove(ids, false)) > 0
}
