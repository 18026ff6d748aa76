// Package labels encodes the project label hierarchy and the exclusivity
// rules applied when labels are added to or removed from an annotation.
package labels

import (
	"sort"

	"github.com/lewtec/anotador/internal/domain"
)

// ConflictPredicate reports whether existing must be dropped when added is assigned
type ConflictPredicate func(added, existing domain.Label) bool

// SameGroupReplaces drops labels that share the exclusivity group of the added label
func SameGroupReplaces(added, existing domain.Label) bool {
	return added.Group != "" && added.Group == existing.Group
}

// EmptyLabelReplaces makes the empty label and every other label mutually exclusive
func EmptyLabelReplaces(added, existing domain.Label) bool {
	return added.ID != existing.ID && (added.IsEmpty() || existing.IsEmpty())
}

// AnyConflict combines predicates, a conflict in any of them is a conflict
func AnyConflict(predicates ...ConflictPredicate) ConflictPredicate {
	return func(added, existing domain.Label) bool {
		for _, predicate := range predicates {
			if predicate != nil && predicate(added, existing) {
				return true
			}
		}
		return false
	}
}

// DefaultConflict is used when a caller does not provide a policy
var DefaultConflict = AnyConflict(SameGroupReplaces, EmptyLabelReplaces)

// Tree indexes the project labels
type Tree struct {
	labels []domain.Label
	byID   map[string]domain.Label
	order  map[string]int
}

// NewTree builds a tree from labels given in canonical order
func NewTree(labels []domain.Label) *Tree {
	t := &Tree{
		labels: append([]domain.Label(nil), labels...),
		byID:   make(map[string]domain.Label, len(labels)),
		order:  make(map[string]int, len(labels)),
	}
	for i, label := range labels {
		t.byID[label.ID] = label
		t.order[label.ID] = i
	}
	return t
}

// Labels returns the labels in canonical order
func (t *Tree) Labels() []domain.Label {
	return append([]domain.Label(nil), t.labels...)
}

// Get looks up a label by id
func (t *Tree) Get(id string) (domain.Label, bool) {
	label, ok := t.byID[id]
	return label, ok
}

// Ancestors returns the parents of label, closest first
func (t *Tree) Ancestors(label domain.Label) []domain.Label {
	var ancestors []domain.Label
	seen := map[string]bool{label.ID: true}
	for parentID := label.ParentID; parentID != "" && !seen[parentID]; {
		parent, ok := t.byID[parentID]
		if !ok {
			break
		}
		seen[parentID] = true
		ancestors = append(ancestors, parent)
		parentID = parent.ParentID
	}
	return ancestors
}

// IsDescendant reports whether label sits below ancestorID in the hierarchy
func (t *Tree) IsDescendant(label domain.Label, ancestorID string) bool {
	for _, ancestor := range t.Ancestors(label) {
		if ancestor.ID == ancestorID {
			return true
		}
	}
	return false
}

// Add assigns label and its ancestors to existing. Existing labels in
// conflict with any assigned label are dropped. The result is sorted in
// canonical order.
func (t *Tree) Add(existing []domain.AnnotationLabel, label domain.AnnotationLabel, conflict ConflictPredicate) []domain.AnnotationLabel {
	if conflict == nil {
		conflict = DefaultConflict
	}
	added := []domain.AnnotationLabel{label}
	for _, ancestor := range t.Ancestors(label.Label) {
		added = append(added, domain.AnnotationLabel{
			Label:        ancestor,
			Score:        label.Score,
			Source:       label.Source,
			IsPrediction: label.IsPrediction,
		})
	}

	var dropped []domain.Label
	kept := make([]domain.AnnotationLabel, 0, len(existing)+len(added))
	for _, current := range existing {
		if isAssigned(added, current.ID) {
			continue
		}
		if conflictsWithAny(added, current.Label, conflict) {
			dropped = append(dropped, current.Label)
			continue
		}
		kept = append(kept, current)
	}
	// children of a replaced label go with it
	result := t.Remove(kept, dropped)
	result = append(result, added...)
	return t.Sort(result)
}

// Remove drops the given labels and every descendant of them
func (t *Tree) Remove(existing []domain.AnnotationLabel, toRemove []domain.Label) []domain.AnnotationLabel {
	result := make([]domain.AnnotationLabel, 0, len(existing))
	for _, current := range existing {
		removed := false
		for _, label := range toRemove {
			if current.ID == label.ID || t.IsDescendant(current.Label, label.ID) {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, current)
		}
	}
	return result
}

// Sort orders labels canonically. Labels unknown to the tree keep their
// relative order after the known ones.
func (t *Tree) Sort(labels []domain.AnnotationLabel) []domain.AnnotationLabel {
	sorted := append([]domain.AnnotationLabel(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return t.rank(sorted[i].ID) < t.rank(sorted[j].ID)
	})
	return sorted
}

func (t *Tree) rank(id string) int {
	if index, ok := t.order[id]; ok {
		return index
	}
	return len(t.labels)
}

func isAssigned(labels []domain.AnnotationLabel, id string) bool {
	for _, label := range labels {
		if label.ID == id {
			return true
		}
	}
	return false
}

func conflictsWithAny(added []domain.AnnotationLabel, existing domain.Label, conflict ConflictPredicate) bool {
	for _, label := range added {
		if conflict(label.Label, existing) {
			return true
		}
	}
	return false
}
