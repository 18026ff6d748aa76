// Package analytics records which annotation tools produced which annotations.
package analytics

import "sync"

// EventKind names the scene mutation an event describes
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventRemoved  EventKind = "removed"
	EventUpdated  EventKind = "updated"
	EventReplaced EventKind = "replaced"
	EventLabeled  EventKind = "labeled"
	EventUndo     EventKind = "undo"
	EventRedo     EventKind = "redo"
)

// Event is emitted by the scene for every history-tracked mutation
type Event struct {
	Kind          EventKind
	AnnotationIDs []string
	Tool          string
}

// Observer receives scene events. Implementations must not call back into the scene.
type Observer interface {
	Record(event Event)
	Reset()
}

// Nop discards every event
type Nop struct{}

func (Nop) Record(Event) {}
func (Nop) Reset()       {}

// ToolUsage counts, per annotation, which tool created it
type ToolUsage struct {
	mu     sync.Mutex
	tools  map[string]string
	counts map[string]int
	tool   string
}

func NewToolUsage() *ToolUsage {
	return &ToolUsage{
		tools:  map[string]string{},
		counts: map[string]int{},
	}
}

// SetActiveTool sets the tool attributed to events without an explicit one
func (t *ToolUsage) SetActiveTool(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tool = tool
}

func (t *ToolUsage) Record(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tool := event.Tool
	if tool == "" {
		tool = t.tool
	}
	switch event.Kind {
	case EventCreated:
		if tool == "" {
			return
		}
		for _, id := range event.AnnotationIDs {
			t.tools[id] = tool
			t.counts[tool]++
		}
	case EventRemoved:
		for _, id := range event.AnnotationIDs {
			if usedTool, ok := t.tools[id]; ok {
				t.counts[usedTool]--
				delete(t.tools, id)
			}
		}
	}
}

func (t *ToolUsage) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = map[string]string{}
	t.counts = map[string]int{}
}

// ToolOf returns the tool that created the annotation
func (t *ToolUsage) ToolOf(annotationID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tool, ok := t.tools[annotationID]
	return tool, ok
}

// Counts returns a snapshot of how many live annotations each tool created
func (t *ToolUsage) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.counts))
	for tool, count := range t.counts {
		if count > 0 {
			counts[tool] = count
		}
	}
	return counts
}

type multi []Observer

func (m multi) Record(event Event) {
	for _, observer := range m {
		observer.Record(event)
	}
}

func (m multi) Reset() {
	for _, observer := range m {
		observer.Reset()
	}
}

// Multi fans events out to every observer in order
func Multi(observers ...Observer) Observer {
	return multi(observers)
}
