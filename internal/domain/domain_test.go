package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaKey(t *testing.T) {
	t.Parallel()

	for _, identifier := range []MediaIdentifier{
		ImageIdentifier("abc"),
		VideoIdentifier("vid"),
		VideoFrameIdentifier("vid", 0),
		VideoFrameIdentifier("vid", 42),
	} {
		parsed, err := ParseMediaKey(identifier.Key())
		require.NoError(t, err, identifier.Key())
		assert.Equal(t, identifier, parsed)
	}

	for _, key := range []string{"", "image:", "video", "videoFrame:vid", "videoFrame:vid:-1", "videoFrame:vid:x", "audio:abc"} {
		_, err := ParseMediaKey(key)
		assert.Error(t, err, key)
	}
}

func TestVideoFrameOf(t *testing.T) {
	t.Parallel()

	video := MediaItem{Identifier: VideoIdentifier("vid"), Name: "clip.mp4", Metadata: MediaMetadata{Frames: 10}}
	frame := VideoFrameOf(video, 3)
	assert.Equal(t, "videoFrame:vid:3", frame.Identifier.Key())
	assert.Equal(t, "clip.mp4", frame.Name)
	assert.True(t, frame.Identifier.IsVideoBacked())
	assert.False(t, ImageIdentifier("abc").IsVideoBacked())
}

func TestShapeBounds(t *testing.T) {
	t.Parallel()

	outer := Shape{Type: ShapeRect, X: 0, Y: 0, Width: 100, Height: 100}
	polygon := Shape{Type: ShapePolygon, Points: []Point{{X: 10, Y: 10}, {X: 40, Y: 15}, {X: 20, Y: 60}}}
	assert.Equal(t, Rect{X: 10, Y: 10, Width: 30, Height: 50}, polygon.Bounds())
	assert.True(t, outer.Bounds().Contains(polygon.Bounds()))

	circle := Shape{Type: ShapeCircle, X: 95, Y: 50, Radius: 10}
	assert.False(t, outer.Bounds().Contains(circle.Bounds()))

	rotated := Shape{Type: ShapeRotatedRect, X: 50, Y: 50, Width: 20, Height: 10, Angle: 90}
	bounds := rotated.Bounds()
	assert.InDelta(t, 10, bounds.Width, 1e-9)
	assert.InDelta(t, 20, bounds.Height, 1e-9)
}

func TestAnnotationPersistable(t *testing.T) {
	t.Parallel()

	score := 0.7
	annotation := Annotation{
		ID:         "a",
		Shape:      Shape{Type: ShapePolygon, Points: []Point{{X: 1, Y: 2}}},
		Labels:     []AnnotationLabel{{Label: Label{ID: "car"}, Score: &score}},
		IsSelected: true,
		IsHidden:   true,
	}
	persisted := annotation.Persistable()
	assert.False(t, persisted.IsSelected)
	assert.False(t, persisted.IsHidden)

	persisted.Shape.Points[0].X = 99
	*persisted.Labels[0].Score = 0.1
	assert.Equal(t, 1.0, annotation.Shape.Points[0].X, "clone shares no points")
	assert.Equal(t, 0.7, *annotation.Labels[0].Score, "clone shares no scores")
}

func TestProjectTasks(t *testing.T) {
	t.Parallel()

	project := Project{Tasks: []Task{
		{ID: "detect", Domain: DomainDetection, Labels: []Label{{ID: "car"}}},
		{ID: "classify", Domain: DomainClassification, Labels: []Label{{ID: "sedan"}, {ID: "suv"}}},
	}}
	assert.True(t, project.IsTaskChain())
	assert.False(t, project.IsSingleTask(DomainDetection))
	assert.Equal(t, []string{"car", "sedan", "suv"}, []string{project.Labels()[0].ID, project.Labels()[1].ID, project.Labels()[2].ID})
	assert.Equal(t, "detect", project.PreviousTask(project.Task("classify")).ID)
	assert.Nil(t, project.PreviousTask(project.Task("detect")))
	assert.Nil(t, project.Task("missing"))
}
