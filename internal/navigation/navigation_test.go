package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/anotador/internal/domain"
)

func image(id string) domain.MediaItem {
	return domain.MediaItem{Identifier: domain.ImageIdentifier(id), Name: id}
}

func video(id string, frames int) domain.MediaItem {
	return domain.MediaItem{Identifier: domain.VideoIdentifier(id), Name: id, Metadata: domain.MediaMetadata{Frames: frames}}
}

func TestFindNextVideoFrameCriteria(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current int
		frames  []int
		want    int
		wantOK  bool
	}{
		{name: "follows the current frame", current: 20, frames: []int{10, 20, 35}, want: 35, wantOK: true},
		{name: "past the last frame", current: 36, frames: []int{10, 20, 35}},
		{name: "current frame filtered out", current: 15, frames: []int{35, 10, 20}, want: 20, wantOK: true},
		{name: "last frame", current: 35, frames: []int{10, 20, 35}},
		{name: "no frames", current: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindNextVideoFrameCriteria(tt.current, tt.frames)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindPreviousVideoFrameCriteria(t *testing.T) {
	t.Parallel()

	got, ok := FindPreviousVideoFrameCriteria(20, []int{10, 20, 35})
	require.True(t, ok)
	assert.Equal(t, 10, got)

	got, ok = FindPreviousVideoFrameCriteria(36, []int{10, 20, 35})
	require.True(t, ok)
	assert.Equal(t, 35, got)

	_, ok = FindPreviousVideoFrameCriteria(10, []int{10, 20, 35})
	assert.False(t, ok)
}

func TestMediaItemCriteria(t *testing.T) {
	t.Parallel()

	items := []domain.MediaItem{image("a"), image("b"), image("c")}

	next, ok := NextMediaItemCriteria(domain.ImageIdentifier("b"), items)
	require.True(t, ok)
	assert.Equal(t, "c", next.Name)

	_, ok = NextMediaItemCriteria(domain.ImageIdentifier("c"), items)
	assert.False(t, ok)

	previous, ok := PreviousMediaItemCriteria(domain.ImageIdentifier("b"), items)
	require.True(t, ok)
	assert.Equal(t, "a", previous.Name)

	_, ok = PreviousMediaItemCriteria(domain.ImageIdentifier("a"), items)
	assert.False(t, ok)

	_, ok = NextMediaItemCriteria(domain.ImageIdentifier("missing"), items)
	assert.False(t, ok)
}

func TestFrameSet(t *testing.T) {
	t.Parallel()

	v := video("v", 10)
	assert.Equal(t, []int{0, 3, 6, 9}, FrameSet(v, VideoContext{FrameSkip: 3}))
	assert.Equal(t, []int{4, 8}, FrameSet(v, VideoContext{FilterActive: true, FilteredFrames: []int{8, 4}, FrameSkip: 3}))
	assert.Equal(t, []int{1, 2}, FrameSet(v, VideoContext{
		ActiveLearning: true, ActiveFrames: []int{2, 1},
		FilterActive: true, FilteredFrames: []int{8, 4},
	}))

	v.Metadata.FrameStride = 5
	assert.Equal(t, []int{0, 5}, FrameSet(v, VideoContext{}))
}

func TestNextMediaItemPrefersAnnotations(t *testing.T) {
	t.Parallel()

	input := domain.Annotation{ID: "box-2"}
	next, ok := NextMediaItem(image("a"), []domain.MediaItem{image("a"), image("b")}, VideoContext{},
		Forward(func() (domain.Annotation, bool) { return input, true }))
	require.True(t, ok)

	switch n := next.(type) {
	case AnnotationNext:
		assert.Equal(t, "box-2", n.Annotation.ID)
	default:
		t.Fatalf("unexpected next %T", next)
	}
}

func TestNextMediaItemIteratesVideoFrames(t *testing.T) {
	t.Parallel()

	v := video("v", 40)
	selected := domain.VideoFrameOf(v, 20)
	vc := VideoContext{FilterActive: true, FilteredFrames: []int{10, 20, 35}}

	next, ok := NextMediaItem(selected, []domain.MediaItem{v, image("b")}, vc, Forward(nil))
	require.True(t, ok)
	frame, isFrame := next.(VideoFrameNext)
	require.True(t, isFrame)
	assert.Equal(t, domain.VideoFrameIdentifier("v", 35), frame.Frame.Identifier)
}

func TestNextMediaItemLeavesFinishedVideo(t *testing.T) {
	t.Parallel()

	v := video("v", 40)
	items := []domain.MediaItem{
		image("a"),
		domain.VideoFrameOf(v, 0),
		domain.VideoFrameOf(v, 20),
		domain.VideoFrameOf(v, 35),
		image("b"),
	}
	vc := VideoContext{FilterActive: true, FilteredFrames: []int{10, 20, 35}}

	next, ok := NextMediaItem(domain.VideoFrameOf(v, 36), items, vc, Forward(nil))
	require.True(t, ok)
	media, isMedia := next.(MediaNext)
	require.True(t, isMedia)
	assert.Equal(t, "b", media.Media.Name)

	previous, ok := NextMediaItem(domain.VideoFrameOf(v, 10), items, vc, Backward(nil))
	require.True(t, ok)
	assert.Equal(t, MediaNext{Media: image("a")}, previous)
}

func TestNextMediaItemEnd(t *testing.T) {
	t.Parallel()

	items := []domain.MediaItem{image("a"), image("b")}
	_, ok := NextMediaItem(image("b"), items, VideoContext{}, Forward(func() (domain.Annotation, bool) {
		return domain.Annotation{}, false
	}))
	assert.False(t, ok)

	v := video("v", 3)
	_, ok = NextMediaItem(domain.VideoFrameOf(v, 2), []domain.MediaItem{image("a"), v}, VideoContext{}, Forward(nil))
	assert.False(t, ok)
}
