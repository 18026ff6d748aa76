// Package navigation computes what comes next when the user moves forward
// or backward: a task chain input, a video frame or another media item.
package navigation

import (
	"sort"

	"github.com/lewtec/anotador/internal/domain"
)

// Next is one of AnnotationNext, VideoFrameNext or MediaNext
type Next interface {
	isNext()
}

// AnnotationNext moves to another input of the current media item
type AnnotationNext struct {
	Annotation domain.Annotation
}

// VideoFrameNext moves to another frame of the current video
type VideoFrameNext struct {
	Frame domain.MediaItem
}

// MediaNext moves to another media item of the dataset
type MediaNext struct {
	Media domain.MediaItem
}

func (AnnotationNext) isNext() {}
func (VideoFrameNext) isNext() {}
func (MediaNext) isNext()      {}

type (
	// MediaCriteria picks the media item to move to from selected
	MediaCriteria func(selected domain.MediaIdentifier, items []domain.MediaItem) (domain.MediaItem, bool)
	// VideoFrameCriteria picks the frame to move to from current among frames
	VideoFrameCriteria func(current int, frames []int) (int, bool)
	// AnnotationCriteria picks the task chain input to move to
	AnnotationCriteria func() (domain.Annotation, bool)
)

func indexOf(selected domain.MediaIdentifier, items []domain.MediaItem) int {
	for i, item := range items {
		if item.Identifier == selected {
			return i
		}
	}
	return -1
}

// NextMediaItemCriteria returns the item after selected
func NextMediaItemCriteria(selected domain.MediaIdentifier, items []domain.MediaItem) (domain.MediaItem, bool) {
	i := indexOf(selected, items)
	if i < 0 || i+1 >= len(items) {
		return domain.MediaItem{}, false
	}
	return items[i+1], true
}

// PreviousMediaItemCriteria returns the item before selected
func PreviousMediaItemCriteria(selected domain.MediaIdentifier, items []domain.MediaItem) (domain.MediaItem, bool) {
	i := indexOf(selected, items)
	if i <= 0 {
		return domain.MediaItem{}, false
	}
	return items[i-1], true
}

func sortedFrames(frames []int) []int {
	sorted := append([]int(nil), frames...)
	sort.Ints(sorted)
	return sorted
}

// FindNextVideoFrameCriteria returns the frame following current in frames,
// or the lowest frame greater than current when current was filtered out
func FindNextVideoFrameCriteria(current int, frames []int) (int, bool) {
	sorted := sortedFrames(frames)
	i := sort.SearchInts(sorted, current)
	if i < len(sorted) && sorted[i] == current {
		i++
	}
	if i >= len(sorted) {
		return 0, false
	}
	return sorted[i], true
}

// FindPreviousVideoFrameCriteria returns the highest frame lower than current
func FindPreviousVideoFrameCriteria(current int, frames []int) (int, bool) {
	sorted := sortedFrames(frames)
	i := sort.SearchInts(sorted, current)
	if i == 0 {
		return 0, false
	}
	return sorted[i-1], true
}

// VideoContext holds what decides which frames of a video can be visited
type VideoContext struct {
	ActiveLearning bool
	ActiveFrames   []int
	FilterActive   bool
	FilteredFrames []int
	FrameSkip      int
}

// FrameSet returns the frames of video that navigation may land on: the
// active set in active learning mode, the filter result when a search
// filter is active, every FrameSkip-th frame otherwise.
func FrameSet(video domain.MediaItem, vc VideoContext) []int {
	switch {
	case vc.ActiveLearning:
		return sortedFrames(vc.ActiveFrames)
	case vc.FilterActive:
		return sortedFrames(vc.FilteredFrames)
	}
	step := vc.FrameSkip
	if step <= 0 {
		step = video.Metadata.FrameStride
	}
	if step <= 0 {
		step = 1
	}
	frames := make([]int, 0, video.Metadata.Frames/step+1)
	for frame := 0; frame < video.Metadata.Frames; frame += step {
		frames = append(frames, frame)
	}
	return frames
}

// Criteria bundles the functions NextMediaItem consults. VideoFrame and
// Annotation are optional.
type Criteria struct {
	Media      MediaCriteria
	VideoFrame VideoFrameCriteria
	Annotation AnnotationCriteria
}

// Forward navigates to the next input, frame or media item
func Forward(annotation AnnotationCriteria) Criteria {
	return Criteria{Media: NextMediaItemCriteria, VideoFrame: FindNextVideoFrameCriteria, Annotation: annotation}
}

// Backward navigates to the previous input, frame or media item
func Backward(annotation AnnotationCriteria) Criteria {
	return Criteria{Media: PreviousMediaItemCriteria, VideoFrame: FindPreviousVideoFrameCriteria, Annotation: annotation}
}

// NextMediaItem resolves where navigation from selected goes. Task chain
// inputs come first, then frames of the selected video, then the other
// media items. ok is false when there is nowhere to go.
func NextMediaItem(selected domain.MediaItem, items []domain.MediaItem, vc VideoContext, criteria Criteria) (Next, bool) {
	if criteria.Annotation != nil {
		if annotation, ok := criteria.Annotation(); ok {
			return AnnotationNext{Annotation: annotation}, true
		}
	}

	if selected.Identifier.IsVideoBacked() && criteria.VideoFrame != nil {
		frames := FrameSet(selected, vc)
		if frame, ok := criteria.VideoFrame(selected.Identifier.FrameNumber, frames); ok {
			return VideoFrameNext{Frame: domain.VideoFrameOf(selected, frame)}, true
		}
		if criteria.Media == nil {
			return nil, false
		}
		if filtered, anchor, ok := collapseVideo(items, selected.Identifier.VideoID); ok {
			if media, ok := criteria.Media(anchor, filtered); ok {
				return MediaNext{Media: media}, true
			}
			return nil, false
		}
	}

	if criteria.Media == nil {
		return nil, false
	}
	if media, ok := criteria.Media(selected.Identifier, items); ok {
		return MediaNext{Media: media}, true
	}
	return nil, false
}

// collapseVideo keeps only the first item of videoID so that criteria
// step over the whole video instead of landing on one of its frames
func collapseVideo(items []domain.MediaItem, videoID string) ([]domain.MediaItem, domain.MediaIdentifier, bool) {
	var (
		filtered []domain.MediaItem
		anchor   domain.MediaIdentifier
		found    bool
	)
	for _, item := range items {
		if item.Identifier.IsVideoBacked() && item.Identifier.VideoID == videoID {
			if found {
				continue
			}
			found = true
			anchor = item.Identifier
		}
		filtered = append(filtered, item)
	}
	return filtered, anchor, found
}
