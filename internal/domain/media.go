package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaType tags the variant of a media identifier
type MediaType string

const (
	MediaImage      MediaType = "image"
	MediaVideo      MediaType = "video"
	MediaVideoFrame MediaType = "videoFrame"
)

// MediaIdentifier identifies an image, a video or a single frame of a video
type MediaIdentifier struct {
	Type        MediaType `json:"type"`
	ImageID     string    `json:"imageId,omitempty"`
	VideoID     string    `json:"videoId,omitempty"`
	FrameNumber int       `json:"frameNumber,omitempty"`
}

func ImageIdentifier(id string) MediaIdentifier {
	return MediaIdentifier{Type: MediaImage, ImageID: id}
}

func VideoIdentifier(id string) MediaIdentifier {
	return MediaIdentifier{Type: MediaVideo, VideoID: id}
}

func VideoFrameIdentifier(videoID string, frame int) MediaIdentifier {
	return MediaIdentifier{Type: MediaVideoFrame, VideoID: videoID, FrameNumber: frame}
}

// IsVideoBacked reports whether the identifier points to a video or one of its frames
func (m MediaIdentifier) IsVideoBacked() bool {
	return m.Type == MediaVideo || m.Type == MediaVideoFrame
}

// Key is a stable string form used for storage and caching
func (m MediaIdentifier) Key() string {
	switch m.Type {
	case MediaImage:
		return fmt.Sprintf("image:%s", m.ImageID)
	case MediaVideo:
		return fmt.Sprintf("video:%s", m.VideoID)
	case MediaVideoFrame:
		return fmt.Sprintf("videoFrame:%s:%d", m.VideoID, m.FrameNumber)
	}
	return ""
}

// ParseMediaKey is the inverse of MediaIdentifier.Key
func ParseMediaKey(key string) (MediaIdentifier, error) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 2 && parts[0] == string(MediaImage) && parts[1] != "":
		return ImageIdentifier(parts[1]), nil
	case len(parts) == 2 && parts[0] == string(MediaVideo) && parts[1] != "":
		return VideoIdentifier(parts[1]), nil
	case len(parts) == 3 && parts[0] == string(MediaVideoFrame) && parts[1] != "":
		frame, err := strconv.Atoi(parts[2])
		if err != nil || frame < 0 {
			return MediaIdentifier{}, fmt.Errorf("invalid frame number in media key %q", key)
		}
		return VideoFrameIdentifier(parts[1], frame), nil
	}
	return MediaIdentifier{}, fmt.Errorf("invalid media key %q", key)
}

// MediaMetadata describes the dimensions of a media item
type MediaMetadata struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Frames      int     `json:"frames,omitempty"`
	FPS         float64 `json:"fps,omitempty"`
	FrameStride int     `json:"frameStride,omitempty"`
}

// MediaStatus is the annotation or prediction state of a media item
type MediaStatus string

const (
	StatusNone       MediaStatus = "none"
	StatusAnnotated  MediaStatus = "annotated"
	StatusPartial    MediaStatus = "partially_annotated"
	StatusInProgress MediaStatus = "in_progress"
	StatusToRevisit  MediaStatus = "to_revisit"
)

// MediaItem is an image, video or video frame together with its metadata
type MediaItem struct {
	Identifier       MediaIdentifier `json:"identifier"`
	Name             string          `json:"name"`
	Path             string          `json:"-"`
	SHA256           string          `json:"sha256,omitempty"`
	Metadata         MediaMetadata   `json:"metadata"`
	AnnotationStatus MediaStatus     `json:"annotationStatus"`
	PredictionStatus MediaStatus     `json:"predictionStatus"`
	IngestedAt       time.Time       `json:"ingestedAt"`
}

// VideoFrameOf synthesizes the frame item of a video
func VideoFrameOf(video MediaItem, frame int) MediaItem {
	item := video
	item.Identifier = VideoFrameIdentifier(video.Identifier.VideoID, frame)
	return item
}

// MediaRepository defines the interface for media storage operations
type MediaRepository interface {
	// Create creates or updates a media item record
	Create(ctx context.Context, item MediaItem) (*MediaItem, error)

	// Get retrieves a media item by its identifier key
	Get(ctx context.Context, key string) (*MediaItem, error)

	// GetByPath retrieves a media item by its relative path
	GetByPath(ctx context.Context, path string) (*MediaItem, error)

	// List retrieves all media items ordered by ingestion
	List(ctx context.Context) ([]*MediaItem, error)

	// UpdateStatus updates the annotation status of a media item
	UpdateStatus(ctx context.Context, key string, status MediaStatus) error

	// Count returns the total number of media items
	Count(ctx context.Context) (int64, error)

	// Delete removes a media item by key
	Delete(ctx context.Context, key string) error
}
