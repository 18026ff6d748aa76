// Package media discovers images and videos on a filesystem and records
// them in the media repository.
package media

import (
	"crypto/sha256"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gopkg.in/yaml.v3"

	"github.com/lewtec/anotador/internal/domain"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// IsVideo reports whether name looks like a video file
func IsVideo(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

// HashFile returns the hex sha256 of a file
func HashFile(fs billy.Filesystem, filename string) (string, error) {
	f, err := fs.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// DecodeImageConfig reads the dimensions of an image without decoding it
func DecodeImageConfig(fs billy.Filesystem, filename string) (image.Config, string, error) {
	f, err := fs.Open(filename)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}

// VideoSidecar is the metadata file that sits next to a video as <video>.yaml
type VideoSidecar struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Frames      int     `yaml:"frames"`
	FPS         float64 `yaml:"fps"`
	FrameStride int     `yaml:"frame_stride"`
}

// SidecarPath returns where the metadata of a video is read from
func SidecarPath(video string) string {
	return video + ".yaml"
}

// ReadVideoSidecar loads and validates the sidecar of a video
func ReadVideoSidecar(fs billy.Filesystem, video string) (*VideoSidecar, error) {
	data, err := util.ReadFile(fs, SidecarPath(video))
	if err != nil {
		return nil, fmt.Errorf("while reading metadata of video %s: %w", video, err)
	}
	var sidecar VideoSidecar
	if err := yaml.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("while parsing metadata of video %s: %w", video, err)
	}
	if sidecar.Frames <= 0 {
		return nil, fmt.Errorf("video %s: metadata must declare a positive frame count", video)
	}
	if sidecar.FrameStride <= 0 {
		sidecar.FrameStride = 1
	}
	return &sidecar, nil
}

// WriteVideoSidecar stores the sidecar of a video
func WriteVideoSidecar(fs billy.Filesystem, video string, sidecar VideoSidecar) error {
	data, err := yaml.Marshal(sidecar)
	if err != nil {
		return err
	}
	return util.WriteFile(fs, SidecarPath(video), data, 0o644)
}

// Describe builds the media item of a file, content addressed by its sha256
func Describe(fs billy.Filesystem, filename string) (*domain.MediaItem, error) {
	hash, err := HashFile(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("while hashing %s: %w", filename, err)
	}
	item := &domain.MediaItem{
		Name:   path.Base(filename),
		Path:   filename,
		SHA256: hash,
	}

	if IsVideo(filename) {
		sidecar, err := ReadVideoSidecar(fs, filename)
		if err != nil {
			return nil, err
		}
		item.Identifier = domain.VideoIdentifier(hash)
		item.Metadata = domain.MediaMetadata{
			Width:       sidecar.Width,
			Height:      sidecar.Height,
			Frames:      sidecar.Frames,
			FPS:         sidecar.FPS,
			FrameStride: sidecar.FrameStride,
		}
		return item, nil
	}

	config, _, err := DecodeImageConfig(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("while decoding %s: %w", filename, err)
	}
	item.Identifier = domain.ImageIdentifier(hash)
	item.Metadata = domain.MediaMetadata{Width: config.Width, Height: config.Height}
	return item, nil
}
