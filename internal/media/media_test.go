package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/anotador/internal/domain"
	"github.com/lewtec/anotador/internal/repository"
)

func writePNG(t *testing.T, fs billy.Filesystem, filename string, width, height int, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	img.SetGray(0, 0, color.Gray{Y: shade})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, util.WriteFile(fs, filename, buf.Bytes(), 0o644))
}

func TestDescribeImage(t *testing.T) {
	t.Parallel()

	fs := memfs.New()
	writePNG(t, fs, "cats/a.png", 32, 16, 1)

	item, err := Describe(fs, "cats/a.png")
	require.NoError(t, err)
	assert.Equal(t, domain.MediaImage, item.Identifier.Type)
	assert.Equal(t, item.SHA256, item.Identifier.ImageID)
	assert.Len(t, item.SHA256, 64)
	assert.Equal(t, "a.png", item.Name)
	assert.Equal(t, domain.MediaMetadata{Width: 32, Height: 16}, item.Metadata)
}

func TestDescribeVideo(t *testing.T) {
	t.Parallel()

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "clip.mp4", []byte("not really a video"), 0o644))

	_, err := Describe(fs, "clip.mp4")
	require.Error(t, err, "videos need a sidecar")

	require.NoError(t, WriteVideoSidecar(fs, "clip.mp4", VideoSidecar{Width: 1280, Height: 720, Frames: 90, FPS: 30}))
	item, err := Describe(fs, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoIdentifier(item.SHA256), item.Identifier)
	assert.Equal(t, 90, item.Metadata.Frames)
	assert.Equal(t, 1, item.Metadata.FrameStride)
}

func TestReadVideoSidecarRejectsMissingFrames(t *testing.T) {
	t.Parallel()

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, SidecarPath("clip.mp4"), []byte("width: 10\n"), 0o644))
	_, err := ReadVideoSidecar(fs, "clip.mp4")
	assert.ErrorContains(t, err, "frame count")
}

func TestIngest(t *testing.T) {
	t.Parallel()

	db := repository.SetupTestDB(t)
	defer repository.CleanupTestDB(t, db)
	repo := repository.NewMediaRepository(db)
	ctx := context.Background()

	fs := memfs.New()
	writePNG(t, fs, "cats/a.png", 8, 8, 1)
	writePNG(t, fs, "cats/b.png", 8, 8, 2)
	require.NoError(t, util.WriteFile(fs, "clip.mp4", []byte("frames"), 0o644))
	require.NoError(t, WriteVideoSidecar(fs, "clip.mp4", VideoSidecar{Frames: 10}))
	require.NoError(t, util.WriteFile(fs, "notes.txt", []byte("hello"), 0o644))
	require.NoError(t, util.WriteFile(fs, "broken.jpg", []byte("not an image"), 0o644))

	ingester := NewIngester(fs, repo, 2)
	report, err := ingester.Ingest(ctx, "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.jpg")
	assert.Equal(t, 2, report.Images)
	assert.Equal(t, 1, report.Videos)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Skipped, "the text file and the sidecar")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	item, err := repo.GetByPath(ctx, "cats/a.png")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 8, item.Metadata.Width)

	require.NoError(t, fs.Remove("broken.jpg"))
	report, err = ingester.Ingest(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Unchanged)
	assert.Zero(t, report.Images)
}
