package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lewtec/anotador/internal/domain"
)

const mediaColumns = `media_key, media_type, path, name, sha256, width, height, frames, fps, frame_stride,
  annotation_status, prediction_status, ingested_at`

// MediaRepository implements domain.MediaRepository on sqlite
type MediaRepository struct {
	db DBTX
}

// NewMediaRepository creates a new MediaRepository
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// NewMediaRepositoryWithTx creates a new MediaRepository with a transaction
func NewMediaRepositoryWithTx(tx *sql.Tx) *MediaRepository {
	return &MediaRepository{db: tx}
}

// Create inserts a media item, refreshing its metadata when the key exists
func (r *MediaRepository) Create(ctx context.Context, item domain.MediaItem) (*domain.MediaItem, error) {
	if item.AnnotationStatus == "" {
		item.AnnotationStatus = domain.StatusNone
	}
	if item.PredictionStatus == "" {
		item.PredictionStatus = domain.StatusNone
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO media_items (media_key, media_type, path, name, sha256, width, height, frames, fps, frame_stride,
  annotation_status, prediction_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(media_key) DO UPDATE SET
  path = excluded.path,
  name = excluded.name,
  sha256 = excluded.sha256,
  width = excluded.width,
  height = excluded.height,
  frames = excluded.frames,
  fps = excluded.fps,
  frame_stride = excluded.frame_stride
RETURNING `+mediaColumns,
		item.Identifier.Key(), string(item.Identifier.Type), item.Path, item.Name, item.SHA256,
		item.Metadata.Width, item.Metadata.Height, item.Metadata.Frames, item.Metadata.FPS, item.Metadata.FrameStride,
		string(item.AnnotationStatus), string(item.PredictionStatus),
	)
	return scanMediaItem(row)
}

// Get retrieves a media item by its identifier key
func (r *MediaRepository) Get(ctx context.Context, key string) (*domain.MediaItem, error) {
	item, err := scanMediaItem(r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE media_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// GetByPath retrieves a media item by its relative path
func (r *MediaRepository) GetByPath(ctx context.Context, path string) (*domain.MediaItem, error) {
	item, err := scanMediaItem(r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// List retrieves all media items in ingestion order
func (r *MediaRepository) List(ctx context.Context) ([]*domain.MediaItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+mediaColumns+` FROM media_items ORDER BY ingested_at, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// UpdateStatus updates the annotation status of a media item
func (r *MediaRepository) UpdateStatus(ctx context.Context, key string, status domain.MediaStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE media_items SET annotation_status = ? WHERE media_key = ?`, string(status), key)
	return err
}

// Count returns the total number of media items
func (r *MediaRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items`).Scan(&count)
	return count, err
}

// Delete removes a media item by key
func (r *MediaRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM media_items WHERE media_key = ?`, key)
	return err
}

func scanMediaItem(row scanner) (*domain.MediaItem, error) {
	var (
		key, mediaType             string
		annotationStatus, predStat string
		item                       domain.MediaItem
		ingestedAt                 timestamp
	)
	err := row.Scan(&key, &mediaType, &item.Path, &item.Name, &item.SHA256,
		&item.Metadata.Width, &item.Metadata.Height, &item.Metadata.Frames, &item.Metadata.FPS, &item.Metadata.FrameStride,
		&annotationStatus, &predStat, &ingestedAt)
	if err != nil {
		return nil, err
	}
	identifier, err := domain.ParseMediaKey(key)
	if err != nil {
		return nil, err
	}
	item.Identifier = identifier
	item.AnnotationStatus = domain.MediaStatus(annotationStatus)
	item.PredictionStatus = domain.MediaStatus(predStat)
	item.IngestedAt = ingestedAt.Time
	return &item, nil
}

// Verify that MediaRepository implements domain.MediaRepository
var _ domain.MediaRepository = (*MediaRepository)(nil)
