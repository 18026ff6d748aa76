package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lewtec/anotador/internal/domain"
)

// SceneRepository implements domain.SceneRepository on sqlite. Annotations
// are stored as a JSON document per media item and user.
type SceneRepository struct {
	db DBTX
}

// NewSceneRepository creates a new SceneRepository
func NewSceneRepository(db *sql.DB) *SceneRepository {
	return &SceneRepository{db: db}
}

// NewSceneRepositoryWithTx creates a new SceneRepository with a transaction
func NewSceneRepositoryWithTx(tx *sql.Tx) *SceneRepository {
	return &SceneRepository{db: tx}
}

// Save creates or replaces the scene of a media item for a user (upsert).
// Selection, hover and the other UI flags are not persisted.
func (r *SceneRepository) Save(ctx context.Context, mediaKey string, username string, annotations []domain.Annotation) (*domain.SavedScene, error) {
	persisted := make([]domain.Annotation, len(annotations))
	for i, annotation := range annotations {
		persisted[i] = annotation.Persistable()
	}
	data, err := json.Marshal(persisted)
	if err != nil {
		return nil, fmt.Errorf("while encoding annotations of %s: %w", mediaKey, err)
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO scenes (media_key, username, annotations)
VALUES (?, ?, ?)
ON CONFLICT(media_key, username) DO UPDATE SET
  annotations = excluded.annotations,
  saved_at = CURRENT_TIMESTAMP
RETURNING id, media_key, username, annotations, saved_at`, mediaKey, username, string(data))
	return scanScene(row)
}

// Get retrieves the scene of a media item for a user
func (r *SceneRepository) Get(ctx context.Context, mediaKey string, username string) (*domain.SavedScene, error) {
	scene, err := scanScene(r.db.QueryRowContext(ctx, `
SELECT id, media_key, username, annotations, saved_at FROM scenes
WHERE media_key = ? AND username = ?`, mediaKey, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return scene, err
}

// GetForMedia retrieves every user's scene of a media item
func (r *SceneRepository) GetForMedia(ctx context.Context, mediaKey string) ([]*domain.SavedScene, error) {
	return r.list(ctx, `
SELECT id, media_key, username, annotations, saved_at FROM scenes
WHERE media_key = ? ORDER BY username`, mediaKey)
}

// ListByUser retrieves scenes saved by a user, most recent first (paginated)
func (r *SceneRepository) ListByUser(ctx context.Context, username string, limit, offset int) ([]*domain.SavedScene, error) {
	return r.list(ctx, `
SELECT id, media_key, username, annotations, saved_at FROM scenes
WHERE username = ? ORDER BY saved_at DESC, id DESC LIMIT ? OFFSET ?`, username, limit, offset)
}

// Delete removes a scene by ID
func (r *SceneRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, id)
	return err
}

// DeleteForMedia removes all scenes of a media item
func (r *SceneRepository) DeleteForMedia(ctx context.Context, mediaKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scenes WHERE media_key = ?`, mediaKey)
	return err
}

// GetStats returns overall annotation statistics
func (r *SceneRepository) GetStats(ctx context.Context) (*domain.SceneStats, error) {
	var stats domain.SceneStats
	err := r.db.QueryRowContext(ctx, `
SELECT
  COUNT(DISTINCT media_key),
  COALESCE(SUM(json_array_length(annotations)), 0),
  COUNT(DISTINCT username)
FROM scenes`).Scan(&stats.AnnotatedMedia, &stats.TotalAnnotations, &stats.TotalUsers)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *SceneRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.SavedScene, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.SavedScene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, scene)
	}
	return result, rows.Err()
}

func scanScene(row scanner) (*domain.SavedScene, error) {
	var (
		scene   domain.SavedScene
		data    string
		savedAt timestamp
	)
	if err := row.Scan(&scene.ID, &scene.MediaKey, &scene.Username, &data, &savedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &scene.Annotations); err != nil {
		return nil, fmt.Errorf("while decoding annotations of %s: %w", scene.MediaKey, err)
	}
	scene.SavedAt = savedAt.Time
	return &scene, nil
}

// Verify that SceneRepository implements domain.SceneRepository
var _ domain.SceneRepository = (*SceneRepository)(nil)
