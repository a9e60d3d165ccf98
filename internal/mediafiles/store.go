// Package mediafiles persists the MediaFile rows spec.md §3 describes: one
// row per concrete file on disk belonging to an item, tagged with a Role
// (Source/Universal/Extra) and a Profile (A/B/C). It is the lookup the HLS
// cache populator and segment server use to turn a media_file_id path
// parameter into a file path on disk, grounded on the same gorm-over-shared-
// connection shape as queue.Store and rules.Store.
package mediafiles

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/database"
	"gorm.io/gorm"
)

// Store is the gorm-backed persistence layer for database.MediaFile rows.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert records a file's output of an action run. An item has at most one
// Universal MediaFile (spec.md §3 invariant); when role is Universal, any
// existing Universal row for itemID is replaced rather than duplicated.
func (s *Store) Upsert(itemID string, role database.MediaFileRole, profile database.MediaProfile, path string, size int64) (*database.MediaFile, error) {
	if role == database.MediaFileRoleUniversal {
		if err := s.db.Where("item_id = ? AND role = ?", itemID, database.MediaFileRoleUniversal).
			Delete(&database.MediaFile{}).Error; err != nil {
			return nil, apperrors.Internal("delete prior universal media file", err)
		}
	}

	mf := &database.MediaFile{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Role:      role,
		Profile:   profile,
		Path:      path,
		SizeBytes: size,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.Create(mf).Error; err != nil {
		return nil, apperrors.Internal("create media file", err)
	}
	return mf, nil
}

// Get fetches a MediaFile by id, returning apperrors.NotFound when absent —
// the error the stream handler and HLS cache populator surface as HTTP 404.
func (s *Store) Get(id string) (*database.MediaFile, error) {
	var mf database.MediaFile
	err := s.db.First(&mf, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("media_file", id)
	}
	if err != nil {
		return nil, apperrors.Internal("get media file", err)
	}
	return &mf, nil
}

// ByItem lists every MediaFile belonging to an item, source first.
func (s *Store) ByItem(itemID string) ([]database.MediaFile, error) {
	var files []database.MediaFile
	if err := s.db.Where("item_id = ?", itemID).
		Order("CASE role WHEN 'source' THEN 0 WHEN 'universal' THEN 1 ELSE 2 END, created_at asc").
		Find(&files).Error; err != nil {
		return nil, apperrors.Internal("list media files", err)
	}
	return files, nil
}
