package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Soundy/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackRepository defines the interface for track metadata operations. Media files live in the
// media store under the track id.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	GetTracksByAuthor(ctx context.Context, authorID string) ([]model.Track, error)
	ListTracks(ctx context.Context) ([]model.Track, error)
}

// gormTrackRepository implements TrackRepository for MySQL through GORM.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a TrackRepository backed by gdb. The tracks table is migrated by
// the caller.
func NewGormTrackRepository(gdb *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: gdb}
}

// CreateTrack assigns an id when the track has none and inserts it.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to create track %s: %w", track.Title, err)
	}
	return nil
}

func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track by ID %s: %w", id, err)
	}
	return &track, nil
}

func (r *gormTrackRepository) GetTracksByAuthor(ctx context.Context, authorID string) ([]model.Track, error) {
	var tracks []model.Track
	err := r.db.WithContext(ctx).Where("author_id = ?", authorID).Order("created_at DESC").Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tracks of author %s: %w", authorID, err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) ListTracks(ctx context.Context) ([]model.Track, error) {
	var tracks []model.Track
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// memoryTrackRepository keeps tracks in process memory.
type memoryTrackRepository struct {
	mu     sync.RWMutex
	tracks map[string]model.Track
}

func NewMemoryTrackRepository() TrackRepository {
	return &memoryTrackRepository{tracks: make(map[string]model.Track)}
}

func (r *memoryTrackRepository) CreateTrack(_ context.Context, track *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if _, ok := r.tracks[track.ID]; ok {
		return fmt.Errorf("track %s already exists", track.ID)
	}
	track.CreatedAt = time.Now()
	r.tracks[track.ID] = *track
	return nil
}

func (r *memoryTrackRepository) GetTrackByID(_ context.Context, id string) (*model.Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	track, ok := r.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &track, nil
}

func (r *memoryTrackRepository) GetTracksByAuthor(_ context.Context, authorID string) ([]model.Track, error) {
	return r.list(func(t model.Track) bool { return t.AuthorID == authorID }), nil
}

func (r *memoryTrackRepository) ListTracks(context.Context) ([]model.Track, error) {
	return r.list(func(model.Track) bool { return true }), nil
}

// list returns the matching tracks, newest first.
func (r *memoryTrackRepository) list(match func(model.Track) bool) []model.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracks := []model.Track{}
	for _, t := range r.tracks {
		if match(t) {
			tracks = append(tracks, t)
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].CreatedAt.After(tracks[j].CreatedAt) })
	return tracks
}
