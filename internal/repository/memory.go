package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tuckbot-api/internal/models"
)

// MemoryVideoRepository keeps videos in process memory. Data is lost on restart.
type MemoryVideoRepository struct {
	mu     sync.RWMutex
	videos map[string]*models.Video
	nextID uint
	options
}

func NewMemoryVideoRepository(opts ...Option) *MemoryVideoRepository {
	return &MemoryVideoRepository{
		videos:  make(map[string]*models.Video),
		options: newOptions(opts),
	}
}

func (r *MemoryVideoRepository) FindByID(ctx context.Context, redditPostID string) (*models.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	video, exists := r.videos[redditPostID]
	if !exists {
		return nil, ErrVideoNotFound
	}
	copied := *video
	return &copied, nil
}

func (r *MemoryVideoRepository) FindAll(ctx context.Context, order Order) ([]models.Video, error) {
	videos := r.snapshot()
	sort.SliceStable(videos, func(i, j int) bool {
		if order == OrderCreatedAsc {
			return videos[i].CreatedAt.Before(videos[j].CreatedAt)
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}

func (r *MemoryVideoRepository) FindStale(ctx context.Context, now time.Time) ([]models.Video, error) {
	var stale []models.Video
	for _, video := range r.snapshot() {
		if !r.window.IsStale(&video, now) {
			continue
		}
		stale = append(stale, models.Video{
			RedditPostID: video.RedditPostID,
			CreatedAt:    video.CreatedAt,
			LastViewedAt: video.LastViewedAt,
			LastPrunedAt: video.LastPrunedAt,
		})
	}

	// Never-pruned rows sort after pruned ones on equal creation times.
	sort.SliceStable(stale, func(i, j int) bool {
		a, b := stale[i], stale[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		switch {
		case a.LastPrunedAt == nil:
			return false
		case b.LastPrunedAt == nil:
			return true
		default:
			return a.LastPrunedAt.Before(*b.LastPrunedAt)
		}
	})

	if len(stale) > StaleLimit {
		stale = stale[:StaleLimit]
	}
	return stale, nil
}

func (r *MemoryVideoRepository) Create(ctx context.Context, video *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.videos[video.RedditPostID]; exists {
		return ErrDuplicateVideo
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = r.now().UTC()
	}
	r.nextID++
	video.ID = r.nextID

	copied := *video
	r.videos[video.RedditPostID] = &copied
	return nil
}

func (r *MemoryVideoRepository) Delete(ctx context.Context, video *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.videos[video.RedditPostID]; !exists {
		return ErrVideoNotFound
	}
	delete(r.videos, video.RedditPostID)
	return nil
}

func (r *MemoryVideoRepository) Prune(ctx context.Context, video *models.Video) error {
	if err := r.pruner.Prune(ctx, video); err != nil {
		return fmt.Errorf("prune video %s: %w", video.RedditPostID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.videos[video.RedditPostID]
	if !exists {
		return ErrVideoNotFound
	}
	prunedAt := r.now().UTC()
	stored.LastPrunedAt = &prunedAt
	video.LastPrunedAt = &prunedAt
	return nil
}

func (r *MemoryVideoRepository) snapshot() []models.Video {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := make([]models.Video, 0, len(r.videos))
	for _, video := range r.videos {
		videos = append(videos, *video)
	}
	return videos
}
