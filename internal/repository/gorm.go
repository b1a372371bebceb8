package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuckbot-api/internal/models"

	"gorm.io/gorm"
)

// GormVideoRepository keeps videos in a relational database through GORM.
type GormVideoRepository struct {
	db *gorm.DB
	options
}

func NewGormVideoRepository(db *gorm.DB, opts ...Option) *GormVideoRepository {
	return &GormVideoRepository{db: db, options: newOptions(opts)}
}

func (r *GormVideoRepository) FindByID(ctx context.Context, redditPostID string) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).Where("reddit_post_id = ?", redditPostID).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video %s: %w", redditPostID, err)
	}
	return &video, nil
}

func (r *GormVideoRepository) FindAll(ctx context.Context, order Order) ([]models.Video, error) {
	orderClause := "created_at DESC"
	if order == OrderCreatedAsc {
		orderClause = "created_at ASC"
	}

	var videos []models.Video
	if err := r.db.WithContext(ctx).Order(orderClause).Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (r *GormVideoRepository) FindStale(ctx context.Context, now time.Time) ([]models.Video, error) {
	minimumAge, repruneAge := r.window.Thresholds(now)

	var videos []models.Video
	err := r.db.WithContext(ctx).
		Select("reddit_post_id", "created_at", "last_viewed_at", "last_pruned_at").
		Where("created_at < ?", minimumAge).
		Where("last_pruned_at IS NULL OR last_pruned_at < ?", repruneAge).
		Order("created_at ASC").
		Order("last_pruned_at ASC").
		Offset(0).
		Limit(StaleLimit).
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("list stale videos: %w", err)
	}
	return videos, nil
}

func (r *GormVideoRepository) Create(ctx context.Context, video *models.Video) error {
	if video.CreatedAt.IsZero() {
		video.CreatedAt = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateVideo
		}
		return fmt.Errorf("create video %s: %w", video.RedditPostID, err)
	}
	return nil
}

func (r *GormVideoRepository) Delete(ctx context.Context, video *models.Video) error {
	result := r.db.WithContext(ctx).
		Where("reddit_post_id = ?", video.RedditPostID).
		Delete(&models.Video{})
	if result.Error != nil {
		return fmt.Errorf("delete video %s: %w", video.RedditPostID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *GormVideoRepository) Prune(ctx context.Context, video *models.Video) error {
	if err := r.pruner.Prune(ctx, video); err != nil {
		return fmt.Errorf("prune video %s: %w", video.RedditPostID, err)
	}

	prunedAt := r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("reddit_post_id = ?", video.RedditPostID).
		Update("last_pruned_at", prunedAt)
	if result.Error != nil {
		return fmt.Errorf("stamp prune time for %s: %w", video.RedditPostID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	video.LastPrunedAt = &prunedAt
	return nil
}

// isDuplicateKey matches translated GORM errors and, for dialects without a
// translator, the raw driver messages.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Duplicate entry")
}
