// Package repository stores mirrored video records.
package repository

import (
	"context"
	"errors"
	"time"

	"tuckbot-api/internal/models"
)

var (
	ErrVideoNotFound  = errors.New("video not found")
	ErrDuplicateVideo = errors.New("video already exists")
)

// StaleLimit caps the number of rows returned by FindStale.
const StaleLimit = 10

// Order selects the sort applied by FindAll.
type Order int

const (
	OrderCreatedDesc Order = iota
	OrderCreatedAsc
)

// VideoRepository is the record store used by the HTTP handlers.
type VideoRepository interface {
	// FindByID returns ErrVideoNotFound when no row has the id.
	FindByID(ctx context.Context, redditPostID string) (*models.Video, error)
	FindAll(ctx context.Context, order Order) ([]models.Video, error)
	// FindStale returns at most StaleLimit videos due for pruning at now,
	// oldest first. Only RedditPostID, CreatedAt, LastViewedAt and
	// LastPrunedAt are populated.
	FindStale(ctx context.Context, now time.Time) ([]models.Video, error)
	// Create returns ErrDuplicateVideo when the id is already stored.
	Create(ctx context.Context, video *models.Video) error
	Delete(ctx context.Context, video *models.Video) error
	// Prune runs the configured Pruner and stamps LastPrunedAt.
	Prune(ctx context.Context, video *models.Video) error
}

// Pruner removes or reduces the stored copy of a mirrored video.
type Pruner interface {
	Prune(ctx context.Context, video *models.Video) error
}

type noopPruner struct{}

func (noopPruner) Prune(context.Context, *models.Video) error { return nil }

// StaleWindow holds the ages, in calendar days, after which a video becomes
// eligible for its first prune and for a repeat prune.
type StaleWindow struct {
	MinimumAgeDays int
	RepruneAgeDays int
}

var DefaultStaleWindow = StaleWindow{MinimumAgeDays: 1, RepruneAgeDays: 30}

// Thresholds returns the creation cutoff and the last-prune cutoff for now.
// Days are subtracted from the day of the month and normalized by the
// calendar, so crossing a month boundary lands on the matching earlier date.
func (w StaleWindow) Thresholds(now time.Time) (minimumAge, repruneAge time.Time) {
	now = now.UTC()
	minimumAge = time.Date(now.Year(), now.Month(), now.Day()-w.MinimumAgeDays,
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
	repruneAge = time.Date(now.Year(), now.Month(), now.Day()-w.RepruneAgeDays,
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
	return minimumAge, repruneAge
}

// IsStale reports whether video would be selected by FindStale at now.
func (w StaleWindow) IsStale(video *models.Video, now time.Time) bool {
	minimumAge, repruneAge := w.Thresholds(now)
	if !video.CreatedAt.Before(minimumAge) {
		return false
	}
	return video.LastPrunedAt == nil || video.LastPrunedAt.Before(repruneAge)
}

// Option configures a repository.
type Option func(*options)

type options struct {
	pruner Pruner
	now    func() time.Time
	window StaleWindow
}

func WithPruner(p Pruner) Option {
	return func(o *options) {
		if p != nil {
			o.pruner = p
		}
	}
}

// WithClock replaces time.Now for creation and prune timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithStaleWindow(w StaleWindow) Option {
	return func(o *options) {
		o.window = w
	}
}

func newOptions(opts []Option) options {
	o := options{
		pruner: noopPruner{},
		now:    time.Now,
		window: DefaultStaleWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
