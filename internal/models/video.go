package models

import "time"

// Video defines the structure for mirrored video records.
type Video struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	RedditPostID    string     `json:"redditPostId" gorm:"uniqueIndex;size:64;not null"`
	RedditPostTitle string     `json:"redditPostTitle" gorm:"not null"`
	MirrorURL       string     `json:"mirrorUrl" gorm:"not null"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"index"`
	LastViewedAt    *time.Time `json:"lastViewedAt"`
	LastPrunedAt    *time.Time `json:"lastPrunedAt" gorm:"index"` // nil until the first prune
}

// TableName overrides the table name
func (Video) TableName() string {
	return "videos"
}
