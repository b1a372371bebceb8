package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tuckbot-api/internal/models"
)

// Filesystem deletes mirror files named after the Reddit post id from a
// local video directory. "<id>" and "<id>.<ext>" both match.
type Filesystem struct {
	videoDir string
	logger   *slog.Logger
}

func NewFilesystem(videoDir string, logger *slog.Logger) *Filesystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filesystem{videoDir: videoDir, logger: logger}
}

func (f *Filesystem) Prune(ctx context.Context, video *models.Video) error {
	id := video.RedditPostID
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid reddit post id %q", id)
	}

	entries, err := os.ReadDir(f.videoDir)
	if os.IsNotExist(err) {
		f.logger.Warn("video directory does not exist", "dir", f.videoDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read video directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || !(name == id || strings.HasPrefix(name, id+".")) {
			continue
		}
		path := filepath.Join(f.videoDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}

	f.logger.Info("pruned mirror files", "reddit_post_id", id, "removed", removed)
	return nil
}
