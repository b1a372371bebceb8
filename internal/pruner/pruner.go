// Package pruner removes the stored copy of a mirrored video while its
// database record is kept.
package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/models"
)

// Pruner matches repository.Pruner.
type Pruner interface {
	Prune(ctx context.Context, video *models.Video) error
}

// Noop leaves the mirror alone; only the record's prune time changes.
type Noop struct{}

func (Noop) Prune(context.Context, *models.Video) error { return nil }

// New builds the pruner selected by cfg.
func New(cfg config.PrunerConfig, logger *slog.Logger) (Pruner, error) {
	switch cfg.Type {
	case config.PrunerNone, "":
		return Noop{}, nil
	case config.PrunerFilesystem:
		return NewFilesystem(cfg.VideoDir, logger), nil
	case config.PrunerHTTP:
		client := &http.Client{Timeout: cfg.Timeout.Duration}
		return NewHTTP(cfg.URL, client), nil
	default:
		return nil, fmt.Errorf("unknown pruner type %q", cfg.Type)
	}
}
