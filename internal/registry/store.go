package registry

import (
	"context"

	"github.com/starford/attune/internal/models"
)

// Store persists full registry snapshots. Save must replace the previous
// snapshot atomically: after a crash either the old or the new one is visible.
type Store interface {
	// Load returns every stored target in registration order.
	Load(ctx context.Context) ([]models.Target, error)
	// Save replaces the stored snapshot with targets.
	Save(ctx context.Context, targets []models.Target) error
	// Close releases underlying resources.
	Close() error
}

// Verify implementations satisfy Store at compile time.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
