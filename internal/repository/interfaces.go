package repository

import (
	"context"

	"spritenest-api/internal/model"
)

// AssetRepository defines asset metadata access. Assets are insert-only.
type AssetRepository interface {
	// Create inserts one asset row. The stored row (including the generated
	// id and timestamp) is written back into a.
	Create(ctx context.Context, a *model.Asset) error

	// GetByID returns the asset or nil when no row matches.
	GetByID(ctx context.Context, id string) (*model.Asset, error)

	// List returns all assets matching the filter, newest first. The public
	// listing is not paginated.
	List(ctx context.Context, filter model.AssetFilter) ([]model.Asset, error)

	// Stats returns statistics about the asset table.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}

// DownloadRepository defines access to the append-only download log.
type DownloadRepository interface {
	// Log appends exactly one event row.
	Log(ctx context.Context, e *model.DownloadEvent) error

	// BatchLog appends multiple events in one transaction. Used by the
	// write-behind buffer flush.
	BatchLog(ctx context.Context, events []model.DownloadEvent) error

	// ListByAsset returns events for one asset (or all assets when assetID is
	// empty), newest first, with the total count.
	ListByAsset(ctx context.Context, assetID string, limit, offset int) ([]model.DownloadEvent, int64, error)

	// CountByAsset returns the number of events for one asset.
	CountByAsset(ctx context.Context, assetID string) (int64, error)

	// Close closes the repository connection.
	Close() error
}
