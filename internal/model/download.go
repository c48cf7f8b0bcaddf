package model

import "time"

// DownloadEvent is one row of the append-only download log. UserID is nil for
// anonymous downloads. Events are never mutated or deleted.
type DownloadEvent struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	UserID    *string   `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BufferedDownload is a download event pending in the Redis write-behind
// buffer, keyed by event ID.
type BufferedDownload struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	UserID    *string   `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Event converts a buffered entry back to a log row.
func (b *BufferedDownload) Event() DownloadEvent {
	return DownloadEvent{
		ID:        b.ID,
		AssetID:   b.AssetID,
		UserID:    b.UserID,
		CreatedAt: b.CreatedAt,
	}
}
