package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"spritenest-api/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLRepository implements AssetRepository and DownloadRepository using
// MySQL.
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository creates a new MySQL repository.
// dsn format: "user:password@tcp(host:port)/dbname?parseTime=true"
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MySQLRepository] Initialized")
	return &MySQLRepository{db: db}, nil
}

func createMySQLTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			category VARCHAR(32) NOT NULL,
			engine VARCHAR(32),
			license VARCHAR(32),
			price DOUBLE NOT NULL DEFAULT 0,
			file_url TEXT NOT NULL,
			thumbnail_url TEXT,
			created_at DATETIME NOT NULL,
			INDEX idx_assets_category (category),
			INDEX idx_assets_engine (engine),
			INDEX idx_assets_created_at (created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			id VARCHAR(36) PRIMARY KEY,
			asset_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(36),
			created_at DATETIME NOT NULL,
			INDEX idx_downloads_asset (asset_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts one asset row.
func (r *MySQLRepository) Create(ctx context.Context, a *model.Asset) error {
	fillAsset(a)

	query := `
		INSERT INTO assets (id, user_id, title, description, category, engine, license, price, file_url, thumbnail_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.Title, a.Description, a.Category,
		nullString(a.Engine), nullString(a.License), a.Price,
		a.FileURL, a.ThumbnailURL, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// GetByID returns the asset or nil when no row matches.
func (r *MySQLRepository) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	query := `SELECT id, user_id, title, description, category, engine, license, price, file_url, thumbnail_url, created_at
		FROM assets WHERE id = ?`

	a, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// List returns all assets matching the filter, newest first.
func (r *MySQLRepository) List(ctx context.Context, filter model.AssetFilter) ([]model.Asset, error) {
	query, args := buildAssetListQuery(filter, "?")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// Log appends exactly one download event row.
func (r *MySQLRepository) Log(ctx context.Context, e *model.DownloadEvent) error {
	fillEvent(e)

	query := `INSERT INTO downloads (id, asset_id, user_id, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.AssetID, e.UserID, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to log download: %w", err)
	}
	return nil
}

// BatchLog appends multiple events in one transaction.
func (r *MySQLRepository) BatchLog(ctx context.Context, events []model.DownloadEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO downloads (id, asset_id, user_id, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		fillEvent(&events[i])
		if _, err := stmt.ExecContext(ctx, events[i].ID, events[i].AssetID, events[i].UserID, events[i].CreatedAt); err != nil {
			return fmt.Errorf("failed to batch log download %s: %w", events[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByAsset returns download events, newest first, with the total count.
func (r *MySQLRepository) ListByAsset(ctx context.Context, assetID string, limit, offset int) ([]model.DownloadEvent, int64, error) {
	where := ""
	args := []interface{}{}
	if assetID != "" {
		where = " WHERE asset_id = ?"
		args = append(args, assetID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count downloads: %w", err)
	}

	query := "SELECT id, asset_id, user_id, created_at FROM downloads" + where +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// CountByAsset returns the number of download events for one asset.
func (r *MySQLRepository) CountByAsset(ctx context.Context, assetID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads WHERE asset_id = ?", assetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return count, nil
}

// Stats returns statistics about the asset and download tables.
func (r *MySQLRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var assets, downloads int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&assets); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads").Scan(&downloads); err != nil {
		return nil, err
	}
	stats["total_assets"] = assets
	stats["total_downloads"] = downloads

	var lastUpload sql.NullTime
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM assets").Scan(&lastUpload); err == nil && lastUpload.Valid {
		stats["last_upload"] = lastUpload.Time
	}

	return stats, nil
}

// Close closes the database connection.
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

var (
	_ AssetRepository    = (*MySQLRepository)(nil)
	_ DownloadRepository = (*MySQLRepository)(nil)
)
