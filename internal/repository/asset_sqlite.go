package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"spritenest-api/internal/model"
	"spritenest-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteRepository implements AssetRepository and DownloadRepository using
// SQLite. Thread-safe with WAL mode for high-concurrency reads.
type SQLiteRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteRepository creates a new SQLite repository.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteRepository] Initialized with database: %s", dbPath)
	return &SQLiteRepository{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		engine TEXT,
		license TEXT,
		price REAL NOT NULL DEFAULT 0,
		file_url TEXT NOT NULL,
		thumbnail_url TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assets_category ON assets(category);
	CREATE INDEX IF NOT EXISTS idx_assets_engine ON assets(engine);
	CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);

	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		user_id TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_downloads_asset ON downloads(asset_id);
	`
	_, err := db.Exec(query)
	return err
}

// Create inserts one asset row.
func (r *SQLiteRepository) Create(ctx context.Context, a *model.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

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
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
func (r *SQLiteRepository) List(ctx context.Context, filter model.AssetFilter) ([]model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query, args := buildAssetListQuery(filter, "?")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// Log appends exactly one download event row.
func (r *SQLiteRepository) Log(ctx context.Context, e *model.DownloadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fillEvent(e)

	query := `INSERT INTO downloads (id, asset_id, user_id, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.AssetID, e.UserID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log download: %w", err)
	}
	return nil
}

// BatchLog appends multiple events in one transaction.
func (r *SQLiteRepository) BatchLog(ctx context.Context, events []model.DownloadEvent) error {
	if len(events) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

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
func (r *SQLiteRepository) ListByAsset(ctx context.Context, assetID string, limit, offset int) ([]model.DownloadEvent, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
func (r *SQLiteRepository) CountByAsset(ctx context.Context, assetID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads WHERE asset_id = ?", assetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return count, nil
}

// Stats returns statistics about the asset and download tables.
func (r *SQLiteRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// buildAssetListQuery builds the filtered SELECT shared by the SQL backends.
// placeholder is "?" for sqlite/mysql; postgres rewrites to $n positions.
func buildAssetListQuery(filter model.AssetFilter, placeholder string) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, title, description, category, engine, license, price, file_url, thumbnail_url, created_at FROM assets`)

	var conds []string
	var args []interface{}

	next := func() string {
		if placeholder == "?" {
			return "?"
		}
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, "category = "+next())
	}
	if filter.Engine != "" {
		args = append(args, filter.Engine)
		conds = append(conds, "engine = "+next())
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conds = append(conds, "LOWER(title) LIKE "+next())
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*model.Asset, error) {
	var a model.Asset
	var engine, license sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.Description, &a.Category,
		&engine, &license, &a.Price, &a.FileURL, &a.ThumbnailURL, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Engine = engine.String
	a.License = license.String
	return &a, nil
}

func collectAssets(rows *sql.Rows) ([]model.Asset, error) {
	assets := []model.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func collectEvents(rows *sql.Rows) ([]model.DownloadEvent, error) {
	events := []model.DownloadEvent{}
	for rows.Next() {
		var e model.DownloadEvent
		if err := rows.Scan(&e.ID, &e.AssetID, &e.UserID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func fillEvent(e *model.DownloadEvent) {
	if e.ID == "" {
		e.ID = uid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteRepository implements both interfaces
var (
	_ AssetRepository    = (*SQLiteRepository)(nil)
	_ DownloadRepository = (*SQLiteRepository)(nil)
)
