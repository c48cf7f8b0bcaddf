package repository

import (
	"context"
	"testing"
	"time"

	"spritenest-api/internal/model"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createTestAsset(t *testing.T, repo *SQLiteRepository, userID, title, category, engine string) *model.Asset {
	t.Helper()
	a := &model.Asset{
		UserID:   userID,
		Title:    title,
		Category: category,
		Engine:   engine,
		License:  model.LicenseCC0,
		FileURL:  "http://localhost:8080/files/public/" + userID + "/" + title + ".glb",
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("Create(%s): %v", title, err)
	}
	return a
}

func TestCreateFillsIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)

	a := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)
	if a.ID == "" {
		t.Error("Create did not assign an ID")
	}
	if a.CreatedAt.IsZero() {
		t.Error("Create did not assign a timestamp")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	a, err := repo.GetByID(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a != nil {
		t.Errorf("GetByID returned %+v for a missing row, want nil", a)
	}
}

func TestGetByIDRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	created := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)

	got, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil for an existing row")
	}
	if got.Title != "Knight" || got.Category != model.Category3D || got.Engine != model.EngineUnity {
		t.Errorf("GetByID returned %+v", got)
	}
	if got.ThumbnailURL != nil {
		t.Errorf("ThumbnailURL = %v, want nil", *got.ThumbnailURL)
	}
}

func TestListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	createTestAsset(t, repo, "U1", "Knight Model", model.Category3D, model.EngineUnity)
	createTestAsset(t, repo, "U1", "Run Cycle", model.CategoryAnimation, model.EngineUnreal)
	createTestAsset(t, repo, "U2", "Sword Clash", model.CategoryAudio, model.EngineOther)

	tests := []struct {
		name   string
		filter model.AssetFilter
		want   int
	}{
		{"no filter", model.AssetFilter{}, 3},
		{"category 3D", model.AssetFilter{Category: "3D"}, 1},
		{"category audio", model.AssetFilter{Category: "audio"}, 1},
		{"engine Unreal", model.AssetFilter{Engine: "Unreal"}, 1},
		{"search partial", model.AssetFilter{Search: "knight"}, 1},
		{"search no match", model.AssetFilter{Search: "zzz"}, 0},
		{"category and engine", model.AssetFilter{Category: "3D", Engine: "Unreal"}, 0},
		{"unknown category", model.AssetFilter{Category: "textures"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(assets) != tt.want {
				t.Errorf("List(%+v) returned %d assets, want %d", tt.filter, len(assets), tt.want)
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	first := &model.Asset{UserID: "U1", Title: "First", Category: model.Category3D, FileURL: "f", CreatedAt: base}
	second := &model.Asset{UserID: "U1", Title: "Second", Category: model.Category3D, FileURL: "s", CreatedAt: base.Add(time.Hour)}
	for _, a := range []*model.Asset{first, second} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create(%s): %v", a.Title, err)
		}
	}

	assets, err := repo.List(ctx, model.AssetFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("List returned %d assets, want 2", len(assets))
	}
	if assets[0].ID != second.ID || assets[1].ID != first.ID {
		t.Errorf("List order = [%s %s], want newest first", assets[0].Title, assets[1].Title)
	}
}

func TestCreateThenListIncludesRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := createTestAsset(t, repo, "U1", "Hero", model.Category3D, model.EngineUnity)

	assets, err := repo.List(ctx, model.AssetFilter{Category: model.Category3D})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	found := false
	for _, a := range assets {
		if a.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Error("List after Create does not include the new asset")
	}
}

func TestLogWritesExactlyOneRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	asset := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)

	userID := "U2"
	if err := repo.Log(ctx, &model.DownloadEvent{AssetID: asset.ID, UserID: &userID}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	count, err := repo.CountByAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("CountByAsset: %v", err)
	}
	if count != 1 {
		t.Errorf("CountByAsset = %d, want 1", count)
	}
}

func TestLogAnonymous(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	asset := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)

	if err := repo.Log(ctx, &model.DownloadEvent{AssetID: asset.ID}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	events, total, err := repo.ListByAsset(ctx, asset.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByAsset: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("ListByAsset returned %d events (total %d), want 1", len(events), total)
	}
	if events[0].UserID != nil {
		t.Errorf("anonymous event has UserID %v, want nil", *events[0].UserID)
	}
}

func TestBatchLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	asset := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)

	events := []model.DownloadEvent{
		{AssetID: asset.ID},
		{AssetID: asset.ID},
		{AssetID: asset.ID},
	}
	if err := repo.BatchLog(ctx, events); err != nil {
		t.Fatalf("BatchLog: %v", err)
	}

	count, err := repo.CountByAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("CountByAsset: %v", err)
	}
	if count != 3 {
		t.Errorf("CountByAsset = %d, want 3", count)
	}
}

func TestListByAssetPagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	asset := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)

	var batch []model.DownloadEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, model.DownloadEvent{AssetID: asset.ID})
	}
	if err := repo.BatchLog(ctx, batch); err != nil {
		t.Fatalf("BatchLog: %v", err)
	}

	events, total, err := repo.ListByAsset(ctx, asset.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListByAsset: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(events) != 2 {
		t.Errorf("page size = %d, want 2", len(events))
	}

	// Empty assetID means all assets.
	_, allTotal, err := repo.ListByAsset(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("ListByAsset(all): %v", err)
	}
	if allTotal != 5 {
		t.Errorf("all total = %d, want 5", allTotal)
	}
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	asset := createTestAsset(t, repo, "U1", "Knight", model.Category3D, model.EngineUnity)
	if err := repo.Log(ctx, &model.DownloadEvent{AssetID: asset.ID}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["total_assets"].(int64) != 1 {
		t.Errorf("total_assets = %v, want 1", stats["total_assets"])
	}
	if stats["total_downloads"].(int64) != 1 {
		t.Errorf("total_downloads = %v, want 1", stats["total_downloads"])
	}
}
