package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/download"
	"spritenest-api/internal/handler"
	"spritenest-api/internal/identity"
	"spritenest-api/internal/middleware"
	"spritenest-api/internal/model"
	"spritenest-api/internal/repository"
	"spritenest-api/internal/router"
	"spritenest-api/internal/service"
	"spritenest-api/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testJWTSecret = "handler-test-jwt-secret"
	testLoginKey  = "handler-test-login-key"
)

type testAPI struct {
	server *httptest.Server
	repo   *repository.SQLiteRepository
	store  *storage.LocalStorage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	repo, err := repository.NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080/files", "test-secret")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })

	identityClient := identity.NewClient(identity.Config{JWTSecret: testJWTSecret}, nil)
	resolver := download.New(store, download.Config{})

	assetService := service.NewAssetService(repo, store, memCache, time.Minute)
	downloadService := service.NewDownloadService(repo, repo, nil, resolver)

	authCfg := middleware.AuthConfig{Identity: identityClient}
	mux := router.New(router.Config{
		Handler:         handler.New(),
		AssetHandler:    handler.NewAssetHandler(assetService),
		DownloadHandler: handler.NewDownloadHandler(downloadService),
		AuthHandler:     handler.NewAuthHandler(identityClient),
		AdminHandler:    handler.NewAdminHandler(nil, repo, downloadService, "sqlite"),
		FilesHandler:    handler.NewFilesHandler(store),
		RequireAuth:     middleware.RequireAuth(authCfg),
		OptionalAuth:    middleware.OptionalAuth(authCfg),
		AdminLoginKey:   testLoginKey,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, repo: repo, store: store}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (a *testAPI) seedAsset(t *testing.T, title, category string) *model.Asset {
	t.Helper()
	asset := &model.Asset{
		UserID:   "seed-user",
		Title:    title,
		Category: category,
		FileURL:  "http://localhost:8080/files/public/seed-user/" + title + ".glb",
	}
	if err := a.repo.Create(context.Background(), asset); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return asset
}

func decodeJSON(t *testing.T, r io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content))
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestListAssetsEmptyArray(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.server.URL + "/api/assets")
	if err != nil {
		t.Fatalf("GET /api/assets: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("body = %q, want a bare empty array", body)
	}
}

func TestListAssetsCategoryFilter(t *testing.T) {
	api := newTestAPI(t)
	api.seedAsset(t, "Knight", model.Category3D)
	api.seedAsset(t, "Theme", model.CategoryAudio)

	resp, err := http.Get(api.server.URL + "/api/assets?category=3D")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var assets []model.Asset
	decodeJSON(t, resp.Body, &assets)
	if len(assets) != 1 || assets[0].Title != "Knight" {
		t.Errorf("filtered assets = %+v", assets)
	}
}

func TestGetAsset(t *testing.T) {
	api := newTestAPI(t)
	seeded := api.seedAsset(t, "Knight", model.Category3D)

	resp, err := http.Get(api.server.URL + "/api/assets/" + seeded.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	missing, err := http.Get(api.server.URL + "/api/assets/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status = %d, want 404", missing.StatusCode)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	buf, contentType := multipartUpload(t, map[string]string{
		"title":    "Hero",
		"category": model.Category3D,
	}, "hero.glb", "glb-bytes")

	resp, err := http.Post(api.server.URL+"/api/upload-asset", contentType, buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	// No row may exist after a rejected upload.
	assets, err := api.repo.List(context.Background(), model.AssetFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("rejected upload left %d rows", len(assets))
	}
}

func TestUploadCreatesAsset(t *testing.T) {
	api := newTestAPI(t)

	buf, contentType := multipartUpload(t, map[string]string{
		"title":    "Hero",
		"category": model.Category3D,
		"engine":   model.EngineUnity,
		"license":  model.LicenseCC0,
		"price":    "4.99",
	}, "hero.glb", "glb-bytes")

	req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/api/upload-asset", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+api.token(t, "U1"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var payload struct {
		Message string      `json:"message"`
		Asset   model.Asset `json:"asset"`
	}
	decodeJSON(t, resp.Body, &payload)

	if payload.Message != "Asset uploaded" {
		t.Errorf("message = %q", payload.Message)
	}
	if payload.Asset.UserID != "U1" || payload.Asset.Price != 4.99 {
		t.Errorf("asset = %+v", payload.Asset)
	}
	if !strings.Contains(payload.Asset.FileURL, "/files/public/U1/") {
		t.Errorf("file_url = %q", payload.Asset.FileURL)
	}
	if !strings.HasSuffix(payload.Asset.FileURL, "-hero.glb") {
		t.Errorf("file_url %q does not keep the original filename", payload.Asset.FileURL)
	}

	stored, err := api.repo.GetByID(context.Background(), payload.Asset.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID after upload = %v, %v", stored, err)
	}
}

func TestUploadValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "U1")

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing title", map[string]string{"category": model.Category3D}},
		{"bad category", map[string]string{"title": "Hero", "category": "textures"}},
		{"bad engine", map[string]string{"title": "Hero", "category": model.Category3D, "engine": "Godot"}},
		{"bad price", map[string]string{"title": "Hero", "category": model.Category3D, "price": "free"}},
		{"negative price", map[string]string{"title": "Hero", "category": model.Category3D, "price": "-1"}},
		{"NaN price", map[string]string{"title": "Hero", "category": model.Category3D, "price": "NaN"}},
		{"infinite price", map[string]string{"title": "Hero", "category": model.Category3D, "price": "Inf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, contentType := multipartUpload(t, tt.fields, "hero.glb", "bytes")
			req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/api/upload-asset", buf)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestLogDownloadAnonymous(t *testing.T) {
	api := newTestAPI(t)
	asset := api.seedAsset(t, "Knight", model.Category3D)

	body := strings.NewReader(`{"assetId":"` + asset.ID + `"}`)
	resp, err := http.Post(api.server.URL+"/api/download", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload map[string]string
	decodeJSON(t, resp.Body, &payload)
	if payload["message"] != "Download logged" {
		t.Errorf("message = %q", payload["message"])
	}

	count, err := api.repo.CountByAsset(context.Background(), asset.ID)
	if err != nil {
		t.Fatalf("CountByAsset: %v", err)
	}
	if count != 1 {
		t.Errorf("downloads logged = %d, want 1", count)
	}
}

func TestLogDownloadAttributesUser(t *testing.T) {
	api := newTestAPI(t)
	asset := api.seedAsset(t, "Knight", model.Category3D)

	body := strings.NewReader(`{"assetId":"` + asset.ID + `"}`)
	req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/api/download", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+api.token(t, "U7"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	events, _, err := api.repo.ListByAsset(context.Background(), asset.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByAsset: %v", err)
	}
	if len(events) != 1 || events[0].UserID == nil || *events[0].UserID != "U7" {
		t.Errorf("events = %+v, want one event attributed to U7", events)
	}
}

func TestLogDownloadErrors(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Post(api.server.URL+"/api/download", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing assetId status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(api.server.URL+"/api/download", "application/json", strings.NewReader(`{"assetId":"nope"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown asset status = %d, want 404", resp.StatusCode)
	}
}

func TestFetchDownloadStreams(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer fileSrv.Close()

	api := newTestAPI(t)

	asset := &model.Asset{
		UserID:   "seed-user",
		Title:    "Wall",
		Category: model.Category3D,
		FileURL:  fileSrv.URL + "/wall.png",
	}
	if err := api.repo.Create(context.Background(), asset); err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp, err := http.Get(api.server.URL + "/api/assets/" + asset.ID + "/download")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `"wall.png"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png-bytes" {
		t.Errorf("body = %q", data)
	}
}

func TestAdminRoutesRequireLoginKey(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.server.URL + "/api/v1/admin/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status without key = %d, want 403", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, api.server.URL+"/api/v1/admin/stats", nil)
	req.Header.Set("X-Login-Key", testLoginKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with key = %d, want 200", resp.StatusCode)
	}

	var stats map[string]interface{}
	decodeJSON(t, resp.Body, &stats)
	if stats["db_type"] != "sqlite" {
		t.Errorf("db_type = %v", stats["db_type"])
	}
}

func TestAdminDownloadsListing(t *testing.T) {
	api := newTestAPI(t)
	asset := api.seedAsset(t, "Knight", model.Category3D)

	for i := 0; i < 3; i++ {
		if err := api.repo.Log(context.Background(), &model.DownloadEvent{AssetID: asset.ID}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, api.server.URL+"/api/v1/admin/downloads?limit=2&asset_id="+asset.ID, nil)
	req.Header.Set("X-Login-Key", testLoginKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Data  []model.DownloadEvent `json:"data"`
		Total int64                 `json:"total"`
	}
	decodeJSON(t, resp.Body, &payload)
	if payload.Total != 3 || len(payload.Data) != 2 {
		t.Errorf("downloads page = %d of %d, want 2 of 3", len(payload.Data), payload.Total)
	}
}

func TestAuthCallbackRedirects(t *testing.T) {
	api := newTestAPI(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(api.server.URL + "/api/auth/callback")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/assets" {
		t.Errorf("Location = %q, want /assets", loc)
	}
}

func TestServeSignedFile(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	if _, err := api.store.Upload(ctx, "public/U1/model.glb", strings.NewReader("glb-bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	signed, err := api.store.SignedURL(ctx, "public/U1/model.glb", time.Minute, true)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	// The store mints URLs against its public base; rebase onto the test
	// server.
	signed = api.server.URL + signed[strings.Index(signed, "/files/"):]

	resp, err := http.Get(signed)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "glb-bytes" {
		t.Errorf("body = %q", data)
	}
}

func TestServeExpiredSignedFile(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	if _, err := api.store.Upload(ctx, "public/U1/model.glb", strings.NewReader("glb-bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// A negative TTL mints an already-expired URL.
	signed, err := api.store.SignedURL(ctx, "public/U1/model.glb", -time.Minute, false)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	signed = api.server.URL + signed[strings.Index(signed, "/files/"):]

	resp, err := http.Get(signed)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/status", "/api/v1/health", "/api/v1/ready"} {
		resp, err := http.Get(api.server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
