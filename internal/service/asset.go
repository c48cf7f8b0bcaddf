package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/model"
	"spritenest-api/internal/repository"
	"spritenest-api/internal/storage"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/uid"
)

// assetListCacheKey caches only the unfiltered listing. Filtered queries
// always hit the repository so a fresh upload is visible immediately.
const assetListCacheKey = "assets:list:all"

// AssetService handles asset listing and upload.
type AssetService struct {
	assetRepo repository.AssetRepository
	store     storage.Storage
	cache     cache.Cache
	cacheTTL  time.Duration
}

// NewAssetService creates a new asset service. cache may be nil.
func NewAssetService(assetRepo repository.AssetRepository, store storage.Storage, c cache.Cache, cacheTTL time.Duration) *AssetService {
	if assetRepo == nil || store == nil {
		return nil
	}
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}
	return &AssetService{
		assetRepo: assetRepo,
		store:     store,
		cache:     c,
		cacheTTL:  cacheTTL,
	}
}

// List returns assets matching the filter, newest first. The unfiltered
// listing is cached; the cache entry is dropped on every upload.
func (s *AssetService) List(ctx context.Context, filter model.AssetFilter) ([]model.Asset, error) {
	useCache := s.cache != nil && filter.IsZero()

	if useCache {
		if data, err := s.cache.Get(ctx, assetListCacheKey); err == nil {
			var assets []model.Asset
			if err := json.Unmarshal(data, &assets); err == nil {
				return assets, nil
			}
		}
	}

	assets, err := s.assetRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if useCache {
		if data, err := json.Marshal(assets); err == nil {
			_ = s.cache.Set(ctx, assetListCacheKey, data, s.cacheTTL)
		}
	}

	return assets, nil
}

// Get returns one asset or nil when it does not exist.
func (s *AssetService) Get(ctx context.Context, id string) (*model.Asset, error) {
	return s.assetRepo.GetByID(ctx, id)
}

// UploadInput carries a validated upload request.
type UploadInput struct {
	Title       string
	Description string
	Category    string
	Engine      string
	License     string
	Price       float64
	Filename    string
	File        io.Reader
}

// Upload stores the file in the object store, inserts the asset row, and
// returns the stored asset. Validation failures never touch the store or
// the database.
func (s *AssetService) Upload(ctx context.Context, userID string, in UploadInput) (*model.Asset, error) {
	if err := validateUpload(userID, in); err != nil {
		return nil, err
	}

	// uid component makes keys collision-free; neither timestamp naming nor
	// bare filenames guarantee that.
	objectKey := fmt.Sprintf("public/%s/%s-%s", userID, uid.New(), sanitizeKeyPart(in.Filename))

	storedPath, err := s.store.Upload(ctx, objectKey, in.File)
	if err != nil {
		return nil, apierror.InternalError("Error uploading file: " + err.Error())
	}

	asset := &model.Asset{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Engine:      in.Engine,
		License:     in.License,
		Price:       in.Price,
		FileURL:     s.store.PublicURL(storedPath),
	}

	if err := s.assetRepo.Create(ctx, asset); err != nil {
		// Orphaned objects are cheaper than lost metadata, but try anyway.
		if delErr := s.store.Delete(ctx, storedPath); delErr != nil {
			log.Printf("[AssetService] Failed to clean up object %s after insert error: %v", storedPath, delErr)
		}
		return nil, apierror.InternalError("Error saving asset metadata: " + err.Error())
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, assetListCacheKey)
	}

	return asset, nil
}

func validateUpload(userID string, in UploadInput) error {
	if userID == "" {
		return apierror.Unauthorized("You must be logged in to upload.")
	}
	if in.File == nil || in.Filename == "" {
		return apierror.BadRequest("Please select a file.")
	}
	if strings.TrimSpace(in.Title) == "" {
		return apierror.BadRequest("title is required")
	}
	if !model.ValidCategory(in.Category) {
		return apierror.BadRequest("category must be one of 3D, animation, audio")
	}
	if !model.ValidEngine(in.Engine) {
		return apierror.BadRequest("engine must be one of Unity, Unreal, Other")
	}
	if !model.ValidLicense(in.License) {
		return apierror.BadRequest("license must be one of CC0, commercial")
	}
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price < 0 {
		return apierror.BadRequest("price must be zero or positive")
	}
	return nil
}

// sanitizeKeyPart strips path separators and whitespace from a client-chosen
// filename before it becomes part of an object key.
func sanitizeKeyPart(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ' ':
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
	if name == "" {
		name = "file"
	}
	return name
}
