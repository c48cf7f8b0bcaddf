package service

import (
	"context"
	"log"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/download"
	"spritenest-api/internal/model"
	"spritenest-api/internal/repository"
	"spritenest-api/pkg/apierror"
)

// DownloadService records download events and resolves asset files into
// something a browser can fetch.
type DownloadService struct {
	assetRepo    repository.AssetRepository
	downloadRepo repository.DownloadRepository
	buffer       *cache.RedisDownloadBuffer
	resolver     *download.Resolver
}

// NewDownloadService creates a new download service. buffer may be nil, in
// which case events are written straight to the repository.
func NewDownloadService(assetRepo repository.AssetRepository, downloadRepo repository.DownloadRepository, buffer *cache.RedisDownloadBuffer, resolver *download.Resolver) *DownloadService {
	if assetRepo == nil || downloadRepo == nil || resolver == nil {
		return nil
	}
	return &DownloadService{
		assetRepo:    assetRepo,
		downloadRepo: downloadRepo,
		buffer:       buffer,
		resolver:     resolver,
	}
}

// Log records exactly one download event for the asset. userID is nil for
// anonymous downloads.
func (s *DownloadService) Log(ctx context.Context, assetID string, userID *string) error {
	if assetID == "" {
		return apierror.BadRequest("assetId is required")
	}

	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return apierror.NotFound("Asset not found")
	}

	event := model.DownloadEvent{AssetID: assetID, UserID: userID}

	if s.buffer != nil {
		err := s.buffer.Add(ctx, event)
		if err == nil {
			return nil
		}
		log.Printf("[DownloadService] Buffer unavailable, writing directly: %v", err)
	}

	return s.downloadRepo.Log(ctx, &event)
}

// Resolve looks up the asset and runs the resolver chain against its file
// URL. The returned resolution is always usable; a broken upstream degrades
// to a plain redirect.
func (s *DownloadService) Resolve(ctx context.Context, assetID string) (*download.Resolution, *model.Asset, error) {
	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	if asset == nil {
		return nil, nil, apierror.NotFound("Asset not found")
	}

	res, err := s.resolver.Resolve(ctx, asset.FileURL, asset.Title)
	if err != nil {
		return nil, nil, err
	}
	return res, asset, nil
}

// ListEvents returns recorded download events for the admin view. assetID ""
// means all assets.
func (s *DownloadService) ListEvents(ctx context.Context, assetID string, limit, offset int) ([]model.DownloadEvent, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.downloadRepo.ListByAsset(ctx, assetID, limit, offset)
}

// CreateFlushFunc returns the batch writer the redis buffer drains into.
func CreateFlushFunc(downloadRepo repository.DownloadRepository) cache.FlushFunc {
	return func(ctx context.Context, events []model.DownloadEvent) error {
		if len(events) == 0 {
			return nil
		}
		if err := downloadRepo.BatchLog(ctx, events); err != nil {
			return err
		}
		log.Printf("[DownloadService] Flushed %d buffered download events", len(events))
		return nil
	}
}
