package handler

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/repository"
	"spritenest-api/internal/service"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	redisBuffer     *cache.RedisDownloadBuffer
	assetRepo       repository.AssetRepository
	downloadService *service.DownloadService
	dbType          string // Database type: sqlite, postgres, mysql
	startTime       time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	redisBuffer *cache.RedisDownloadBuffer,
	assetRepo repository.AssetRepository,
	downloadService *service.DownloadService,
	dbType string,
) *AdminHandler {
	return &AdminHandler{
		redisBuffer:     redisBuffer,
		assetRepo:       assetRepo,
		downloadService: downloadService,
		dbType:          dbType,
		startTime:       time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Redis buffer stats
	if h.redisBuffer != nil {
		count, err := h.redisBuffer.Count(ctx)
		if err == nil {
			stats["redis_buffer"] = map[string]interface{}{
				"pending_events": count,
				"status":         "connected",
			}
		} else {
			stats["redis_buffer"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["redis_buffer"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Database stats
	if h.assetRepo != nil {
		dbStats, err := h.assetRepo.Stats(ctx)
		if err == nil {
			dbStats["status"] = "connected"
			stats["database"] = dbStats
		} else {
			stats["database"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["database"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// GetDownloads handles GET /api/v1/admin/downloads
//
// Returns paginated download events, optionally filtered by asset_id.
func (h *AdminHandler) GetDownloads(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	assetID := r.URL.Query().Get("asset_id")

	events, total, err := h.downloadService.ListEvents(r.Context(), assetID, limit, offset)
	if err != nil {
		response.Error(w, apierror.InternalError("Failed to fetch download events"))
		return
	}

	response.OK(w, map[string]interface{}{
		"data":  events,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}
