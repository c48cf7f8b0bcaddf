package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"spritenest-api/internal/download"
	"spritenest-api/internal/middleware"
	"spritenest-api/internal/service"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// DownloadHandler handles download-related HTTP requests.
type DownloadHandler struct {
	downloadService *service.DownloadService
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloadService *service.DownloadService) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
	}
}

type logDownloadRequest struct {
	AssetID string `json:"assetId"`
}

// Log handles POST /api/download
//
// Records a download event. Anonymous requests are allowed; the event is
// stored without a user ID.
func (h *DownloadHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if req.AssetID == "" {
		response.Error(w, apierror.BadRequest("Asset ID required"))
		return
	}

	var userID *string
	if user := middleware.GetUserFromContext(r.Context()); user != nil {
		userID = &user.ID
	}

	if err := h.downloadService.Log(r.Context(), req.AssetID, userID); err != nil {
		response.Error(w, err)
		return
	}

	response.Message(w, http.StatusOK, "Download logged")
}

// Fetch handles GET /api/assets/{id}/download
//
// Resolves the asset file and either redirects the client or streams the
// bytes with a download disposition. The event is logged best-effort so a
// dead log store never blocks the file.
func (h *DownloadHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	if assetID == "" {
		response.Error(w, apierror.BadRequest("Asset ID required"))
		return
	}

	res, asset, err := h.downloadService.Resolve(r.Context(), assetID)
	if err != nil {
		response.Error(w, err)
		return
	}

	var userID *string
	if user := middleware.GetUserFromContext(r.Context()); user != nil {
		userID = &user.ID
	}
	h.logBestEffort(asset.ID, userID)

	switch {
	case res.Kind == download.KindStream:
		h.stream(w, res)
	case res.Degraded:
		http.Redirect(w, r, res.URL, http.StatusSeeOther)
	default:
		http.Redirect(w, r, res.URL, http.StatusFound)
	}
}

func (h *DownloadHandler) stream(w http.ResponseWriter, res *download.Resolution) {
	defer res.Body.Close()

	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))

	if _, err := io.Copy(w, res.Body); err != nil {
		log.Printf("[DownloadHandler] Stream aborted: %v", err)
	}
}

// logBestEffort detaches the event write from the request lifetime.
func (h *DownloadHandler) logBestEffort(assetID string, userID *string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.downloadService.Log(ctx, assetID, userID); err != nil {
			log.Printf("[DownloadHandler] Failed to log download for %s: %v", assetID, err)
		}
	}()
}
