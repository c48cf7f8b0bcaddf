package handler

import (
	"net/http"
	"strconv"
	"strings"

	"spritenest-api/internal/middleware"
	"spritenest-api/internal/model"
	"spritenest-api/internal/service"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps multipart uploads at 64 MB.
const maxUploadBytes = 64 << 20

// AssetHandler handles asset-related HTTP requests.
type AssetHandler struct {
	assetService *service.AssetService
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(assetService *service.AssetService) *AssetHandler {
	return &AssetHandler{
		assetService: assetService,
	}
}

// List handles GET /api/assets
//
// Responds with a bare JSON array, newest first. Unknown filter values are
// passed through and simply match nothing.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AssetFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Engine:   strings.TrimSpace(q.Get("engine")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	assets, err := h.assetService.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}

	if assets == nil {
		assets = []model.Asset{}
	}
	response.OK(w, assets)
}

// Get handles GET /api/assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, apierror.BadRequest("Asset ID required"))
		return
	}

	asset, err := h.assetService.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if asset == nil {
		response.Error(w, apierror.NotFound("Asset not found"))
		return
	}

	response.OK(w, asset)
}

// Upload handles POST /api/upload-asset
//
// Expects a multipart form with a "file" part plus title, description,
// category, engine, price and license fields. Requires authentication.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		response.Error(w, apierror.Unauthorized("You must be logged in to upload."))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, apierror.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, apierror.BadRequest("Please select a file."))
		return
	}
	defer file.Close()

	price, err := parsePrice(r.FormValue("price"))
	if err != nil {
		response.Error(w, apierror.BadRequest("price must be a number"))
		return
	}

	asset, err := h.assetService.Upload(r.Context(), user.ID, service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Engine:      r.FormValue("engine"),
		License:     r.FormValue("license"),
		Price:       price,
		Filename:    header.Filename,
		File:        file,
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"message": "Asset uploaded",
		"asset":   asset,
	})
}

// parsePrice treats an absent price as free.
func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
