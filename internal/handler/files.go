package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"spritenest-api/internal/download"
	"spritenest-api/internal/storage"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// FilesHandler serves files from local storage. Only mounted when the
// storage backend is local; GCS objects are reached through their own URLs.
type FilesHandler struct {
	store *storage.LocalStorage
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(store *storage.LocalStorage) *FilesHandler {
	return &FilesHandler{
		store: store,
	}
}

// Serve handles GET /files/*
//
// Plain requests serve the object as-is. Requests carrying exp/dl/sig query
// parameters are verified first and rejected with 401 when the signature is
// invalid or expired.
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if objectPath == "" {
		response.Error(w, apierror.NotFound("File not found"))
		return
	}

	q := r.URL.Query()
	sig := q.Get("sig")
	forceDownload := q.Get("dl") == "1"

	if sig != "" {
		if err := h.store.VerifySignature(objectPath, q.Get("exp"), q.Get("dl"), sig); err != nil {
			response.Error(w, apierror.Unauthorized("Invalid or expired signature"))
			return
		}
	}

	reader, err := h.store.Download(r.Context(), objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(w, apierror.NotFound("File not found"))
			return
		}
		response.Error(w, apierror.InternalError("Failed to read file"))
		return
	}
	defer reader.Close()

	ext := strings.TrimPrefix(path.Ext(objectPath), ".")
	w.Header().Set("Content-Type", download.MIMEForExtension(ext))
	if forceDownload {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectPath)))
	}

	io.Copy(w, reader)
}
