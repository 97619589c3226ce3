// Package assets stores uploaded images on local disk and serves them
// back by URL. The relay carries the resulting URL as an opaque string
// on a message.
package assets

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cipherchat/internal/httputil"
)

const maxUploadSize = 5 * 1024 * 1024 // 5MB

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Handler struct {
	uploadDir string
	publicURL string
}

func NewHandler(uploadDir, publicURL string) *Handler {
	return &Handler{uploadDir: uploadDir, publicURL: strings.TrimRight(publicURL, "/")}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/uploadImage", h.upload)
}

// MountPublic registers the unauthenticated download route.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/uploads/{filename}", h.serve)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		httputil.Error(w, http.StatusBadRequest, "file size exceeds 5mb limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedTypes[contentType]
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "invalid file type")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		log.Printf("assets: create upload dir: %v", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	filename := uuid.NewString() + ext
	path := filepath.Join(h.uploadDir, filename)

	dst, err := os.Create(path)
	if err != nil {
		log.Printf("assets: create %s: %v", path, err)
		httputil.Error(w, http.StatusInternalServerError, "failed to upload file")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		log.Printf("assets: write %s: %v", path, err)
		httputil.Error(w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	httputil.JSON(w, http.StatusCreated, map[string]string{
		"url": fmt.Sprintf("%s/uploads/%s", h.publicURL, filename),
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	// Uploaded names are uuid + extension, so anything with a separator
	// is not ours.
	if filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		httputil.Error(w, http.StatusNotFound, "file not found")
		return
	}

	path := filepath.Join(h.uploadDir, filename)
	if _, err := os.Stat(path); err != nil {
		httputil.Error(w, http.StatusNotFound, "file not found")
		return
	}

	http.ServeFile(w, r, path)
}
