// Package keys exposes the key directory: an authenticated lookup table
// from user id to the user's current public key. Private key material
// never reaches this service, and the blob is stored without validation;
// trust in the id comes from the auth layer.
package keys

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cipherchat/internal/httputil"
	"cipherchat/internal/repositories"
)

type Handler struct {
	keys repositories.KeyRepository
}

func NewHandler(keys repositories.KeyRepository) *Handler {
	return &Handler{keys: keys}
}

// Mount registers the directory routes on a router that already carries
// the auth middleware.
func (h *Handler) Mount(r chi.Router) {
	r.Put("/api/keys/{userID}", h.savePublicKey)
	r.Get("/api/keys/{userID}", h.getPublicKey)
}

type saveKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

// savePublicKey upserts the caller's key record. Idempotent; last write
// wins.
func (h *Handler) savePublicKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req saveKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PublicKey == "" {
		httputil.Error(w, http.StatusBadRequest, "publicKey is required")
		return
	}

	if claims, ok := httputil.ClaimsFrom(r.Context()); !ok || claims.UserID != userID {
		httputil.Error(w, http.StatusForbidden, "cannot publish a key for another user")
		return
	}

	if err := h.keys.SavePublicKey(r.Context(), userID, req.PublicKey); err != nil {
		log.Printf("keys: save for %s: %v", userID, err)
		httputil.Error(w, http.StatusInternalServerError, "failed to save public key")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"userId": userID})
}

func (h *Handler) getPublicKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	record, err := h.keys.GetPublicKey(r.Context(), userID)
	if errors.Is(err, repositories.ErrNotFound) {
		httputil.Error(w, http.StatusNotFound, "public key not found")
		return
	}
	if err != nil {
		log.Printf("keys: get for %s: %v", userID, err)
		httputil.Error(w, http.StatusInternalServerError, "failed to get public key")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"userId":    record.UserID,
		"publicKey": record.PublicKey,
	})
}
