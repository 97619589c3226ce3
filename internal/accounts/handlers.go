// Package accounts exposes the identity boundary over REST: register,
// login and logout. Everything downstream trusts the opaque user id the
// auth service yields.
package accounts

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cipherchat/internal/httputil"
	"cipherchat/internal/services"
)

type Handler struct {
	auth *services.AuthService
}

func NewHandler(auth *services.AuthService) *Handler {
	return &Handler{auth: auth}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/auth/register", h.register)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, services.ErrEmailExists) {
		httputil.Error(w, http.StatusConflict, "email already exists")
		return
	}
	if err != nil {
		log.Printf("accounts: register %s: %v", req.Email, err)
		httputil.Error(w, http.StatusBadRequest, "failed to register")
		return
	}

	httputil.JSON(w, http.StatusCreated, map[string]string{"message": "registered"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		log.Printf("accounts: login %s: %v", req.Email, err)
		httputil.Error(w, http.StatusInternalServerError, "failed to login")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"token":     resp.Token,
		"expiresAt": resp.ExpiresAt,
		"userId":    resp.UserID,
		"name":      resp.Name,
		"email":     resp.Email,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		httputil.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := h.auth.Logout(r.Context(), strings.TrimPrefix(header, "Bearer ")); err != nil {
		httputil.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
