package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/mensetsu/backend/models"
)

type AuthEndpoints struct {
	authService *AuthService
	limiter     *RateLimiter
}

// AuthRequest accepts the id as userId or user_id.
type AuthRequest struct {
	UserID    string `json:"userId"`
	UserIDAlt string `json:"user_id"`
	Password  string `json:"password"`
}

func (r AuthRequest) id() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.UserIDAlt
}

func NewAuthEndpoints(authService *AuthService, limiter *RateLimiter) *AuthEndpoints {
	return &AuthEndpoints{
		authService: authService,
		limiter:     limiter,
	}
}

func (e *AuthEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		if e.limiter != nil {
			r.Use(e.limiter.Middleware)
		}
		r.Post("/signup", e.SignupHandler)
		r.Post("/login", e.LoginHandler)
	})
}

func (e *AuthEndpoints) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	token, err := e.authService.Signup(r.Context(), req.id(), req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, token)
	case errors.Is(err, models.ErrValidation):
		writeDetail(w, http.StatusUnprocessableEntity, detailOf(err, models.ErrValidation))
	case errors.Is(err, models.ErrConflict):
		slog.Warn("Signup conflict", "user_id", req.id())
		writeDetail(w, http.StatusConflict, "User already exists")
	default:
		writeError(w, r, err)
	}
}

func (e *AuthEndpoints) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	token, err := e.authService.Login(r.Context(), req.id(), req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, token)
	case errors.Is(err, models.ErrValidation):
		writeDetail(w, http.StatusUnprocessableEntity, detailOf(err, models.ErrValidation))
	case errors.Is(err, ErrInvalidCredentials):
		slog.Warn("Login failed", "user_id", req.id())
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Invalid user ID or password")
	default:
		writeError(w, r, err)
	}
}
