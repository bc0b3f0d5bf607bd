package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/krshsl/mensetsu/backend/models"
)

const upstreamDetail = "AIサービスの呼び出しに失敗しました。"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeDetail(w, http.StatusBadRequest, detailOf(err, models.ErrValidation))
	case errors.Is(err, models.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Interview not found")
	case errors.Is(err, models.ErrConflict):
		writeDetail(w, http.StatusConflict, "Conflict")
	case errors.Is(err, models.ErrUpstream):
		slog.Error("Upstream failure", "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusBadGateway, upstreamDetail)
	default:
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// detailOf strips the sentinel suffix so the client sees only the message.
func detailOf(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}
