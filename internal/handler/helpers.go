package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError переводит ошибку конвейера отправки в HTTP-статус.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, upload.ErrTypeNotAllowed), errors.Is(err, upload.ErrBadContent):
		status, msg = http.StatusUnsupportedMediaType, "file type not allowed"
	case errors.Is(err, feed.ErrTooManyListeners):
		status, msg = http.StatusServiceUnavailable, "too many connections"
	case kind == apperr.KindNotFound:
		status, msg = http.StatusNotFound, "not found"
	case kind == apperr.KindBlocked:
		status, msg = http.StatusForbidden, "conversation is blocked"
	case kind == apperr.KindInvalid:
		status, msg = http.StatusBadRequest, err.Error()
	case kind == apperr.KindDeviceAccess:
		status, msg = http.StatusBadRequest, "audio device unavailable"
	case kind == apperr.KindUpload:
		status, msg = http.StatusBadGateway, "upload failed"
	case kind == apperr.KindTranslation:
		status, msg = http.StatusBadGateway, "translation failed"
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("handler: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: string(kind)})
}

// originAllowed проверяет Origin по списку как в CORS (через запятую или "*").
func originAllowed(allowed string, r *http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "*" || allowed == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(allowed, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}
