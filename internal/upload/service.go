package upload

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/linguachat/internal/logger"
)

// UploadResponse: ответ media-сервиса после успешной загрузки.
type UploadResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// Service обрабатывает загрузку и раздачу медиа (картинки и голосовые).
type Service struct {
	gw      *Gateway
	maxSize int64
}

func NewService(gw *Gateway, maxSize int64) *Service {
	return &Service{gw: gw, maxSize: maxSize}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("media writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Upload обрабатывает POST multipart/form-data с полем "file".
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxSize+1<<20)
	if err := r.ParseMultipartForm(s.maxSize); err != nil {
		logger.Errorf("media upload: parse multipart: %v", err)
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ct := header.Header.Get("Content-Type")
	if ct == "" || ExtFor(ct) == "" {
		// часть браузеров не выставляет тип: берём по расширению
		if byExt := ContentTypeByExt(extOf(header.Filename)); ExtFor(byExt) != "" {
			ct = byExt
		}
	}

	name, err := s.gw.Save(r.Context(), file, header.Size, ct)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		logger.Errorf("media upload: filename=%q content_type=%q: %v", header.Filename, ct, err)
		switch {
		case errors.Is(err, ErrTypeNotAllowed), errors.Is(err, ErrBadContent):
			s.writeError(w, http.StatusBadRequest, "file type not allowed")
		case errors.Is(err, ErrTooLarge):
			s.writeError(w, http.StatusBadRequest, "file too large")
		default:
			s.writeError(w, http.StatusInternalServerError, "failed to save file")
		}
		return
	}

	kind := "audio"
	if strings.HasPrefix(normalizeMIME(ct), "image/") {
		kind = "image"
	}
	s.writeJSON(w, http.StatusOK, UploadResponse{
		URL:         s.gw.URLFor(name),
		FileName:    name,
		FileSize:    header.Size,
		ContentType: kind,
	})
}

// Serve отдаёт сохранённый blob по имени.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	rc, ct, err := s.gw.Open(r.Context(), filename)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		logger.Errorf("media serve %s: %v", filename, err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Errorf("media serve %s: copy: %v", filename, err)
	}
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return strings.ToLower(filename[i:])
	}
	return ""
}
