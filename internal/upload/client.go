package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
)

// HTTPClient uploads to the media service over multipart POST /upload.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	defer logger.DeferLogDuration("upload.HTTPClient.Upload", time.Now())()
	u, err := c.upload(ctx, data, mimeHint)
	if err != nil {
		logger.Errorf("media upload proxy: %v", err)
		return "", apperr.Upload(err)
	}
	return u, nil
}

func (c *HTTPClient) upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	ext := ExtFor(mimeHint)
	if ext == "" {
		return "", fmt.Errorf("%w: %q", ErrTypeNotAllowed, mimeHint)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="blob%s"`, ext))
	h.Set("Content-Type", normalizeMIME(mimeHint))
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if secret := middleware.InternalSecret(); secret != "" {
		req.Header.Set(middleware.InternalSecretHeader, secret)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upstream status=%d body=%s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("empty url in response")
	}
	return out.URL, nil
}
