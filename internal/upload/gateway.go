// Package upload turns raw media bytes into a durable URL.
//
// Gateway validates and names blobs and hands them to a Backend (local disk or
// MongoDB GridFS). HTTPClient implements the same contract against a remote
// media service.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
)

var (
	ErrTypeNotAllowed = errors.New("upload: media type not allowed")
	ErrTooLarge       = errors.New("upload: file too large")
	ErrBadContent     = errors.New("upload: content does not match type")
	ErrBlobNotFound   = errors.New("upload: blob not found")
)

// Uploader is the blob-to-URL capability consumed by the composer.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeHint string) (string, error)
}

// Backend persists named blobs.
type Backend interface {
	Put(ctx context.Context, name, mimeType string, r io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// Gateway implements Uploader over a Backend. URLs are BaseURL + "/" + name.
type Gateway struct {
	backend Backend
	baseURL string
	maxSize int64
}

func NewGateway(backend Backend, baseURL string, maxSize int64) *Gateway {
	return &Gateway{backend: backend, baseURL: strings.TrimSuffix(baseURL, "/"), maxSize: maxSize}
}

// Upload stores data once and returns its URL. Every failure is an UploadError.
func (g *Gateway) Upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	defer logger.DeferLogDuration("upload.Gateway.Upload", time.Now())()
	name, err := g.Save(ctx, bytes.NewReader(data), int64(len(data)), mimeHint)
	if err != nil {
		return "", apperr.Upload(err)
	}
	return g.URLFor(name), nil
}

// Save validates and stores one blob, returning the generated name.
func (g *Gateway) Save(ctx context.Context, r io.Reader, size int64, mimeHint string) (string, error) {
	ext := ExtFor(mimeHint)
	if ext == "" {
		return "", fmt.Errorf("%w: %q", ErrTypeNotAllowed, mimeHint)
	}
	if g.maxSize > 0 && size > g.maxSize {
		return "", ErrTooLarge
	}
	head := make([]byte, 512)
	n, err := io.ReadAtLeast(r, head, len(head))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read: %w", err)
	}
	head = head[:n]
	if !matchMagic(ext, head) {
		return "", ErrBadContent
	}
	name := uuid.New().String() + ext
	if err := g.backend.Put(ctx, name, normalizeMIME(mimeHint), io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	logger.Debugf("upload: stored %s (%s)", name, mimeHint)
	return name, nil
}

// Open returns a stored blob and its content type.
func (g *Gateway) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	name = filepath.Base(name)
	rc, err := g.backend.Get(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return rc, ContentTypeByExt(filepath.Ext(name)), nil
}

func (g *Gateway) URLFor(name string) string {
	return g.baseURL + "/" + name
}
