package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/middleware"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}

func newDiskGateway(t *testing.T, maxSize int64) *Gateway {
	t.Helper()
	return NewGateway(NewDiskStore(t.TempDir()), "http://media.local/media/", maxSize)
}

func TestGatewayUploadReturnsURLAndStoresBytes(t *testing.T) {
	gw := newDiskGateway(t, 1<<20)
	data := append(append([]byte{}, pngHeader...), []byte("pixels")...)

	u, err := gw.Upload(context.Background(), data, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://media.local/media/"))
	assert.True(t, strings.HasSuffix(u, ".png"))

	rc, ct, err := gw.Open(context.Background(), u[strings.LastIndex(u, "/")+1:])
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", ct)
}

func TestGatewayAcceptsEmptyAudio(t *testing.T) {
	gw := newDiskGateway(t, 1<<20)
	u, err := gw.Upload(context.Background(), []byte{}, "audio/mpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, ".mp3"))
}

func TestGatewayRejections(t *testing.T) {
	gw := newDiskGateway(t, 4)
	tests := []struct {
		name string
		data []byte
		mime string
		want error
	}{
		{"unknown type", []byte("#!/bin/sh"), "application/x-sh", ErrTypeNotAllowed},
		{"too large", []byte("12345"), "audio/mpeg", ErrTooLarge},
		{"wrong magic", []byte("nope"), "image/png", ErrBadContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Upload(context.Background(), tt.data, tt.mime)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperr.IsKind(err, apperr.KindUpload))
		})
	}
}

func TestOpenMissingBlob(t *testing.T) {
	gw := newDiskGateway(t, 0)
	_, _, err := gw.Open(context.Background(), "missing.mp3")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".mp3", ExtFor("audio/mpeg"))
	assert.Equal(t, ".webm", ExtFor("audio/webm; codecs=opus"))
	assert.Equal(t, ".jpg", ExtFor("IMAGE/JPEG"))
	assert.Equal(t, "", ExtFor("text/html"))
	assert.Equal(t, "image/jpeg", ContentTypeByExt(".JPEG"))
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw := NewGateway(NewDiskStore(t.TempDir()), "/media", 1<<20)
	svc := NewService(gw, 1<<20)
	r := chi.NewRouter()
	r.Post("/upload", svc.Upload)
	r.Get("/media/{filename}", func(w http.ResponseWriter, r *http.Request) {
		svc.Serve(w, r, chi.URLParam(r, "filename"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientRoundTripThroughMediaService(t *testing.T) {
	srv := mediaServer(t)
	c := NewHTTPClient(srv.URL+"/", time.Second)

	u, err := c.Upload(context.Background(), []byte("ID3voice"), "audio/mpeg")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "/media/"))

	resp, err := http.Get(srv.URL + u)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ID3voice", string(body))
}

func TestHTTPClientUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Upload(context.Background(), []byte("x"), "audio/mpeg")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpload))
}

func TestHTTPClientSendsInternalSecret(t *testing.T) {
	t.Setenv("INTERNAL_SECRET", "media-s3cret")
	svc := NewService(newDiskGateway(t, 1<<20), 1<<20)
	r := chi.NewRouter()
	r.With(middleware.InternalOnly).Post("/upload", svc.Upload)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Upload(context.Background(), []byte("ID3voice"), "audio/mpeg")
	require.NoError(t, err)

	t.Setenv("INTERNAL_SECRET", "")
	_, err = NewHTTPClient(srv.URL, time.Second).Upload(context.Background(), []byte("ID3voice"), "audio/mpeg")
	require.Error(t, err, "a request without the secret must be refused")
}

func TestServiceUploadFallsBackToExtension(t *testing.T) {
	srv := mediaServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write(pngHeader)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "image", out.ContentType)
	assert.True(t, strings.HasSuffix(out.URL, ".png"))
}

func TestServeUnknownFile(t *testing.T) {
	srv := mediaServer(t)
	resp, err := http.Get(srv.URL + "/media/nope.mp3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
