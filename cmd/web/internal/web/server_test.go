package web

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/media/mediatest"
	"thirdcoast.systems/mediaportal/internal/presets"
)

type discardUploads struct{}

func (discardUploads) Exists(context.Context, string) (bool, error) { return false, nil }

func (discardUploads) Put(_ context.Context, _ string, body io.Reader, _ string) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

func newTestServer(t *testing.T, uploadLimit string) *Webserver {
	t.Helper()

	store := media.NewMemoryStore()
	gw := mediatest.NewGateway()
	reg := batches.NewRegistry(func(*slog.Logger) (batches.Batch, error) {
		return media.NewOrchestrator(media.Options{Store: store, Gateway: gw, Cleaner: gw})
	}, time.Hour)
	t.Cleanup(reg.Close)

	catalog, err := presets.Load("", "")
	require.NoError(t, err)

	s, err := NewWebserver(Deps{
		Sessions:         auth.NewSessionManager("test-secret"),
		Batches:          reg,
		Store:            store,
		Uploads:          discardUploads{},
		UploadKey:        func(batchID, name string) string { return batchID + "/" + name },
		Presets:          catalog,
		DefaultProcessor: media.ProcessorEncoder,
		UploadLimit:      uploadLimit,
	})
	require.NoError(t, err)
	return s
}

func multipartUpload(t *testing.T, size int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, _ = part.Write(bytes.Repeat([]byte("x"), size))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, uploadPath, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestNewWebserver_RequiresDeps(t *testing.T) {
	_, err := NewWebserver(Deps{})
	require.Error(t, err)
}

func TestWebserver_Healthz(t *testing.T) {
	s := newTestServer(t, "")

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestWebserver_Routes(t *testing.T) {
	s := newTestServer(t, "")

	routes := map[string]bool{}
	for _, r := range s.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/uploads",
		"POST /api/encoding",
		"POST /api/encoding/advance",
		"GET /api/encoding/state",
		"GET /api/encoding/stream",
		"DELETE /api/encoding",
		"GET /api/assets",
		"GET /api/assets/in-progress",
		"DELETE /api/assets/:collection/:row",
		"GET /api/presets",
		"GET /healthz",
	} {
		require.True(t, routes[want], "missing route %s", want)
	}
}

func TestWebserver_UploadLimit(t *testing.T) {
	s := newTestServer(t, "1K")

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, multipartUpload(t, 4096))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, multipartUpload(t, 100))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestWebserver_UploadsBypassGlobalLimit(t *testing.T) {
	s := newTestServer(t, "4M")

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, multipartUpload(t, 3<<20))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestWebserver_PresetsGzipped(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/presets", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
}
