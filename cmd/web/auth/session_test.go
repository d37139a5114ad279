package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", SessionName)
	return nil
}

func TestSessionManager_EnsureBatchID_RoundTrip(t *testing.T) {
	sm := NewSessionManager("test-secret")

	req := httptest.NewRequest("GET", "http://example.com/", nil)
	rr := httptest.NewRecorder()

	id, err := sm.EnsureBatchID(rr, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cookie := sessionCookie(t, rr)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)

	req2 := httptest.NewRequest("GET", "http://example.com/", nil)
	req2.AddCookie(cookie)

	got, err := sm.BatchID(req2)
	require.NoError(t, err)
	require.Equal(t, id, got)

	// An existing session keeps its batch and is not rewritten.
	rr2 := httptest.NewRecorder()
	again, err := sm.EnsureBatchID(rr2, req2)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Empty(t, rr2.Result().Cookies())

	createdAt := sm.GetSessionCreatedAt(req2)
	require.WithinDuration(t, time.Now(), createdAt, 5*time.Second)
}

func TestSessionManager_EnsureBatchID_SecureDetection(t *testing.T) {
	sm := NewSessionManager("test-secret")

	t.Run("tls implies secure", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://example.com/", nil)
		req.TLS = &tls.ConnectionState{}
		rr := httptest.NewRecorder()

		_, err := sm.EnsureBatchID(rr, req)
		require.NoError(t, err)
		require.True(t, sessionCookie(t, rr).Secure)
	})

	t.Run("x-forwarded-proto implies secure", func(t *testing.T) {
		req := httptest.NewRequest("GET", "http://example.com/", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rr := httptest.NewRecorder()

		_, err := sm.EnsureBatchID(rr, req)
		require.NoError(t, err)
		require.True(t, sessionCookie(t, rr).Secure)
	})
}

func TestSessionManager_BatchID_Missing(t *testing.T) {
	sm := NewSessionManager("test-secret")

	req := httptest.NewRequest("GET", "http://example.com/", nil)
	id, err := sm.BatchID(req)
	require.ErrorIs(t, err, ErrNoBatch)
	require.Empty(t, id)
	require.True(t, sm.GetSessionCreatedAt(req).IsZero())
}

func TestSessionManager_BadCookieStartsNewSession(t *testing.T) {
	sm := NewSessionManager("test-secret")

	req := httptest.NewRequest("GET", "http://example.com/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: "this-is-not-a-valid-cookie"})

	_, err := sm.BatchID(req)
	require.Error(t, err)

	rr := httptest.NewRecorder()
	id, err := sm.EnsureBatchID(rr, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestSessionManager_ClearSession(t *testing.T) {
	sm := NewSessionManager("test-secret")

	req := httptest.NewRequest("GET", "http://example.com/", nil)
	rr := httptest.NewRecorder()

	err := sm.ClearSession(rr, req)
	require.NoError(t, err)

	// Gorilla sessions writes a Set-Cookie header for deletion.
	setCookies := rr.Result().Header.Values("Set-Cookie")
	require.NotEmpty(t, setCookies)

	var found bool
	for _, v := range setCookies {
		if strings.HasPrefix(v, SessionName+"=") {
			found = true
			require.True(t, strings.Contains(v, "Max-Age=0") || strings.Contains(v, "Max-Age=-1") || strings.Contains(v, "Expires="))
			break
		}
	}
	require.True(t, found)
}
