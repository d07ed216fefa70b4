package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	require.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	require.False(t, ok)

	_, ok = UserID(WithUserID(context.Background(), "  "))
	require.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), " user-1 "))
	require.True(t, ok)
	require.Equal(t, "user-1", id)
}

func TestWriteAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.False(t, WriteAppError(rec, context.Canceled))

	rec = httptest.NewRecorder()
	require.True(t, WriteAppError(rec, NewAppError("", "bad cart id", 0, nil)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":{"code":"BAD_REQUEST","message":"bad cart id"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteMapped(rec, http.StatusInternalServerError, "INTERNAL", context.DeadlineExceeded)
	require.JSONEq(t, `{"error":{"code":"INTERNAL","message":"internal error"}}`, rec.Body.String())
}
