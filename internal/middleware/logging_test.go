package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRecorder_CapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	wrapped.WriteHeader(http.StatusTeapot)
	n, err := wrapped.Write([]byte("short and stout"))
	assert.NoError(t, err)
	assert.Equal(t, 15, n)

	assert.Equal(t, http.StatusTeapot, wrapped.status)
	assert.Equal(t, 15, wrapped.bytes)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLogging_PassesRequestThrough(t *testing.T) {
	var sawRequestID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequestID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})

	handler := RequestID(Logging(inner))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, sawRequestID, "the request id must be in place before logging")
}
