package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/issueflow/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_WritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewLoggerTo(&buf, "production")

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Same(t, logger, util.LoggerFrom(r.Context()))
		w.WriteHeader(http.StatusCreated)
	}))
	serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/organizations", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	t.Run("hides stack", func(t *testing.T) {
		rec := serve(Recovery(false)(panicking), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := errorBody(t, rec)
		assert.Equal(t, "An unexpected error occurred", body["message"])
		assert.NotContains(t, body, "details")
	})

	t.Run("exposes stack in development", func(t *testing.T) {
		rec := serve(Recovery(true)(panicking), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		details := errorBody(t, rec)["details"].(map[string]any)
		assert.Equal(t, "boom", details["panic"])
		assert.Contains(t, details["stack"], "goroutine")
	})
}
