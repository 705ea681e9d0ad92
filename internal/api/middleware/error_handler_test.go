package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/metrics"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestErrorHandler_NoErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := serve(router, http.MethodGet, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandler_AppError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrSlugConflict("my-shop"))
	})

	w := serve(router, http.MethodGet, "/fail")
	require.Equal(t, http.StatusConflict, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeStoreSlugConflict, body.Code)
	assert.Equal(t, "my-shop", body.Params["slug"])
}

func TestErrorHandler_FieldErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.POST("/stores", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrValidation([]apperrors.FieldError{{Field: "name", Code: "required"}}))
	})

	w := serve(router, http.MethodPost, "/stores")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeValidationFailed, body.Code)
	require.Len(t, body.FieldErrors, 1)
	assert.Equal(t, "name", body.FieldErrors[0].Field)
}

func TestErrorHandler_WrappedAppError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/wrapped", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("lookup: %w", apperrors.ErrStoreNotFound("abc")))
	})

	w := serve(router, http.MethodGet, "/wrapped")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorHandler_GenericError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/err", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("something unexpected"))
	})

	w := serve(router, http.MethodGet, "/err")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeInternalError, body.Code)
	assert.NotContains(t, w.Body.String(), "something unexpected")
}

func TestNoRoute(t *testing.T) {
	router := gin.New()
	router.NoRoute(NoRoute())

	w := serve(router, http.MethodGet, "/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeRouteNotFound)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/id")
		rid := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, rid)
		assert.Equal(t, rid, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", w.Body.String())
	})
}

func TestAccessLog_RecordsRouteMetrics(t *testing.T) {
	m := metrics.New()
	router := gin.New()
	router.Use(RequestID(), AccessLog(m))
	router.GET("/api/stores/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	serve(router, http.MethodGet, "/api/stores/abc")

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()

	var found bool
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "storefleet_http_requests_total{") &&
			strings.Contains(line, `route="/api/stores/:id"`) &&
			strings.Contains(line, `status="204"`) {
			found = true
		}
	}
	assert.True(t, found, "request counter missing from:\n%s", body)
}
