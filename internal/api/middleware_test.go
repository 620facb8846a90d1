package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/api"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}

// TestRateLimitMiddleware_TooManyRequests 测试限流
func TestRateLimitMiddleware_TooManyRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(api.RateLimitMiddleware(1, 1)) // 1 req/s, burst 1
	router.GET("/test", okHandler)

	// 第一个请求应该成功
	req1 := httptest.NewRequest("GET", "/test", nil)
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusOK, w1.Code)

	// 立即发送第二个请求应该被限流
	req2 := httptest.NewRequest("GET", "/test", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)

	// 其他客户端不受影响
	req3 := httptest.NewRequest("GET", "/test", nil)
	req3.RemoteAddr = "10.0.0.2:1234"
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req3)
	assert.Equal(t, http.StatusOK, w3.Code)
}

// TestCORSMiddleware 测试 CORS
func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("允许所有源", func(t *testing.T) {
		router := gin.New()
		router.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}}))
		router.GET("/test", okHandler)

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), api.HeaderOwnerID)
	})

	t.Run("白名单", func(t *testing.T) {
		router := gin.New()
		router.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://keralafarm.app"}}))
		router.GET("/test", okHandler)

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "https://keralafarm.app")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "https://keralafarm.app", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		req = httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "https://evil.example")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("预检请求", func(t *testing.T) {
		router := gin.New()
		router.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}}))
		router.GET("/test", okHandler)

		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

// TestSecurityHeadersMiddleware 测试安全头
func TestSecurityHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(api.SecurityHeadersMiddleware(true))
	router.GET("/test", okHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

// TestRequestIDMiddleware 测试请求 ID
func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var owner, requestID string
	router := gin.New()
	router.Use(api.RequestIDMiddleware())
	router.GET("/test", func(c *gin.Context) {
		owner = service.GetOwnerID(c.Request.Context())
		requestID = service.GetRequestID(c.Request.Context())
		okHandler(c)
	})

	// 透传请求头中的 ID
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(api.HeaderRequestID, "req-123")
	req.Header.Set(api.HeaderOwnerID, "farmer-09")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))
	assert.Equal(t, "req-123", requestID)
	assert.Equal(t, "farmer-09", owner)

	// 自动生成
	req = httptest.NewRequest("GET", "/test", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(api.HeaderRequestID), 36)
	assert.Empty(t, owner)
}

// TestRequestLogMiddleware 测试请求日志
func TestRequestLogMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, hook := test.NewNullLogger()
	router := gin.New()
	router.Use(api.RequestIDMiddleware())
	router.Use(api.RequestLogMiddleware(logger))
	router.GET("/test", okHandler)
	router.GET("/missing", func(c *gin.Context) {
		api.Error(c, http.StatusNotFound, "not found", "")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 200, hook.LastEntry().Data["status"])
	assert.NotEmpty(t, hook.LastEntry().Data["request_id"])

	req = httptest.NewRequest("GET", "/missing", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

// TestErrorHandlerMiddleware 测试错误处理中间件
func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware())
	router.GET("/api-error", func(c *gin.Context) {
		_ = c.Error(api.WrapError(errors.New("boom"), http.StatusConflict, "conflict"))
	})
	router.GET("/service-error", func(c *gin.Context) {
		_ = c.Error(&service.NotFoundError{CardID: "HC1"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api-error", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	var response api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "conflict", response.Message)
	assert.Equal(t, "boom", response.Detail)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/service-error", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestStatusForError 测试服务错误映射
func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&service.ValidationError{Field: "crop_name", Reason: "is required"}, http.StatusBadRequest},
		{&service.InvalidPayloadError{Reason: "empty"}, http.StatusUnprocessableEntity},
		{&service.NotFoundError{CardID: "HC1"}, http.StatusNotFound},
		{&service.PersistenceError{Op: "insert", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, api.StatusForError(tt.err), tt.err.Error())
	}
}

// TestNewLoggerFromConfig 测试根据配置创建日志
func TestNewLoggerFromConfig(t *testing.T) {
	logger, err := api.NewLoggerFromConfig(&config.LogConfig{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	// 默认字段
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Warn("hello")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, api.ServiceName, entry["service"])
	assert.Equal(t, "hello", entry["msg"])

	assert.Equal(t, logrus.InfoLevel, api.ParseLevel("verbose"))
	assert.Equal(t, logrus.DebugLevel, api.ParseLevel("debug"))
}

// TestInitTracing 测试追踪初始化
func TestInitTracing(t *testing.T) {
	assert.NoError(t, api.InitTracing(api.ServiceName, config.TracingConfig{Exporter: "none"}))
	assert.Error(t, api.InitTracing(api.ServiceName, config.TracingConfig{Exporter: "zipkin"}))
}
