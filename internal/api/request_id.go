package api

import (
	"strings"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 请求头
const (
	HeaderRequestID = "X-Request-ID"
	HeaderOwnerID   = "X-Owner-ID"
)

// RequestIDMiddleware 请求 ID 中间件
// 同时把请求信息写入 request context,供服务层审计使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := service.WithRequestInfo(c.Request.Context(), service.RequestInfo{
			RequestID: requestID,
			OwnerID:   strings.TrimSpace(c.GetHeader(HeaderOwnerID)),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
