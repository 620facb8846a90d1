package api

import (
	"net/http"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/metrics"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies 路由依赖
type Dependencies struct {
	DB           *gorm.DB
	Redis        *redis.Client // 可选
	Traceability service.TraceabilityService
	AuditLog     service.AuditLogService // 可选
	Logger       logrus.FieldLogger
}

// SetupRoutes 配置路由
func SetupRoutes(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = GetLogger()
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(I18nMiddleware())
	router.Use(TracingMiddleware())
	router.Use(RequestLogMiddleware(logger))
	router.Use(ErrorHandlerMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	if cfg.RateLimit.RPS > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.Redis)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	harvestController := NewHarvestController(deps.Traceability, deps.AuditLog)
	verifyController := NewVerifyController(deps.Traceability)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 收获卡路由
		cards := v1.Group("/harvest-cards")
		{
			// 集合级路由（必须在 /:card_id 之前）
			cards.POST("", harvestController.Create)
			cards.GET("", harvestController.List)
			cards.GET("/stats", harvestController.Stats)
			cards.GET("/export", harvestController.Export)

			cards.GET("/:card_id", harvestController.Get)
			cards.DELETE("/:card_id", harvestController.Deactivate)
			cards.PUT("/:card_id/status", harvestController.UpdateStatus)
			cards.GET("/:card_id/history", harvestController.History)
			cards.GET("/:card_id/audit", harvestController.AuditTrail)
			cards.GET("/:card_id/qr", harvestController.QRCode)
		}

		// 扫码核验路由
		verify := v1.Group("/verify")
		{
			verify.POST("", verifyController.Verify)
			verify.POST("/image", verifyController.VerifyImage)
			verify.GET("/:card_id", verifyController.VerifyByID)
		}
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, T(c, MsgRouteNotFound), "the requested route does not exist")
	})

	return router
}
