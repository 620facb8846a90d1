package container

import (
	"context"
	"fmt"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/cache"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/database"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/events"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/qrcode"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// redeliverBatch 启动时重新投递的待处理事件数量上限
const redeliverBatch = 500

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、缓存、事件和服务
type Container struct {
	cfg          *config.Config
	logger       logrus.FieldLogger
	db           *gorm.DB
	redis        *redis.Client
	codec        *qrcode.Codec
	dispatcher   *events.Dispatcher
	auditLogSvc  service.AuditLogService
	traceability service.TraceabilityService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return build(cfg, db, logger), nil
}

func build(cfg *config.Config, db *gorm.DB, logger logrus.FieldLogger) *Container {
	// 2. 初始化仓储
	cardRepo := repository.NewHarvestCardRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	// 3. 初始化二维码编解码
	codec := qrcode.NewCodec(cfg.QR)

	// 4. 初始化查询缓存,不可用时降级为直接查库
	cardCache, redisClient := cache.New(cfg.Cache, logger)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuditLog(auditLogSvc),
		service.WithCache(cardCache),
	}

	// 5. 初始化事件分发
	var dispatcher *events.Dispatcher
	if cfg.Events.Enabled {
		dispatcher = events.NewDispatcher(
			repository.NewEventRepository(db),
			events.NewSink(cfg.Events, logger),
			logger,
			events.Options{Workers: cfg.Events.Workers},
		)
		opts = append(opts, service.WithPublisher(dispatcher))
	}

	// 6. 初始化溯源服务
	traceability := service.NewTraceabilityService(cardRepo, historyRepo, codec, opts...)

	return &Container{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		codec:        codec,
		dispatcher:   dispatcher,
		auditLogSvc:  auditLogSvc,
		traceability: traceability,
	}
}

// RedeliverPending 重新投递上次运行未完成的事件
func (c *Container) RedeliverPending(ctx context.Context) {
	if c.dispatcher == nil {
		return
	}
	n, err := c.dispatcher.Redeliver(ctx, redeliverBatch)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to redeliver pending events")
		return
	}
	if n > 0 {
		c.logger.WithField("count", n).Info("Redelivering pending events")
	}
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Redis 获取缓存客户端,未启用时为 nil
func (c *Container) Redis() *redis.Client {
	return c.redis
}

// Codec 获取二维码编解码器
func (c *Container) Codec() *qrcode.Codec {
	return c.codec
}

// AuditLogService 获取审计日志服务
func (c *Container) AuditLogService() service.AuditLogService {
	return c.auditLogSvc
}

// TraceabilityService 获取溯源服务
func (c *Container) TraceabilityService() service.TraceabilityService {
	return c.traceability
}

// Close 关闭容器,清理资源
// 先停止事件分发,确保在关闭数据库前完成状态回写
func (c *Container) Close() error {
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if c.db != nil {
		return database.Close(c.db)
	}
	return nil
}
