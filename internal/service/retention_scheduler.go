package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RetentionScheduler 收获卡保留期清理调度器
type RetentionScheduler struct {
	traceability TraceabilityService
	config       *RetentionScheduleConfig
	logger       logrus.FieldLogger
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// RetentionScheduleConfig 清理计划配置
type RetentionScheduleConfig struct {
	RetentionDays int           // 保留天数,0 表示不清理
	Interval      time.Duration // 清理间隔
}

// NewRetentionScheduler 创建清理调度器
func NewRetentionScheduler(traceability TraceabilityService, config *RetentionScheduleConfig, logger logrus.FieldLogger) *RetentionScheduler {
	if config == nil {
		config = &RetentionScheduleConfig{}
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour // 每天执行一次
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &RetentionScheduler{
		traceability: traceability,
		config:       config,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start 启动清理调度器,保留天数为 0 时不启动
func (s *RetentionScheduler) Start(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		return
	}
	s.wg.Add(1)
	go s.schedule(ctx)
}

// Stop 停止清理调度器
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Config 获取清理配置
func (s *RetentionScheduler) Config() *RetentionScheduleConfig {
	return s.config
}

func (s *RetentionScheduler) schedule(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// 立即执行一次
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce 执行一次清理,返回删除数量
func (s *RetentionScheduler) RunOnce(ctx context.Context) int64 {
	olderThan := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	n, err := s.traceability.Purge(ctx, olderThan)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to purge expired harvest cards")
		return 0
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{
			"count":          n,
			"retention_days": s.config.RetentionDays,
		}).Info("Purged expired harvest cards")
	}
	return n
}
