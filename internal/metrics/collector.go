package metrics

import (
	"context"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"gorm.io/gorm"
)

// Collector 指标收集器
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	c.CollectOnce()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}

// CollectOnce 采集一次数据库相关指标
func (c *Collector) CollectOnce() {
	_ = UpdateDatabaseConnections(c.db)
	_ = c.updateActiveCards()
}

// updateActiveCards 统计有效收获卡的核验状态分布
func (c *Collector) updateActiveCards() error {
	var rows []struct {
		VerificationStatus string
		Count              int64
	}
	err := c.db.WithContext(c.ctx).Model(&model.HarvestCardModel{}).
		Select("verification_status, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("verification_status").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	// 没有记录的状态归零
	counts := map[string]float64{
		model.VerificationPending:  0,
		model.VerificationVerified: 0,
		model.VerificationRejected: 0,
	}
	for _, r := range rows {
		counts[r.VerificationStatus] = float64(r.Count)
	}
	for status, n := range counts {
		UpdateActiveCards(status, n)
	}
	return nil
}
