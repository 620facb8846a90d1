package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 收获卡创建数
	harvestCardsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_cards_created_total",
			Help: "Total number of harvest cards created",
		},
	)

	// 核验结果
	harvestVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_verifications_total",
			Help: "Total number of harvest card verifications by terminal state",
		},
		[]string{"result"}, // found, not_found, invalid, error
	)

	// 核验状态变更
	harvestStatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_status_updates_total",
			Help: "Total number of verification status updates",
		},
		[]string{"status"},
	)

	// 事件投递
	eventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_delivered_total",
			Help: "Total number of lifecycle event deliveries",
		},
		[]string{"status"}, // success, failed, dropped
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 有效收获卡按核验状态分布
	harvestCardsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvest_cards_active",
			Help: "Number of active harvest cards by verification status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(harvestCardsCreatedTotal)
	prometheus.MustRegister(harvestVerificationsTotal)
	prometheus.MustRegister(harvestStatusUpdatesTotal)
	prometheus.MustRegister(eventsDeliveredTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(harvestCardsActive)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordCardCreated 记录收获卡创建
func RecordCardCreated() {
	harvestCardsCreatedTotal.Inc()
}

// RecordVerification 记录核验结果
func RecordVerification(result string) {
	harvestVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordStatusUpdate 记录核验状态变更
func RecordStatusUpdate(status string) {
	harvestStatusUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordEventDelivery 记录事件投递结果
func RecordEventDelivery(status string) {
	eventsDeliveredTotal.WithLabelValues(status).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateActiveCards 更新有效收获卡分布指标
func UpdateActiveCards(status string, count float64) {
	harvestCardsActive.WithLabelValues(status).Set(count)
}
