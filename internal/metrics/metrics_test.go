package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TestRecordVerification 测试核验计数
func TestRecordVerification(t *testing.T) {
	before := testutil.ToFloat64(harvestVerificationsTotal.WithLabelValues("found"))
	RecordVerification("found")
	assert.Equal(t, before+1, testutil.ToFloat64(harvestVerificationsTotal.WithLabelValues("found")))
}

// TestRecordCardCreated 测试创建计数
func TestRecordCardCreated(t *testing.T) {
	before := testutil.ToFloat64(harvestCardsCreatedTotal)
	RecordCardCreated()
	RecordCardCreated()
	assert.Equal(t, before+2, testutil.ToFloat64(harvestCardsCreatedTotal))
}

// TestHandler 测试指标输出
func TestHandler(t *testing.T) {
	RecordAPIRequest("GET", "/health", 200, 0.01)
	RecordEventDelivery("success")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "api_requests_total")
	assert.Contains(t, w.Body.String(), "events_delivered_total")
}

// TestUpdateDatabaseConnections_Nil 测试空连接
func TestUpdateDatabaseConnections_Nil(t *testing.T) {
	assert.Error(t, UpdateDatabaseConnections(nil))
}

// TestCollector_ActiveCards 测试有效收获卡分布采集
func TestCollector_ActiveCards(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.HarvestCardModel{}))

	now := time.Now()
	cards := []*model.HarvestCardModel{
		{CardID: "HC1", FarmerName: "a", FarmLocation: "b", CropName: "Rice", Quantity: 1, Unit: "kg", QualityGrade: "Grade A", HarvestDate: now, VerificationStatus: model.VerificationVerified, IsActive: true},
		{CardID: "HC2", FarmerName: "a", FarmLocation: "b", CropName: "Rice", Quantity: 1, Unit: "kg", QualityGrade: "Grade A", HarvestDate: now, VerificationStatus: model.VerificationVerified, IsActive: true},
		{CardID: "HC3", FarmerName: "a", FarmLocation: "b", CropName: "Rice", Quantity: 1, Unit: "kg", QualityGrade: "Grade A", HarvestDate: now, VerificationStatus: model.VerificationPending, IsActive: false},
	}
	require.NoError(t, db.Create(&cards).Error)

	c := NewCollector(db, time.Hour)
	c.CollectOnce()

	assert.Equal(t, 2.0, testutil.ToFloat64(harvestCardsActive.WithLabelValues(model.VerificationVerified)))
	assert.Equal(t, 0.0, testutil.ToFloat64(harvestCardsActive.WithLabelValues(model.VerificationPending)))

	c.Start()
	c.Stop()
}
