package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/api"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/qrcode"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testOwner = "farmer-01"

// setupTestRouter 创建带真实服务的测试路由
func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.HarvestCardModel{}, &model.StatusHistoryModel{}, &model.AuditLogModel{}, &model.EventModel{}))

	logger, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.RateLimit.RPS = 0
	cfg.QR.Size = 256

	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	svc := service.NewTraceabilityService(
		repository.NewHarvestCardRepository(db),
		repository.NewStatusHistoryRepository(db),
		qrcode.NewCodec(cfg.QR),
		service.WithLogger(logger),
		service.WithAuditLog(auditLogSvc),
	)

	router := api.SetupRoutes(cfg, api.Dependencies{
		DB:           db,
		Traceability: svc,
		AuditLog:     auditLogSvc,
		Logger:       logger,
	})
	return router, db
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderOwnerID, testOwner)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func validCard() map[string]interface{} {
	return map[string]interface{}{
		"farmer_name":   "Ravi",
		"farm_location": "Wayanad",
		"crop_name":     "Pepper",
		"quantity":      120.5,
		"planting_date": "2024-06-01",
		"harvest_date":  "2025-01-15",
		"is_organic":    true,
	}
}

// createCard 创建收获卡并返回 card_id
func createCard(t *testing.T, router *gin.Engine, body map[string]interface{}) string {
	w := doJSON(router, http.MethodPost, "/api/v1/harvest-cards", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	return data["card_id"].(string)
}

// TestHarvestCards_Create 测试创建收获卡
func TestHarvestCards_Create(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/harvest-cards", validCard())
	assert.Equal(t, http.StatusCreated, w.Code)

	response := decode(t, w)
	assert.Equal(t, float64(0), response["code"])
	data := response["data"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(data["card_id"].(string), "HC"))
	assert.Equal(t, testOwner, data["owner_id"])
	assert.Equal(t, "Grade A", data["quality_grade"])
	assert.Equal(t, "Standard", data["variety"])
	assert.Equal(t, "kg", data["unit"])
	assert.Equal(t, "PENDING", data["verification_status"])
	assert.Equal(t, true, data["is_active"])
}

// TestHarvestCards_Create_Validation 测试创建参数校验
func TestHarvestCards_Create_Validation(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		field  string
	}{
		{"缺少作物名称", func(b map[string]interface{}) { delete(b, "crop_name") }, "crop_name"},
		{"空白农户姓名", func(b map[string]interface{}) { b["farmer_name"] = "   " }, "farmer_name"},
		{"数量为零", func(b map[string]interface{}) { b["quantity"] = 0 }, "quantity"},
		{"收获早于种植", func(b map[string]interface{}) { b["harvest_date"] = "2024-01-01" }, "harvest_date"},
		{"日期格式错误", func(b map[string]interface{}) { b["harvest_date"] = "15/01/2025" }, "harvest_date"},
		{"无效质量等级", func(b map[string]interface{}) { b["quality_grade"] = "Grade Z" }, "quality_grade"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validCard()
			tt.mutate(body)

			w := doJSON(router, http.MethodPost, "/api/v1/harvest-cards", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			response := decode(t, w)
			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.field, data["field"])
		})
	}
}

// TestHarvestCards_Create_InvalidJSON 测试非法请求体
func TestHarvestCards_Create_InvalidJSON(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest-cards", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHarvestCards_ListAndFilter 测试查询和过滤
func TestHarvestCards_ListAndFilter(t *testing.T) {
	router, _ := setupTestRouter(t)

	createCard(t, router, validCard())
	rice := validCard()
	rice["crop_name"] = "Rice"
	rice["is_organic"] = false
	rice["harvest_date"] = "2025-03-01"
	createCard(t, router, rice)

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	items := data["items"].([]interface{})
	// 按收获日期倒序
	assert.Equal(t, "Rice", items[0].(map[string]interface{})["crop_name"])

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards?organic=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards?harvested_from=2025-02-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards?organic=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards?verification_status=unknown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHarvestCards_ProvenanceAndFilters 测试溯源信息与收入、低碳、二维码过滤
func TestHarvestCards_ProvenanceAndFilters(t *testing.T) {
	router, _ := setupTestRouter(t)

	pepper := validCard()
	pepper["soil_type"] = "Laterite"
	pepper["pesticides_used"] = []map[string]interface{}{{"name": "Neem oil"}}
	pepper["carbon_footprint"] = 8.5
	pepper["total_revenue"] = 60000
	pepper["production_cost"] = 45000
	pepperID := createCard(t, router, pepper)

	rice := validCard()
	rice["crop_name"] = "Rice"
	rice["carbon_footprint"] = 55
	rice["total_revenue"] = 9000
	createCard(t, router, rice)

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+pepperID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Laterite", data["soil_type"])
	assert.InDelta(t, 25.0, data["profit_margin"].(float64), 0.001)
	assert.Len(t, data["pesticides_used"], 1)

	listed := func(query string) []string {
		w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards?"+query, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		items := decode(t, w)["data"].(map[string]interface{})["items"].([]interface{})
		crops := make([]string, 0, len(items))
		for _, item := range items {
			crops = append(crops, item.(map[string]interface{})["crop_name"].(string))
		}
		return crops
	}

	assert.Equal(t, []string{"Pepper"}, listed("min_revenue=50000"))
	assert.Equal(t, []string{"Pepper", "Rice"}, listed("max_carbon_footprint=100"))
	assert.Equal(t, []string{"Pepper"}, listed("max_carbon_footprint=10"))
	assert.Empty(t, listed("with_qr=true"))

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+pepperID+"/qr?persist=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Pepper"}, listed("with_qr=true"))

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(69000), stats["total_revenue"])
	assert.InDelta(t, 25.0, stats["average_profit_margin"].(float64), 0.001)
	assert.Equal(t, float64(1), stats["with_qr_count"])

	for _, query := range []string{"min_revenue=-1", "max_carbon_footprint=abc", "recent_days=0", "with_qr=sometimes"} {
		w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}

	bad := validCard()
	bad["total_revenue"] = -5
	w = doJSON(router, http.MethodPost, "/api/v1/harvest-cards", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHarvestCards_List_OwnerRequired 测试缺少用户 ID
func TestHarvestCards_List_OwnerRequired(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/harvest-cards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 支持 owner_id 查询参数
	req = httptest.NewRequest(http.MethodGet, "/api/v1/harvest-cards?owner_id="+testOwner, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestHarvestCards_GetAndDeactivate 测试获取与停用
func TestHarvestCards_GetAndDeactivate(t *testing.T) {
	router, _ := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/harvest-cards/"+cardID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"?include_inactive=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["is_active"])

	// 重复停用
	w = doJSON(router, http.MethodDelete, "/api/v1/harvest-cards/"+cardID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 审计记录按时间倒序
	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode(t, w)["data"].([]interface{})
	require.Len(t, logs, 2)
	actions := []interface{}{
		logs[0].(map[string]interface{})["action"],
		logs[1].(map[string]interface{})["action"],
	}
	assert.ElementsMatch(t, []interface{}{"create", "deactivate"}, actions)
}

// TestHarvestCards_InvalidCardID 测试非法 card_id
func TestHarvestCards_InvalidCardID(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/bad%20id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHarvestCards_StatusAndHistory 测试核验状态更新和历史
func TestHarvestCards_StatusAndHistory(t *testing.T) {
	router, _ := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodPut, "/api/v1/harvest-cards/"+cardID+"/status", map[string]string{
		"status": "verified",
		"reason": "inspected",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "VERIFIED", data["verification_status"])

	w = doJSON(router, http.MethodPut, "/api/v1/harvest-cards/"+cardID+"/status", map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/harvest-cards/"+cardID+"/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	histories := decode(t, w)["data"].([]interface{})
	require.Len(t, histories, 1)
	history := histories[0].(map[string]interface{})
	assert.Equal(t, "PENDING", history["from_status"])
	assert.Equal(t, "VERIFIED", history["to_status"])
	assert.Equal(t, testOwner, history["operator"])
}

// TestHarvestCards_StatsAndExport 测试统计与导出
func TestHarvestCards_StatsAndExport(t *testing.T) {
	router, _ := setupTestRouter(t)
	createCard(t, router, validCard())
	createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	assert.InDelta(t, 241.0, data["total_quantity"], 0.001)
	assert.Equal(t, []interface{}{"Pepper"}, data["crops"])

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	// XLSX 为 zip 格式
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

// TestHarvestCards_QRCode 测试二维码生成
func TestHarvestCards_QRCode(t *testing.T) {
	router, db := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/qr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	text, err := qrcode.DecodeBytes(w.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, qrcode.PayloadPrefix))

	w = doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/qr?format=json&persist=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, cardID, data["card_id"])
	assert.Equal(t, true, data["persisted"])
	_, err = base64.StdEncoding.DecodeString(data["image_base64"].(string))
	assert.NoError(t, err)

	var card model.HarvestCardModel
	require.NoError(t, db.Where("card_id = ?", cardID).First(&card).Error)
	assert.Equal(t, data["image_base64"], card.QRCodeData)
}

// TestVerify_Payload 测试扫描文本核验
func TestVerify_Payload(t *testing.T) {
	router, _ := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/qr?format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	payloadText := decode(t, w)["data"].(map[string]interface{})["payload_text"].(string)

	w = doJSON(router, http.MethodPost, "/api/v1/verify", map[string]string{"payload": payloadText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "FOUND", data["state"])
	assert.Equal(t, false, data["legacy"])
	assert.Equal(t, "Pepper", data["card"].(map[string]interface{})["crop_name"])

	// 旧版裸编码
	w = doJSON(router, http.MethodPost, "/api/v1/verify", map[string]string{"payload": cardID})
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["legacy"])
}

// TestVerify_Terminal 测试核验失败的终止状态
func TestVerify_Terminal(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/verify", map[string]string{"payload": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "INVALID", data["state"])

	w = doJSON(router, http.MethodPost, "/api/v1/verify", map[string]string{"payload": "HARVEST_CARD|ID:HCMISSING|APP:Kerala_Farm_Assistant"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	response := decode(t, w)
	data = response["data"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", data["state"])
	assert.Equal(t, "HCMISSING", data["card_id"])
	assert.NotEmpty(t, response["message"])
}

// TestVerify_ByID 测试核验地址
func TestVerify_ByID(t *testing.T) {
	router, _ := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/verify/"+cardID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "FOUND", data["state"])
	assert.Equal(t, false, data["legacy"])

	doJSON(router, http.MethodDelete, "/api/v1/harvest-cards/"+cardID, nil)
	w = doJSON(router, http.MethodGet, "/api/v1/verify/"+cardID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestVerify_Image 测试上传二维码图片核验
func TestVerify_Image(t *testing.T) {
	router, _ := setupTestRouter(t)
	cardID := createCard(t, router, validCard())

	w := doJSON(router, http.MethodGet, "/api/v1/harvest-cards/"+cardID+"/qr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	png := w.Body.Bytes()

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "card.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/verify/image", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	w = upload(png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "FOUND", data["state"])
	assert.Equal(t, cardID, data["card_id"])

	w = upload([]byte("not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 缺少文件
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify/image", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestRoutes_NoRouteAndMetrics 测试未知路由和指标端点
func TestRoutes_NoRouteAndMetrics(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = doJSON(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api_requests_total")

	w = doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(api.HeaderRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
