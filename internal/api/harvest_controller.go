package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/utils"
	"github.com/gin-gonic/gin"
)

// xlsxContentType XLSX 文件类型
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HarvestController 收获卡控制器
type HarvestController struct {
	traceabilityService service.TraceabilityService
	auditLogService     service.AuditLogService
}

// NewHarvestController 创建收获卡控制器
func NewHarvestController(traceabilityService service.TraceabilityService, auditLogService service.AuditLogService) *HarvestController {
	return &HarvestController{
		traceabilityService: traceabilityService,
		auditLogService:     auditLogService,
	}
}

// createHarvestCardBody 创建收获卡请求体,日期支持 2006-01-02 或 RFC3339
type createHarvestCardBody struct {
	OwnerID             string  `json:"owner_id"`
	FarmerName          string  `json:"farmer_name"`
	FarmLocation        string  `json:"farm_location"`
	CropName            string  `json:"crop_name"`
	Variety             string  `json:"variety"`
	Quantity            float64 `json:"quantity"`
	Unit                string  `json:"unit"`
	QualityGrade        string  `json:"quality_grade"`
	IsOrganic           bool    `json:"is_organic"`
	CertificationNumber string  `json:"certification_number"`
	Notes               string  `json:"notes"`
	PlantingDate        string  `json:"planting_date"`
	HarvestDate         string  `json:"harvest_date"`

	FarmSize             float64         `json:"farm_size"`
	SoilType             string          `json:"soil_type"`
	IrrigationMethod     string          `json:"irrigation_method"`
	WaterSource          string          `json:"water_source"`
	PesticidesUsed       json.RawMessage `json:"pesticides_used"`
	FertilizersUsed      json.RawMessage `json:"fertilizers_used"`
	WeatherConditions    json.RawMessage `json:"weather_conditions"`
	LabTestResults       json.RawMessage `json:"lab_test_results"`
	CarbonFootprint      float64         `json:"carbon_footprint"`
	TransportationMethod string          `json:"transportation_method"`
	StorageConditions    string          `json:"storage_conditions"`
	ProcessingDetails    string          `json:"processing_details"`
	MarketDestination    string          `json:"market_destination"`
	PricePerKg           float64         `json:"price_per_kg"`
	TotalRevenue         float64         `json:"total_revenue"`
	ProductionCost       float64         `json:"production_cost"`
}

// updateStatusBody 更新核验状态请求体
type updateStatusBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// validateCardID 验证收获卡 ID 并返回错误响应（如果无效）
func validateCardID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateCardID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid card ID", err.Error())
		return false
	}
	return true
}

// ownerFrom 获取请求的用户 ID,优先使用请求头
func ownerFrom(ctx *gin.Context) (string, bool) {
	owner := strings.TrimSpace(ctx.GetHeader(HeaderOwnerID))
	if owner == "" {
		owner = strings.TrimSpace(ctx.Query("owner_id"))
	}
	if err := utils.ValidateOwnerID(owner); err != nil {
		ErrorWithData(ctx, http.StatusBadRequest, "invalid owner ID", err.Error(), gin.H{"field": "owner_id"})
		return "", false
	}
	return owner, true
}

// parseDate 解析日期
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("expected YYYY-MM-DD or RFC3339 date, got %q", value)
	}
	return &t, nil
}

// Create 创建收获卡
func (c *HarvestController) Create(ctx *gin.Context) {
	var body createHarvestCardBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	plantingDate, err := parseDate(body.PlantingDate)
	if err != nil {
		HandleServiceError(ctx, &service.ValidationError{Field: "planting_date", Reason: err.Error()}, nil)
		return
	}
	harvestDate, err := parseDate(body.HarvestDate)
	if err != nil {
		HandleServiceError(ctx, &service.ValidationError{Field: "harvest_date", Reason: err.Error()}, nil)
		return
	}

	owner := strings.TrimSpace(ctx.GetHeader(HeaderOwnerID))
	if owner == "" {
		owner = strings.TrimSpace(body.OwnerID)
	}

	card, err := c.traceabilityService.Create(ctx.Request.Context(), &service.CreateHarvestCardRequest{
		OwnerID:             owner,
		FarmerName:          utils.SanitizeString(body.FarmerName),
		FarmLocation:        utils.SanitizeString(body.FarmLocation),
		CropName:            utils.SanitizeString(body.CropName),
		Variety:             utils.SanitizeString(body.Variety),
		Quantity:            body.Quantity,
		Unit:                utils.SanitizeString(body.Unit),
		QualityGrade:        body.QualityGrade,
		IsOrganic:           body.IsOrganic,
		CertificationNumber: utils.SanitizeString(body.CertificationNumber),
		Notes:               utils.SanitizeString(body.Notes),
		PlantingDate:        plantingDate,
		HarvestDate:         harvestDate,

		FarmSize:             body.FarmSize,
		SoilType:             utils.SanitizeString(body.SoilType),
		IrrigationMethod:     utils.SanitizeString(body.IrrigationMethod),
		WaterSource:          utils.SanitizeString(body.WaterSource),
		PesticidesUsed:       body.PesticidesUsed,
		FertilizersUsed:      body.FertilizersUsed,
		WeatherConditions:    body.WeatherConditions,
		LabTestResults:       body.LabTestResults,
		CarbonFootprint:      body.CarbonFootprint,
		TransportationMethod: utils.SanitizeString(body.TransportationMethod),
		StorageConditions:    utils.SanitizeString(body.StorageConditions),
		ProcessingDetails:    utils.SanitizeString(body.ProcessingDetails),
		MarketDestination:    utils.SanitizeString(body.MarketDestination),
		PricePerKg:           body.PricePerKg,
		TotalRevenue:         body.TotalRevenue,
		ProductionCost:       body.ProductionCost,
	})
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Created(ctx, card)
}

// filterFrom 从查询参数构造过滤器
func filterFrom(ctx *gin.Context) (*repository.HarvestCardFilter, error) {
	filter := &repository.HarvestCardFilter{}
	optional := func(key string) *string {
		if v := strings.TrimSpace(ctx.Query(key)); v != "" {
			return &v
		}
		return nil
	}

	filter.CropName = optional("crop_name")
	filter.QualityGrade = optional("quality_grade")
	filter.FarmLocation = optional("farm_location")
	filter.Search = optional("q")
	if status := optional("verification_status"); status != nil {
		upper := strings.ToUpper(*status)
		filter.VerificationStatus = &upper
	}

	if v := ctx.Query("organic"); v != "" {
		organic, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &service.ValidationError{Field: "organic", Reason: "must be a boolean"}
		}
		filter.OrganicOnly = organic
	}
	if v := ctx.Query("with_qr"); v != "" {
		withQR, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &service.ValidationError{Field: "with_qr", Reason: "must be a boolean"}
		}
		filter.WithQR = withQR
	}
	if v := ctx.Query("recent_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, &service.ValidationError{Field: "recent_days", Reason: "must be a positive integer"}
		}
		filter.RecentDays = days
	}
	for key, dst := range map[string]**float64{
		"min_revenue":          &filter.MinRevenue,
		"max_carbon_footprint": &filter.MaxCarbonFootprint,
	} {
		if v := ctx.Query(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return nil, &service.ValidationError{Field: key, Reason: "must be a non-negative number"}
			}
			*dst = &f
		}
	}

	var err error
	if filter.HarvestedFrom, err = parseDate(ctx.Query("harvested_from")); err != nil {
		return nil, &service.ValidationError{Field: "harvested_from", Reason: err.Error()}
	}
	if filter.HarvestedTo, err = parseDate(ctx.Query("harvested_to")); err != nil {
		return nil, &service.ValidationError{Field: "harvested_to", Reason: err.Error()}
	}
	return filter, nil
}

// List 查询当前用户的有效收获卡
func (c *HarvestController) List(ctx *gin.Context) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return
	}
	filter, err := filterFrom(ctx)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	cards, err := c.traceabilityService.List(ctx.Request.Context(), owner, filter)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, gin.H{
		"items": cards,
		"total": len(cards),
	})
}

// Stats 统计当前用户的收获卡
func (c *HarvestController) Stats(ctx *gin.Context) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return
	}

	stats, err := c.traceabilityService.Stats(ctx.Request.Context(), owner)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, stats)
}

// Export 导出当前用户的收获卡为 XLSX
func (c *HarvestController) Export(ctx *gin.Context) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return
	}
	filter, err := filterFrom(ctx)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	// 先写入缓冲区,失败时仍可返回 JSON 错误
	var buf bytes.Buffer
	if err := c.traceabilityService.Export(ctx.Request.Context(), owner, filter, &buf); err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	filename := fmt.Sprintf("harvest-cards-%s.xlsx", time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Get 获取收获卡
// include_inactive=true 时包含已停用的记录
func (c *HarvestController) Get(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	get := c.traceabilityService.Get
	if includeInactive, _ := strconv.ParseBool(ctx.Query("include_inactive")); includeInactive {
		get = c.traceabilityService.GetIncludingInactive
	}

	card, err := get(ctx.Request.Context(), cardID)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, card)
}

// Deactivate 停用收获卡
func (c *HarvestController) Deactivate(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	if err := c.traceabilityService.Deactivate(ctx.Request.Context(), cardID); err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, gin.H{"card_id": cardID, "is_active": false})
}

// UpdateStatus 更新核验状态
func (c *HarvestController) UpdateStatus(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	var body updateStatusBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	card, err := c.traceabilityService.UpdateVerificationStatus(ctx.Request.Context(), cardID, body.Status, utils.SanitizeString(body.Reason))
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, card)
}

// History 查询核验状态历史
func (c *HarvestController) History(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	histories, err := c.traceabilityService.StatusHistory(ctx.Request.Context(), cardID)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	Success(ctx, histories)
}

// AuditTrail 查询收获卡的审计记录
func (c *HarvestController) AuditTrail(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}
	if c.auditLogService == nil {
		Error(ctx, http.StatusNotImplemented, "audit log not configured", "")
		return
	}

	// 已停用的收获卡也保留审计记录
	card, err := c.traceabilityService.GetIncludingInactive(ctx.Request.Context(), cardID)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	logs, err := c.auditLogService.History(ctx.Request.Context(), service.ResourceHarvestCard, card.CardID)
	if err != nil {
		HandleServiceError(ctx, &service.PersistenceError{Op: "audit_trail", Err: err}, nil)
		return
	}

	entries := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		entry := auditEntry{
			ID:        l.ID,
			UserID:    l.UserID,
			Action:    l.Action,
			RequestID: l.RequestID,
			IP:        l.IP,
			CreatedAt: l.CreatedAt,
		}
		if len(l.Details) > 0 && string(l.Details) != "null" {
			entry.Details = json.RawMessage(l.Details)
		}
		entries = append(entries, entry)
	}
	Success(ctx, entries)
}

// auditEntry 审计记录响应
type auditEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	IP        string          `json:"ip,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// QRCode 生成收获卡二维码
// 默认返回 PNG,format=json 时返回载荷和 base64 图片;persist=true 时缓存到记录中
func (c *HarvestController) QRCode(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	persist, _ := strconv.ParseBool(ctx.Query("persist"))
	result, err := c.traceabilityService.RegenerateQR(ctx.Request.Context(), cardID, persist)
	if err != nil {
		HandleServiceError(ctx, err, nil)
		return
	}

	if ctx.Query("format") == "json" {
		Success(ctx, gin.H{
			"card_id":      result.CardID,
			"payload":      result.Payload,
			"payload_text": result.PayloadText,
			"image_base64": result.Base64(),
			"persisted":    result.Persisted,
		})
		return
	}

	ctx.Header("Content-Disposition", `inline; filename="`+result.CardID+`.png"`)
	ctx.Data(http.StatusOK, "image/png", result.PNG)
}
