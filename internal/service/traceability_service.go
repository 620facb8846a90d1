package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/cache"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/events"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/metrics"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/qrcode"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service")

// VerificationState 核验状态机的状态
type VerificationState string

// 核验状态: Scanned -> (Invalid | LookingUp -> (Found | NotFound))
const (
	StateScanned   VerificationState = "SCANNED"
	StateLookingUp VerificationState = "LOOKING_UP"
	StateFound     VerificationState = "FOUND"
	StateNotFound  VerificationState = "NOT_FOUND"
	StateInvalid   VerificationState = "INVALID"
	StateError     VerificationState = "ERROR"
)

// VerificationResult 核验结果
type VerificationResult struct {
	State  VerificationState       `json:"state"`
	CardID string                  `json:"card_id,omitempty"`
	Legacy bool                    `json:"legacy"` // 旧版裸编码
	Card   *model.HarvestCardModel `json:"card,omitempty"`
}

// QRCodeResult 二维码生成结果
type QRCodeResult struct {
	CardID      string         `json:"card_id"`
	Payload     qrcode.Payload `json:"payload"`
	PayloadText string         `json:"payload_text"`
	PNG         []byte         `json:"-"`
	Persisted   bool           `json:"persisted"`
}

// Base64 返回 PNG 的 base64 编码
func (r *QRCodeResult) Base64() string {
	return base64.StdEncoding.EncodeToString(r.PNG)
}

// CreateHarvestCardRequest 创建收获卡请求
type CreateHarvestCardRequest struct {
	OwnerID             string     `json:"owner_id"`
	FarmerName          string     `json:"farmer_name"`
	FarmLocation        string     `json:"farm_location"`
	CropName            string     `json:"crop_name"`
	Variety             string     `json:"variety"`
	Quantity            float64    `json:"quantity"`
	Unit                string     `json:"unit"`
	QualityGrade        string     `json:"quality_grade"`
	IsOrganic           bool       `json:"is_organic"`
	CertificationNumber string     `json:"certification_number"`
	Notes               string     `json:"notes"`
	PlantingDate        *time.Time `json:"planting_date"`
	HarvestDate         *time.Time `json:"harvest_date"`

	// 溯源信息,均为可选
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

// TraceabilityService 收获卡溯源服务接口
type TraceabilityService interface {
	Create(ctx context.Context, req *CreateHarvestCardRequest) (*model.HarvestCardModel, error)
	Verify(ctx context.Context, text string) (*VerificationResult, error)
	VerifyImage(ctx context.Context, r io.Reader) (*VerificationResult, error)
	RegenerateQR(ctx context.Context, cardID string, persist bool) (*QRCodeResult, error)
	Get(ctx context.Context, cardID string) (*model.HarvestCardModel, error)
	GetIncludingInactive(ctx context.Context, cardID string) (*model.HarvestCardModel, error)
	List(ctx context.Context, ownerID string, filter *repository.HarvestCardFilter) ([]*model.HarvestCardModel, error)
	Deactivate(ctx context.Context, cardID string) error
	UpdateVerificationStatus(ctx context.Context, cardID string, status string, reason string) (*model.HarvestCardModel, error)
	StatusHistory(ctx context.Context, cardID string) ([]*model.StatusHistoryModel, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context, ownerID string) (*repository.HarvestStats, error)
	Export(ctx context.Context, ownerID string, filter *repository.HarvestCardFilter, w io.Writer) error
}

// Option 服务可选依赖
type Option func(*traceabilityService)

// WithCache 设置核验查询缓存
func WithCache(c cache.CardCache) Option {
	return func(s *traceabilityService) { s.cache = c }
}

// WithPublisher 设置事件发布器
func WithPublisher(p events.Publisher) Option {
	return func(s *traceabilityService) { s.publisher = p }
}

// WithAuditLog 设置审计日志服务
func WithAuditLog(a AuditLogService) Option {
	return func(s *traceabilityService) { s.auditLogSvc = a }
}

// WithLogger 设置日志
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *traceabilityService) { s.logger = l }
}

// WithIDGenerator 替换收获卡 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(s *traceabilityService) { s.newID = gen }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *traceabilityService) { s.now = now }
}

type traceabilityService struct {
	repo        repository.HarvestCardRepository
	historyRepo repository.StatusHistoryRepository
	codec       *qrcode.Codec
	cache       cache.CardCache
	publisher   events.Publisher
	auditLogSvc AuditLogService
	logger      logrus.FieldLogger
	newID       func() string
	now         func() time.Time
}

// NewTraceabilityService 创建收获卡溯源服务
func NewTraceabilityService(
	repo repository.HarvestCardRepository,
	historyRepo repository.StatusHistoryRepository,
	codec *qrcode.Codec,
	opts ...Option,
) TraceabilityService {
	s := &traceabilityService{
		repo:        repo,
		historyRepo: historyRepo,
		codec:       codec,
		cache:       cache.NopCardCache{},
		publisher:   events.NopPublisher{},
		logger:      logrus.StandardLogger(),
		newID:       qrcode.NewCardID,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 创建收获卡
func (s *traceabilityService) Create(ctx context.Context, req *CreateHarvestCardRequest) (*model.HarvestCardModel, error) {
	ctx, span := tracer.Start(ctx, "TraceabilityService.Create")
	defer span.End()

	// 1. 校验并填充默认值
	card, err := s.buildCard(ctx, req)
	if err != nil {
		return nil, s.fail(span, err)
	}

	// 2. 生成 ID 并持久化,ID 冲突时重新生成并重试一次
	for attempt := 1; ; attempt++ {
		card.ID = 0
		card.CardID = s.newID()
		err = s.repo.Insert(ctx, card)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateCardID) || attempt >= 2 {
			return nil, s.fail(span, &PersistenceError{Op: "create", Err: err})
		}
		s.logger.WithField("card_id", card.CardID).Warn("Card ID collision, regenerating")
	}
	span.SetAttributes(attribute.String("card_id", card.CardID))

	// 3. 记录指标、审计和事件
	metrics.RecordCardCreated()
	s.audit(ctx, card.OwnerID, ActionCreate, card.CardID, map[string]interface{}{
		"crop_name": card.CropName,
		"quantity":  card.Quantity,
		"unit":      card.Unit,
	})
	s.publish(ctx, events.TypeCardCreated, card, map[string]interface{}{
		"crop_name":     card.CropName,
		"farm_location": card.FarmLocation,
	})

	s.logger.WithFields(logrus.Fields{
		"card_id":  card.CardID,
		"owner_id": card.OwnerID,
	}).Info("Harvest card created")
	return card, nil
}

// buildCard 按顺序校验请求字段并构造收获卡
func (s *traceabilityService) buildCard(ctx context.Context, req *CreateHarvestCardRequest) (*model.HarvestCardModel, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Reason: "is required"}
	}

	cropName := strings.TrimSpace(req.CropName)
	farmerName := strings.TrimSpace(req.FarmerName)
	farmLocation := strings.TrimSpace(req.FarmLocation)

	if cropName == "" {
		return nil, &ValidationError{Field: "crop_name", Reason: "is required"}
	}
	if farmerName == "" {
		return nil, &ValidationError{Field: "farmer_name", Reason: "is required"}
	}
	if farmLocation == "" {
		return nil, &ValidationError{Field: "farm_location", Reason: "is required"}
	}
	if !(req.Quantity > 0) {
		return nil, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if req.HarvestDate == nil || req.HarvestDate.IsZero() {
		return nil, &ValidationError{Field: "harvest_date", Reason: "is required"}
	}
	if req.PlantingDate != nil && !req.PlantingDate.IsZero() && req.HarvestDate.Before(*req.PlantingDate) {
		return nil, &ValidationError{Field: "harvest_date", Reason: "must not be before planting_date"}
	}

	qualityGrade := strings.TrimSpace(req.QualityGrade)
	if qualityGrade == "" {
		qualityGrade = model.DefaultQualityGrade
	} else if !model.IsValidQualityGrade(qualityGrade) {
		return nil, &ValidationError{Field: "quality_grade", Reason: "must be one of " + strings.Join(model.QualityGrades, ", ")}
	}

	variety := strings.TrimSpace(req.Variety)
	if variety == "" {
		variety = model.DefaultVariety
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = model.DefaultUnit
	}

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID = GetOwnerID(ctx)
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"farm_size", req.FarmSize},
		{"carbon_footprint", req.CarbonFootprint},
		{"price_per_kg", req.PricePerKg},
		{"total_revenue", req.TotalRevenue},
		{"production_cost", req.ProductionCost},
	} {
		if f.value < 0 {
			return nil, &ValidationError{Field: f.name, Reason: "must not be negative"}
		}
	}

	docs := make(map[string]datatypes.JSON, 4)
	for _, f := range []struct {
		name  string
		value json.RawMessage
	}{
		{"pesticides_used", req.PesticidesUsed},
		{"fertilizers_used", req.FertilizersUsed},
		{"weather_conditions", req.WeatherConditions},
		{"lab_test_results", req.LabTestResults},
	} {
		doc, err := jsonDocument(f.value)
		if err != nil {
			return nil, &ValidationError{Field: f.name, Reason: err.Error()}
		}
		docs[f.name] = doc
	}

	var plantingDate *time.Time
	if req.PlantingDate != nil && !req.PlantingDate.IsZero() {
		pd := *req.PlantingDate
		plantingDate = &pd
	}

	now := s.now()
	card := &model.HarvestCardModel{
		OwnerID:             ownerID,
		FarmerName:          farmerName,
		FarmLocation:        farmLocation,
		CropName:            cropName,
		Variety:             variety,
		Quantity:            req.Quantity,
		Unit:                unit,
		QualityGrade:        qualityGrade,
		IsOrganic:           req.IsOrganic,
		CertificationNumber: strings.TrimSpace(req.CertificationNumber),
		Notes:               strings.TrimSpace(req.Notes),
		PlantingDate:        plantingDate,
		HarvestDate:         *req.HarvestDate,
		VerificationStatus:  model.VerificationPending,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,

		FarmSize:             req.FarmSize,
		SoilType:             strings.TrimSpace(req.SoilType),
		IrrigationMethod:     strings.TrimSpace(req.IrrigationMethod),
		WaterSource:          strings.TrimSpace(req.WaterSource),
		PesticidesUsed:       docs["pesticides_used"],
		FertilizersUsed:      docs["fertilizers_used"],
		WeatherConditions:    docs["weather_conditions"],
		LabTestResults:       docs["lab_test_results"],
		CarbonFootprint:      req.CarbonFootprint,
		TransportationMethod: strings.TrimSpace(req.TransportationMethod),
		StorageConditions:    strings.TrimSpace(req.StorageConditions),
		ProcessingDetails:    strings.TrimSpace(req.ProcessingDetails),
		MarketDestination:    strings.TrimSpace(req.MarketDestination),
		PricePerKg:           req.PricePerKg,
		TotalRevenue:         req.TotalRevenue,
		ProductionCost:       req.ProductionCost,
	}
	card.CalculateProfitMargin()
	return card, nil
}

// jsonDocument 校验可选的 JSON 字段,空值和 null 视为未填写
func jsonDocument(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, errors.New("must be valid JSON")
	}
	return datatypes.JSON(trimmed), nil
}

// Verify 核验扫描文本
// 每次调用相互独立,结果总是携带终止状态
func (s *traceabilityService) Verify(ctx context.Context, text string) (*VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "TraceabilityService.Verify")
	defer span.End()

	result := &VerificationResult{State: StateScanned}

	// 1. 解析载荷
	cardID, legacy, err := qrcode.ExtractCardID(text)
	if err != nil {
		result.State = StateInvalid
		metrics.RecordVerification("invalid")
		return result, s.fail(span, &InvalidPayloadError{Reason: err.Error(), Err: err})
	}
	result.State = StateLookingUp
	result.CardID = cardID
	result.Legacy = legacy
	span.SetAttributes(attribute.String("card_id", cardID), attribute.Bool("legacy", legacy))

	// 2. 查询有效记录
	card, err := s.lookup(ctx, cardID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			result.State = StateNotFound
			metrics.RecordVerification("not_found")
			s.logger.WithFields(logrus.Fields{"card_id": cardID, "state": result.State}).Info("Harvest card verification")
			return result, s.fail(span, &NotFoundError{CardID: cardID})
		}
		result.State = StateError
		metrics.RecordVerification("error")
		return result, s.fail(span, &PersistenceError{Op: "verify", Err: err})
	}

	result.State = StateFound
	result.Card = card
	metrics.RecordVerification("found")
	s.publish(ctx, events.TypeCardVerified, card, map[string]interface{}{"legacy": legacy})
	s.logger.WithFields(logrus.Fields{"card_id": cardID, "state": result.State}).Info("Harvest card verification")
	return result, nil
}

// lookup 先查缓存,未命中时查询数据库并回填
func (s *traceabilityService) lookup(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	card, err := s.cache.Get(ctx, cardID)
	if err != nil {
		s.logger.WithError(err).WithField("card_id", cardID).Warn("Lookup cache read failed")
	}
	if card != nil {
		return card, nil
	}

	card, err = s.repo.FindByCardID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, card); err != nil {
		s.logger.WithError(err).WithField("card_id", cardID).Warn("Lookup cache write failed")
	}
	return card, nil
}

// VerifyImage 识别二维码图片后核验
func (s *traceabilityService) VerifyImage(ctx context.Context, r io.Reader) (*VerificationResult, error) {
	text, err := qrcode.DecodeImage(r)
	if err != nil {
		metrics.RecordVerification("invalid")
		return &VerificationResult{State: StateInvalid}, &InvalidPayloadError{Reason: err.Error(), Err: err}
	}
	return s.Verify(ctx, text)
}

// RegenerateQR 重新生成二维码,不修改 card_id
func (s *traceabilityService) RegenerateQR(ctx context.Context, cardID string, persist bool) (*QRCodeResult, error) {
	ctx, span := tracer.Start(ctx, "TraceabilityService.RegenerateQR", trace.WithAttributes(attribute.String("card_id", cardID)))
	defer span.End()

	card, err := s.Get(ctx, cardID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	payload := s.codec.BuildPayload(card.CardID, s.now())
	png, err := s.codec.Render(payload)
	if err != nil {
		return nil, s.fail(span, err)
	}
	result := &QRCodeResult{
		CardID:      card.CardID,
		Payload:     payload,
		PayloadText: payload.String(),
		PNG:         png,
	}

	if persist {
		if err := s.repo.UpdateQRCodeData(ctx, card.CardID, result.Base64()); err != nil {
			return nil, s.fail(span, s.mapStoreError("regenerate_qr", card.CardID, err))
		}
		result.Persisted = true
		s.invalidate(ctx, card.CardID)
		s.audit(ctx, GetOwnerID(ctx), ActionRegenerateQR, card.CardID, map[string]interface{}{"size": s.codec.Size})
	}
	return result, nil
}

// Get 获取有效收获卡
func (s *traceabilityService) Get(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	card, err := s.repo.FindByCardID(ctx, strings.TrimSpace(cardID))
	if err != nil {
		return nil, s.mapStoreError("get", cardID, err)
	}
	return card, nil
}

// GetIncludingInactive 获取收获卡,包含已停用的记录
func (s *traceabilityService) GetIncludingInactive(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	card, err := s.repo.FindByCardIDIncludingInactive(ctx, strings.TrimSpace(cardID))
	if err != nil {
		return nil, s.mapStoreError("get", cardID, err)
	}
	return card, nil
}

// List 查询用户的有效收获卡
func (s *traceabilityService) List(ctx context.Context, ownerID string, filter *repository.HarvestCardFilter) ([]*model.HarvestCardModel, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if filter != nil && filter.VerificationStatus != nil && !model.IsValidVerificationStatus(*filter.VerificationStatus) {
		return nil, &ValidationError{Field: "verification_status", Reason: "must be PENDING, VERIFIED or REJECTED"}
	}
	if filter != nil && filter.RecentDays > 0 {
		f := *filter
		after := s.now().AddDate(0, 0, -filter.RecentDays)
		f.HarvestedAfter = &after
		filter = &f
	}
	cards, err := s.repo.FindActiveByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return cards, nil
}

// Deactivate 停用收获卡
func (s *traceabilityService) Deactivate(ctx context.Context, cardID string) error {
	ctx, span := tracer.Start(ctx, "TraceabilityService.Deactivate", trace.WithAttributes(attribute.String("card_id", cardID)))
	defer span.End()

	card, err := s.Get(ctx, cardID)
	if err != nil {
		return s.fail(span, err)
	}
	if err := s.repo.Deactivate(ctx, card.CardID); err != nil {
		return s.fail(span, s.mapStoreError("deactivate", card.CardID, err))
	}
	card.IsActive = false

	s.invalidate(ctx, card.CardID)
	s.audit(ctx, GetOwnerID(ctx), ActionDeactivate, card.CardID, nil)
	s.publish(ctx, events.TypeCardDeactivated, card, nil)
	s.logger.WithField("card_id", card.CardID).Info("Harvest card deactivated")
	return nil
}

// UpdateVerificationStatus 更新核验状态并记录历史
// 只校验状态值,不限制状态之间的转换
func (s *traceabilityService) UpdateVerificationStatus(ctx context.Context, cardID string, status string, reason string) (*model.HarvestCardModel, error) {
	ctx, span := tracer.Start(ctx, "TraceabilityService.UpdateVerificationStatus", trace.WithAttributes(attribute.String("card_id", cardID)))
	defer span.End()

	status = strings.ToUpper(strings.TrimSpace(status))
	if !model.IsValidVerificationStatus(status) {
		return nil, s.fail(span, &ValidationError{Field: "verification_status", Reason: "must be PENDING, VERIFIED or REJECTED"})
	}

	operator := GetOwnerID(ctx)
	if operator == "" {
		operator = anonymousUser
	}
	history := &model.StatusHistoryModel{
		ID:        uuid.New().String(),
		CardID:    strings.TrimSpace(cardID),
		ToStatus:  status,
		Reason:    strings.TrimSpace(reason),
		Operator:  operator,
		CreatedAt: s.now(),
	}
	card, err := s.repo.TransitionStatus(ctx, history)
	if err != nil {
		return nil, s.fail(span, s.mapStoreError("update_status", cardID, err))
	}

	metrics.RecordStatusUpdate(status)
	s.invalidate(ctx, card.CardID)
	details := map[string]interface{}{
		"from":   history.FromStatus,
		"to":     history.ToStatus,
		"reason": history.Reason,
	}
	s.audit(ctx, operator, ActionUpdateStatus, card.CardID, details)
	s.publish(ctx, events.TypeCardStatusChanged, card, details)
	s.logger.WithFields(logrus.Fields{
		"card_id": card.CardID,
		"from":    history.FromStatus,
		"to":      history.ToStatus,
	}).Info("Verification status updated")
	return card, nil
}

// StatusHistory 查询核验状态历史
func (s *traceabilityService) StatusHistory(ctx context.Context, cardID string) ([]*model.StatusHistoryModel, error) {
	card, err := s.GetIncludingInactive(ctx, cardID)
	if err != nil {
		return nil, err
	}
	histories, err := s.historyRepo.FindByCardID(ctx, card.CardID)
	if err != nil {
		return nil, &PersistenceError{Op: "status_history", Err: err}
	}
	return histories, nil
}

// Purge 物理删除创建时间早于 olderThan 的收获卡
func (s *traceabilityService) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := tracer.Start(ctx, "TraceabilityService.Purge")
	defer span.End()

	if olderThan <= 0 {
		return 0, s.fail(span, &ValidationError{Field: "older_than", Reason: "must be positive"})
	}
	cutoff := s.now().Add(-olderThan)
	purged, err := s.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, s.fail(span, &PersistenceError{Op: "purge", Err: err})
	}
	for _, cardID := range purged {
		s.invalidate(ctx, cardID)
	}
	n := int64(len(purged))

	s.audit(ctx, GetOwnerID(ctx), ActionPurge, "*", map[string]interface{}{
		"cutoff":  cutoff,
		"deleted": n,
	})
	s.logger.WithFields(logrus.Fields{"cutoff": cutoff, "deleted": n}).Info("Harvest cards purged")
	return n, nil
}

// Stats 统计用户的有效收获卡
func (s *traceabilityService) Stats(ctx context.Context, ownerID string) (*repository.HarvestStats, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	stats, err := s.repo.Stats(ctx, ownerID)
	if err != nil {
		return nil, &PersistenceError{Op: "stats", Err: err}
	}
	return stats, nil
}

// mapStoreError 将仓储错误转换为服务错误
func (s *traceabilityService) mapStoreError(op string, cardID string, err error) error {
	if errors.Is(err, repository.ErrRecordNotFound) {
		return &NotFoundError{CardID: cardID}
	}
	return &PersistenceError{Op: op, Err: err}
}

// fail 在 span 上记录错误后原样返回
func (s *traceabilityService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// invalidate 删除缓存,失败只记录日志
func (s *traceabilityService) invalidate(ctx context.Context, cardID string) {
	if err := s.cache.Invalidate(ctx, cardID); err != nil {
		s.logger.WithError(err).WithField("card_id", cardID).Warn("Lookup cache invalidation failed")
	}
}

// audit 记录审计日志,失败只记录日志
func (s *traceabilityService) audit(ctx context.Context, userID, action, cardID string, details interface{}) {
	if s.auditLogSvc == nil {
		return
	}
	if err := s.auditLogSvc.RecordAction(ctx, userID, action, ResourceHarvestCard, cardID, details); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"card_id": cardID, "action": action}).Warn("Failed to record audit log")
	}
}

// publish 发布生命周期事件,失败只记录日志
func (s *traceabilityService) publish(ctx context.Context, eventType string, card *model.HarvestCardModel, data map[string]interface{}) {
	evt := &events.Event{
		Type:      eventType,
		CardID:    card.CardID,
		OwnerID:   card.OwnerID,
		Timestamp: s.now(),
		Data:      data,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"card_id": card.CardID, "type": eventType}).Warn("Failed to publish event")
	}
}
