package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/google/uuid"
)

// 审计资源类型和操作
const (
	ResourceHarvestCard = "harvest_card"

	ActionCreate       = "create"
	ActionDeactivate   = "deactivate"
	ActionUpdateStatus = "update_status"
	ActionRegenerateQR = "regenerate_qr"
	ActionPurge        = "purge"
)

// anonymousUser 无法识别操作人时使用
const anonymousUser = "anonymous"

type contextKey string

// context 中携带的请求信息
const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyOwnerID   contextKey = "owner_id"
	ContextKeyIP        contextKey = "ip"
	ContextKeyUserAgent contextKey = "user_agent"
)

// RequestInfo 请求上下文信息
type RequestInfo struct {
	RequestID string
	OwnerID   string
	IP        string
	UserAgent string
}

// WithRequestInfo 将请求信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	ctx = context.WithValue(ctx, ContextKeyRequestID, info.RequestID)
	ctx = context.WithValue(ctx, ContextKeyOwnerID, info.OwnerID)
	ctx = context.WithValue(ctx, ContextKeyIP, info.IP)
	return context.WithValue(ctx, ContextKeyUserAgent, info.UserAgent)
}

func contextString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetOwnerID 从 context 获取当前用户 ID
func GetOwnerID(ctx context.Context) string {
	return contextString(ctx, ContextKeyOwnerID)
}

// GetRequestID 从 context 获取请求 ID
func GetRequestID(ctx context.Context) string {
	return contextString(ctx, ContextKeyRequestID)
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, userID string, action string, resourceType string, resourceID string, details interface{}) error
	History(ctx context.Context, resourceType string, resourceID string) ([]*model.AuditLogModel, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(
	ctx context.Context,
	userID string,
	action string,
	resourceType string,
	resourceID string,
	details interface{},
) error {
	// 序列化详情
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	if userID == "" {
		userID = anonymousUser
	}

	auditLog := &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    GetRequestID(ctx),
		IP:           contextString(ctx, ContextKeyIP),
		UserAgent:    contextString(ctx, ContextKeyUserAgent),
		Details:      detailsJSON,
		CreatedAt:    time.Now(),
	}

	return s.auditRepo.Save(ctx, auditLog)
}

// History 查询资源的审计记录
func (s *auditLogService) History(ctx context.Context, resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByResource(ctx, resourceType, resourceID)
}
