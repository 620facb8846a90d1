package repository

import (
	"context"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"gorm.io/gorm"
)

// StatusHistoryRepository 核验状态历史仓储接口
type StatusHistoryRepository interface {
	FindByCardID(ctx context.Context, cardID string) ([]*model.StatusHistoryModel, error)
}

// statusHistoryRepository 核验状态历史仓储实现
type statusHistoryRepository struct {
	db *gorm.DB
}

// NewStatusHistoryRepository 创建核验状态历史仓储
func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

// FindByCardID 根据 card_id 查找状态历史,按时间正序
func (r *statusHistoryRepository) FindByCardID(ctx context.Context, cardID string) ([]*model.StatusHistoryModel, error) {
	var histories []*model.StatusHistoryModel
	err := r.db.WithContext(ctx).Where("card_id = ?", cardID).Order("created_at ASC").Find(&histories).Error
	return histories, err
}
