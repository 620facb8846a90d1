package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound 记录不存在(或已停用)
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateCardID card_id 已存在
	ErrDuplicateCardID = errors.New("duplicate card id")
	// ErrCardIDImmutable card_id 创建后不可修改
	ErrCardIDImmutable = errors.New("card id is immutable")
)

// HarvestCardRepository 收获卡仓储接口
type HarvestCardRepository interface {
	Insert(ctx context.Context, card *model.HarvestCardModel) error
	Update(ctx context.Context, card *model.HarvestCardModel) error
	FindByCardID(ctx context.Context, cardID string) (*model.HarvestCardModel, error)
	FindByCardIDIncludingInactive(ctx context.Context, cardID string) (*model.HarvestCardModel, error)
	FindActiveByOwner(ctx context.Context, ownerID string, filter *HarvestCardFilter) ([]*model.HarvestCardModel, error)
	Deactivate(ctx context.Context, cardID string) error
	UpdateVerificationStatus(ctx context.Context, cardID string, status string) error
	TransitionStatus(ctx context.Context, history *model.StatusHistoryModel) (*model.HarvestCardModel, error)
	UpdateQRCodeData(ctx context.Context, cardID string, data string) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	Stats(ctx context.Context, ownerID string) (*HarvestStats, error)
}

// HarvestCardFilter 收获卡查询过滤器
type HarvestCardFilter struct {
	CropName           *string
	VerificationStatus *string
	QualityGrade       *string
	FarmLocation       *string
	OrganicOnly        bool
	HarvestedFrom      *time.Time
	HarvestedTo        *time.Time
	HarvestedAfter     *time.Time
	Search             *string  // 作物名称或品种模糊匹配
	WithQR             bool     // 仅返回已保存二维码的记录
	MinRevenue         *float64 // 高收入,按收入倒序
	MaxCarbonFootprint *float64 // 低碳,按碳足迹正序
	RecentDays         int      // 最近 N 天收获,由服务层换算为 HarvestedAfter
}

// HarvestStats 收获统计
type HarvestStats struct {
	Count               int64    `json:"count"`
	TotalQuantity       float64  `json:"total_quantity"`
	TotalRevenue        float64  `json:"total_revenue"`
	AverageProfitMargin float64  `json:"average_profit_margin"` // 仅统计利润率为正的记录
	OrganicCount        int64    `json:"organic_count"`
	WithQRCount         int64    `json:"with_qr_count"`
	Crops               []string `json:"crops"`
	Locations           []string `json:"locations"`
}

// harvestCardRepository 收获卡仓储实现
type harvestCardRepository struct {
	db *gorm.DB
}

// NewHarvestCardRepository 创建收获卡仓储
func NewHarvestCardRepository(db *gorm.DB) HarvestCardRepository {
	return &harvestCardRepository{db: db}
}

// Insert 插入收获卡
// 先检查 card_id 是否存在,再依赖唯一索引兜底并发插入
func (r *harvestCardRepository) Insert(ctx context.Context, card *model.HarvestCardModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.HarvestCardModel{}).Where("card_id = ?", card.CardID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check card id: %w", err)
		}
		if count > 0 {
			return ErrDuplicateCardID
		}
		if err := tx.Create(card).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCardID
			}
			return fmt.Errorf("failed to insert harvest card: %w", err)
		}
		return nil
	})
}

// Update 更新收获卡
// card_id 和 created_at 创建后不可修改
func (r *harvestCardRepository) Update(ctx context.Context, card *model.HarvestCardModel) error {
	if card.ID == 0 {
		return ErrRecordNotFound
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored model.HarvestCardModel
		if err := tx.Select("id", "card_id", "created_at").Where("id = ?", card.ID).First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("failed to check harvest card: %w", err)
		}
		if stored.CardID != card.CardID {
			return ErrCardIDImmutable
		}

		card.CreatedAt = stored.CreatedAt
		card.UpdatedAt = time.Now()
		if err := tx.Omit("card_id", "created_at").Save(card).Error; err != nil {
			return fmt.Errorf("failed to update harvest card: %w", err)
		}
		return nil
	})
}

// FindByCardID 根据 card_id 查找有效的收获卡
// 已停用的收获卡视为不存在
func (r *harvestCardRepository) FindByCardID(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("card_id = ? AND is_active = ?", cardID, true))
}

// FindByCardIDIncludingInactive 根据 card_id 查找收获卡,包含已停用的记录
func (r *harvestCardRepository) FindByCardIDIncludingInactive(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("card_id = ?", cardID))
}

func (r *harvestCardRepository) findOne(ctx context.Context, query *gorm.DB) (*model.HarvestCardModel, error) {
	var card model.HarvestCardModel
	if err := query.First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find harvest card: %w", err)
	}
	return &card, nil
}

// FindActiveByOwner 查找用户所有有效的收获卡,按收获日期倒序
func (r *harvestCardRepository) FindActiveByOwner(ctx context.Context, ownerID string, filter *HarvestCardFilter) ([]*model.HarvestCardModel, error) {
	var cards []*model.HarvestCardModel
	query := r.db.WithContext(ctx).Model(&model.HarvestCardModel{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true)

	if filter != nil {
		if filter.CropName != nil {
			query = query.Where("crop_name = ?", *filter.CropName)
		}
		if filter.VerificationStatus != nil {
			query = query.Where("verification_status = ?", *filter.VerificationStatus)
		}
		if filter.QualityGrade != nil {
			query = query.Where("quality_grade = ?", *filter.QualityGrade)
		}
		if filter.FarmLocation != nil {
			query = query.Where("farm_location = ?", *filter.FarmLocation)
		}
		if filter.OrganicOnly {
			query = query.Where("is_organic = ?", true)
		}
		if filter.HarvestedFrom != nil {
			query = query.Where("harvest_date >= ?", *filter.HarvestedFrom)
		}
		if filter.HarvestedTo != nil {
			query = query.Where("harvest_date <= ?", *filter.HarvestedTo)
		}
		if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
			like := "%" + strings.TrimSpace(*filter.Search) + "%"
			query = query.Where("(crop_name LIKE ? OR variety LIKE ?)", like, like)
		}
		if filter.HarvestedAfter != nil {
			query = query.Where("harvest_date > ?", *filter.HarvestedAfter)
		}
		if filter.WithQR {
			query = query.Where("qr_code_data IS NOT NULL AND qr_code_data <> ''")
		}
		if filter.MinRevenue != nil {
			query = query.Where("total_revenue >= ?", *filter.MinRevenue).Order("total_revenue DESC")
		}
		if filter.MaxCarbonFootprint != nil {
			query = query.Where("carbon_footprint <= ?", *filter.MaxCarbonFootprint).Order("carbon_footprint ASC")
		}
	}

	if err := query.Order("harvest_date DESC").Order("id DESC").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to list harvest cards: %w", err)
	}
	return cards, nil
}

// Deactivate 停用收获卡(软删除)
func (r *harvestCardRepository) Deactivate(ctx context.Context, cardID string) error {
	return r.updateColumns(ctx, r.db.WithContext(ctx).Where("card_id = ? AND is_active = ?", cardID, true), map[string]interface{}{
		"is_active": false,
	})
}

// UpdateVerificationStatus 更新核验状态
func (r *harvestCardRepository) UpdateVerificationStatus(ctx context.Context, cardID string, status string) error {
	return r.updateColumns(ctx, r.db.WithContext(ctx).Where("card_id = ?", cardID), map[string]interface{}{
		"verification_status": status,
	})
}

// TransitionStatus 在同一事务中更新有效收获卡的核验状态并写入状态历史
// history.FromStatus 由当前状态填充
func (r *harvestCardRepository) TransitionStatus(ctx context.Context, history *model.StatusHistoryModel) (*model.HarvestCardModel, error) {
	var card model.HarvestCardModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("card_id = ? AND is_active = ?", history.CardID, true).First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("failed to find harvest card: %w", err)
		}

		history.FromStatus = card.VerificationStatus
		now := time.Now()
		if err := tx.Model(&card).Updates(map[string]interface{}{
			"verification_status": history.ToStatus,
			"updated_at":          now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update verification status: %w", err)
		}
		card.VerificationStatus = history.ToStatus
		card.UpdatedAt = now

		if history.CreatedAt.IsZero() {
			history.CreatedAt = now
		}
		if err := history.Validate(); err != nil {
			return err
		}
		if err := tx.Create(history).Error; err != nil {
			return fmt.Errorf("failed to save status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateQRCodeData 更新二维码图片缓存
func (r *harvestCardRepository) UpdateQRCodeData(ctx context.Context, cardID string, data string) error {
	return r.updateColumns(ctx, r.db.WithContext(ctx).Where("card_id = ?", cardID), map[string]interface{}{
		"qr_code_data": data,
	})
}

// updateColumns 更新指定列并刷新 updated_at
func (r *harvestCardRepository) updateColumns(ctx context.Context, query *gorm.DB, values map[string]interface{}) error {
	values["updated_at"] = time.Now()
	result := query.Model(&model.HarvestCardModel{}).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update harvest card: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// PurgeOlderThan 物理删除创建时间早于 cutoff 的收获卡,返回被删除的 card_id
func (r *harvestCardRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	var cardIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.HarvestCardModel{}).Where("created_at < ?", cutoff).Pluck("card_id", &cardIDs).Error; err != nil {
			return fmt.Errorf("failed to select expired harvest cards: %w", err)
		}
		if len(cardIDs) == 0 {
			return nil
		}
		if err := tx.Where("card_id IN ?", cardIDs).Delete(&model.HarvestCardModel{}).Error; err != nil {
			return fmt.Errorf("failed to purge harvest cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cardIDs, nil
}

// Stats 统计用户有效收获卡
func (r *harvestCardRepository) Stats(ctx context.Context, ownerID string) (*HarvestStats, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.HarvestCardModel{}).
			Where("owner_id = ? AND is_active = ?", ownerID, true)
	}

	var agg struct {
		Count         int64
		TotalQuantity float64
		TotalRevenue  float64
	}
	if err := base().Select("COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS total_quantity, COALESCE(SUM(total_revenue), 0) AS total_revenue").
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate harvest cards: %w", err)
	}

	stats := &HarvestStats{
		Count:         agg.Count,
		TotalQuantity: agg.TotalQuantity,
		TotalRevenue:  agg.TotalRevenue,
		Crops:         []string{},
		Locations:     []string{},
	}
	var margin struct{ AverageProfitMargin float64 }
	if err := base().Where("profit_margin > 0").Select("COALESCE(AVG(profit_margin), 0) AS average_profit_margin").
		Scan(&margin).Error; err != nil {
		return nil, fmt.Errorf("failed to average profit margin: %w", err)
	}
	stats.AverageProfitMargin = margin.AverageProfitMargin
	if err := base().Where("is_organic = ?", true).Count(&stats.OrganicCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count organic harvest cards: %w", err)
	}
	if err := base().Where("qr_code_data IS NOT NULL AND qr_code_data <> ''").Count(&stats.WithQRCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count harvest cards with qr: %w", err)
	}
	if err := base().Distinct().Order("crop_name ASC").Pluck("crop_name", &stats.Crops).Error; err != nil {
		return nil, fmt.Errorf("failed to list crops: %w", err)
	}
	if err := base().Distinct().Order("farm_location ASC").Pluck("farm_location", &stats.Locations).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return stats, nil
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
