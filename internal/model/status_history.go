package model

import (
	"errors"
	"time"
)

// StatusHistoryModel 核验状态变更历史数据模型
type StatusHistoryModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CardID     string    `gorm:"type:varchar(64);not null;index" json:"card_id"`
	FromStatus string    `gorm:"type:varchar(16)" json:"from_status"`
	ToStatus   string    `gorm:"type:varchar(16);not null" json:"to_status"`
	Reason     string    `gorm:"type:text" json:"reason,omitempty"`
	Operator   string    `gorm:"type:varchar(64);not null" json:"operator"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (StatusHistoryModel) TableName() string {
	return "status_history"
}

// Validate 验证状态历史模型
func (m *StatusHistoryModel) Validate() error {
	if m.ID == "" {
		return errors.New("history ID is required")
	}
	if m.CardID == "" {
		return errors.New("card ID is required")
	}
	if m.ToStatus == "" {
		return errors.New("to status is required")
	}
	if m.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}
