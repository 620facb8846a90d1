package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 核验状态
const (
	VerificationPending  = "PENDING"
	VerificationVerified = "VERIFIED"
	VerificationRejected = "REJECTED"
)

// 默认值
const (
	DefaultVariety      = "Standard"
	DefaultUnit         = "kg"
	DefaultQualityGrade = "Grade A"
)

// QualityGrades 允许的质量等级
var QualityGrades = []string{"Grade A+", "Grade A", "Grade B", "Grade C"}

// HarvestCardModel 收获卡数据模型
type HarvestCardModel struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CardID              string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_harvest_cards_card_id" json:"card_id"` // 二维码中携带的业务主键
	OwnerID             string     `gorm:"type:varchar(64);index" json:"owner_id"`
	FarmerName          string     `gorm:"type:varchar(255);not null" json:"farmer_name"`
	FarmLocation        string     `gorm:"type:varchar(255);not null" json:"farm_location"`
	CropName            string     `gorm:"type:varchar(128);not null;index" json:"crop_name"`
	Variety             string     `gorm:"type:varchar(128)" json:"variety"`
	Quantity            float64    `gorm:"not null" json:"quantity"`
	Unit                string     `gorm:"type:varchar(16);not null" json:"unit"`
	QualityGrade        string     `gorm:"type:varchar(16);not null" json:"quality_grade"`
	IsOrganic           bool       `gorm:"not null" json:"is_organic"`
	CertificationNumber string     `gorm:"type:varchar(128)" json:"certification_number,omitempty"`
	Notes               string     `gorm:"type:text" json:"notes,omitempty"`
	PlantingDate        *time.Time `json:"planting_date,omitempty"`
	HarvestDate         time.Time  `gorm:"not null;index" json:"harvest_date"`
	VerificationStatus  string     `gorm:"type:varchar(16);not null;index" json:"verification_status"`
	QRCodeData          string     `gorm:"type:text" json:"qr_code_data,omitempty"` // base64 PNG 缓存
	IsActive            bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt           time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`

	// 生产过程
	FarmSize             float64        `json:"farm_size,omitempty"` // 英亩
	SoilType             string         `gorm:"type:varchar(64)" json:"soil_type,omitempty"`
	IrrigationMethod     string         `gorm:"type:varchar(64)" json:"irrigation_method,omitempty"`
	WaterSource          string         `gorm:"type:varchar(64)" json:"water_source,omitempty"`
	PesticidesUsed       datatypes.JSON `json:"pesticides_used,omitempty"`
	FertilizersUsed      datatypes.JSON `json:"fertilizers_used,omitempty"`
	WeatherConditions    datatypes.JSON `json:"weather_conditions,omitempty"`
	LabTestResults       datatypes.JSON `json:"lab_test_results,omitempty"`
	CarbonFootprint      float64        `gorm:"index" json:"carbon_footprint,omitempty"` // kg CO2
	TransportationMethod string         `gorm:"type:varchar(128)" json:"transportation_method,omitempty"`
	StorageConditions    string         `gorm:"type:text" json:"storage_conditions,omitempty"`
	ProcessingDetails    string         `gorm:"type:text" json:"processing_details,omitempty"`

	// 销售
	MarketDestination string  `gorm:"type:varchar(255)" json:"market_destination,omitempty"`
	PricePerKg        float64 `json:"price_per_kg,omitempty"`
	TotalRevenue      float64 `gorm:"index" json:"total_revenue,omitempty"`
	ProductionCost    float64 `json:"production_cost,omitempty"`
	ProfitMargin      float64 `json:"profit_margin,omitempty"` // 百分比
}

// TableName 指定表名
func (HarvestCardModel) TableName() string {
	return "harvest_cards"
}

// Validate 验证收获卡模型
func (m *HarvestCardModel) Validate() error {
	if m.CardID == "" {
		return errors.New("card ID is required")
	}
	if m.HarvestDate.IsZero() {
		return errors.New("harvest date is required")
	}
	if m.PlantingDate != nil && m.HarvestDate.Before(*m.PlantingDate) {
		return errors.New("harvest date must not be before planting date")
	}
	if !IsValidVerificationStatus(m.VerificationStatus) {
		return errors.New("invalid verification status")
	}
	return nil
}

// CalculateProfitMargin 收入和成本都为正时计算利润率
func (m *HarvestCardModel) CalculateProfitMargin() {
	if m.TotalRevenue > 0 && m.ProductionCost > 0 {
		m.ProfitMargin = (m.TotalRevenue - m.ProductionCost) / m.TotalRevenue * 100
	}
}

// IsValidVerificationStatus 判断核验状态是否合法
func IsValidVerificationStatus(status string) bool {
	switch status {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// IsValidQualityGrade 判断质量等级是否合法
func IsValidQualityGrade(grade string) bool {
	for _, g := range QualityGrades {
		if g == grade {
			return true
		}
	}
	return false
}
