package models

import (
	"time"

	"gorm.io/gorm"
)

// ExpenseCategory 支出类别（后台维护），汇总按类别聚合
type ExpenseCategory struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"size:50;not null;uniqueIndex"`
	Sort      int            `json:"sort" gorm:"default:0;index"`
	Color     string         `json:"color" gorm:"size:20;default:#64748b"` // 颜色代码，如 #ef4444
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (ExpenseCategory) TableName() string {
	return "expense_categories"
}

// 默认支出类别
const (
	CategoryRent        = "租金"
	CategoryUtilities   = "水电"
	CategoryPurchasing  = "采购"
	CategoryPayroll     = "工资"
	CategoryLogistics   = "物流"
	CategoryMarketing   = "营销"
	CategoryMaintenance = "维修"
	CategoryOther       = "其他"
)

// GetCategories 获取所有默认支出类别
func GetCategories() []string {
	return []string{
		CategoryRent,
		CategoryUtilities,
		CategoryPurchasing,
		CategoryPayroll,
		CategoryLogistics,
		CategoryMarketing,
		CategoryMaintenance,
		CategoryOther,
	}
}
