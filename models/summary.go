package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CategorySummary 类别账期汇总，是支出台账的缓存，可随时由台账完整重算
// Amount 为账期内已付金额合计，Obligated 为应付总额合计，Allocated 为预算合计
type CategorySummary struct {
	ExpenseByCategoryID string           `json:"expense_by_category_id" gorm:"primaryKey;size:36"`
	CategoryID          uint             `json:"category_id" gorm:"not null;uniqueIndex:idx_summary_category_period"`
	Period              string           `json:"period" gorm:"size:7;not null;uniqueIndex:idx_summary_category_period"`
	Date                time.Time        `json:"date" gorm:"not null"`
	Amount              decimal.Decimal  `json:"amount" gorm:"type:decimal(14,2);not null;default:0"`
	Count               int64            `json:"count" gorm:"column:expense_count;not null;default:0"`
	Allocated           decimal.Decimal  `json:"allocated" gorm:"type:decimal(14,2);not null;default:0"`
	Obligated           decimal.Decimal  `json:"obligated" gorm:"type:decimal(14,2);not null;default:0"`
	Remaining           decimal.Decimal  `json:"remaining" gorm:"type:decimal(14,2);not null;default:0"`
	PercentageChange    *decimal.Decimal `json:"percentage_change" gorm:"-"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// TableName 设置表名
func (CategorySummary) TableName() string {
	return "expense_by_category_summaries"
}

// SummaryKey 汇总缓存键
type SummaryKey struct {
	CategoryID uint
	Period     Period
}

// SortSummaryKeys 按类别ID、账期升序排序
func SortSummaryKeys(keys []SummaryKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CategoryID != keys[j].CategoryID {
			return keys[i].CategoryID < keys[j].CategoryID
		}
		return keys[i].Period.Before(keys[j].Period)
	})
}

// SummaryDelta 汇总增量
type SummaryDelta struct {
	Amount    decimal.Decimal // 已付变化
	Allocated decimal.Decimal // 预算变化
	Obligated decimal.Decimal // 应付变化
	Count     int64           // 支出笔数变化
}

// IsZero 增量是否为空
func (d SummaryDelta) IsZero() bool {
	return d.Amount.IsZero() && d.Allocated.IsZero() && d.Obligated.IsZero() && d.Count == 0
}

// Neg 反向增量
func (d SummaryDelta) Neg() SummaryDelta {
	return SummaryDelta{
		Amount:    d.Amount.Neg(),
		Allocated: d.Allocated.Neg(),
		Obligated: d.Obligated.Neg(),
		Count:     -d.Count,
	}
}

// Plus 合并增量
func (d SummaryDelta) Plus(o SummaryDelta) SummaryDelta {
	return SummaryDelta{
		Amount:    d.Amount.Add(o.Amount),
		Allocated: d.Allocated.Add(o.Allocated),
		Obligated: d.Obligated.Add(o.Obligated),
		Count:     d.Count + o.Count,
	}
}

// ExpenseContribution 单笔支出对所属汇总的贡献
func ExpenseContribution(e *Expense) SummaryDelta {
	return SummaryDelta{
		Amount:    e.PaidAmount,
		Allocated: e.Budget,
		Obligated: e.Amount,
		Count:     1,
	}
}

// NewCategorySummary 创建空汇总
func NewCategorySummary(id string, categoryID uint, period Period) *CategorySummary {
	return &CategorySummary{
		ExpenseByCategoryID: id,
		CategoryID:          categoryID,
		Period:              period.String(),
		Date:                period.Start(),
		Amount:              decimal.Zero,
		Allocated:           decimal.Zero,
		Obligated:           decimal.Zero,
		Remaining:           decimal.Zero,
	}
}

// Add 叠加增量并重新计算 Remaining
func (s *CategorySummary) Add(d SummaryDelta) {
	s.Amount = s.Amount.Add(d.Amount)
	s.Allocated = s.Allocated.Add(d.Allocated)
	s.Obligated = s.Obligated.Add(d.Obligated)
	s.Count += d.Count
	s.Remaining = s.Allocated.Sub(s.Amount)
}

// Key 汇总缓存键
func (s *CategorySummary) Key() SummaryKey {
	p, _ := ParsePeriod(s.Period)
	return SummaryKey{CategoryID: s.CategoryID, Period: p}
}

// SameTotals 比较两个汇总的数值是否一致（忽略ID与时间戳）
func (s *CategorySummary) SameTotals(o *CategorySummary) bool {
	if s.CategoryID != o.CategoryID || s.Period != o.Period || s.Count != o.Count {
		return false
	}
	if !s.Amount.Equal(o.Amount) || !s.Allocated.Equal(o.Allocated) ||
		!s.Obligated.Equal(o.Obligated) || !s.Remaining.Equal(o.Remaining) {
		return false
	}
	switch {
	case s.PercentageChange == nil && o.PercentageChange == nil:
		return true
	case s.PercentageChange == nil || o.PercentageChange == nil:
		return false
	default:
		return s.PercentageChange.Equal(*o.PercentageChange)
	}
}

// PercentageChange 环比变化率 (cur-prev)/prev；上期为 0 时返回 0
func PercentageChange(cur, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	return cur.Sub(prev).Div(prev)
}
