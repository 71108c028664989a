package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus 支出付款状态
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Expense 支出（应付款）记录
// PaidAmount/Status/LastPaymentDate 只能由入账流程修改，Version 为乐观锁版本号
type Expense struct {
	ID              string          `json:"id" gorm:"primaryKey;size:36"`
	CategoryID      uint            `json:"category_id" gorm:"index:idx_expense_category_period;not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Budget          decimal.Decimal `json:"budget" gorm:"type:decimal(14,2);not null"`
	PaidAmount      decimal.Decimal `json:"paid_amount" gorm:"type:decimal(14,2);not null;default:0"`
	Status          PaymentStatus   `json:"status" gorm:"size:16;not null;default:PENDING"`
	LastPaymentDate *time.Time      `json:"last_payment_date"`
	DueDate         time.Time       `json:"due_date" gorm:"not null"`
	Period          string          `json:"period" gorm:"size:7;index:idx_expense_category_period;not null"` // 账期 YYYY-MM，由 DueDate 推导
	Vendor          string          `json:"vendor" gorm:"size:100"`
	Description     string          `json:"description" gorm:"size:255"`
	Version         int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `json:"-" gorm:"index"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// DeriveStatus 根据已付金额推导付款状态，这是状态的唯一来源
func DeriveStatus(paid, amount decimal.Decimal) PaymentStatus {
	switch {
	case paid.Equal(amount):
		return PaymentStatusPaid
	case paid.IsZero():
		return PaymentStatusPending
	default:
		return PaymentStatusPartial
	}
}

// IsSettled 是否已结清
func (e *Expense) IsSettled() bool {
	return e.Status == PaymentStatusPaid
}

// Outstanding 剩余未付金额
func (e *Expense) Outstanding() decimal.Decimal {
	return e.Amount.Sub(e.PaidAmount)
}

// AccountingPeriod 返回支出所属账期
func (e *Expense) AccountingPeriod() Period {
	if e.Period != "" {
		if p, err := ParsePeriod(e.Period); err == nil {
			return p
		}
	}
	return PeriodOf(e.DueDate)
}

// CheckInvariants 校验已付金额与状态的一致性
func (e *Expense) CheckInvariants() error {
	if e.PaidAmount.IsNegative() || e.PaidAmount.GreaterThan(e.Amount) {
		return ErrPaidOutOfRange
	}
	if e.Status != DeriveStatus(e.PaidAmount, e.Amount) {
		return ErrStatusMismatch
	}
	return nil
}

// ValidMoney 金额必须非负且最多两位小数
func ValidMoney(m decimal.Decimal) bool {
	return !m.IsNegative() && m.Equal(m.Round(2))
}
