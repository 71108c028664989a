package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod 付款方式
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodCheque       PaymentMethod = "Cheque"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodCash         PaymentMethod = "Cash"
)

// TransactionStatus 交易状态，只有 COMPLETED 可以入账
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

var (
	ErrPaidOutOfRange         = errors.New("已付金额超出范围")
	ErrStatusMismatch         = errors.New("付款状态与已付金额不一致")
	ErrTransactionID          = errors.New("交易ID不能为空")
	ErrTransactionExpenseID   = errors.New("交易未关联支出")
	ErrTransactionAmount      = errors.New("交易金额必须大于0且最多两位小数")
	ErrTransactionMethod      = errors.New("不支持的付款方式")
	ErrTransactionNotComplete = errors.New("交易状态不是 COMPLETED")
	ErrTransactionDate        = errors.New("交易日期不能为空")
)

// GetPaymentMethods 获取所有付款方式
func GetPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodBankTransfer,
		PaymentMethodCheque,
		PaymentMethodUPI,
		PaymentMethodCash,
	}
}

// Valid 是否为支持的付款方式
func (m PaymentMethod) Valid() bool {
	for _, pm := range GetPaymentMethods() {
		if pm == m {
			return true
		}
	}
	return false
}

// ExpenseTransaction 付款交易，只追加不修改
// 入账成功时同一事务内写入 CategoryID/Period/PaidAmountAfter/StatusAfter/AppliedAt，作为幂等回执
type ExpenseTransaction struct {
	ID              string            `json:"id" gorm:"primaryKey;size:64"`
	ExpenseID       string            `json:"expense_id" gorm:"size:36;index;not null"`
	Amount          decimal.Decimal   `json:"amount" gorm:"type:decimal(14,2);not null"`
	PaymentMethod   PaymentMethod     `json:"payment_method" gorm:"size:20;not null"`
	Status          TransactionStatus `json:"status" gorm:"size:16;not null"`
	Date            time.Time         `json:"date" gorm:"not null"`
	CategoryID      uint              `json:"category_id" gorm:"index"`
	Period          string            `json:"period" gorm:"size:7"`
	PaidAmountAfter decimal.Decimal   `json:"paid_amount_after" gorm:"type:decimal(14,2)"`
	StatusAfter     PaymentStatus     `json:"status_after" gorm:"size:16"`
	AppliedAt       *time.Time        `json:"applied_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TableName 设置表名
func (ExpenseTransaction) TableName() string {
	return "expense_transactions"
}

// Validate 入账前校验
func (t *ExpenseTransaction) Validate() error {
	if t.ID == "" {
		return ErrTransactionID
	}
	if t.ExpenseID == "" {
		return ErrTransactionExpenseID
	}
	if !t.Amount.IsPositive() || !ValidMoney(t.Amount) {
		return ErrTransactionAmount
	}
	if !t.PaymentMethod.Valid() {
		return ErrTransactionMethod
	}
	if t.Status != TransactionStatusCompleted {
		return ErrTransactionNotComplete
	}
	if t.Date.IsZero() {
		return ErrTransactionDate
	}
	return nil
}

// IsApplied 是否已入账
func (t *ExpenseTransaction) IsApplied() bool {
	return t.AppliedAt != nil
}
