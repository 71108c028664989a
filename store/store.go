// Package store 支出台账与类别汇总缓存的存储层
package store

import (
	"context"
	"errors"
	"time"

	"expenseledger/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("记录不存在")
	ErrConflict             = errors.New("记录已被并发修改")
	ErrDuplicateTransaction = errors.New("交易已入账")
	ErrHasTransactions      = errors.New("支出存在关联交易，禁止删除")
	ErrDuplicateExpense     = errors.New("支出ID已存在")
)

// PaymentUpdate 一次入账写入：以 ExpectedVersion 做比较并交换，成功时版本号加一，
// 同一原子操作内追加交易回执
type PaymentUpdate struct {
	ExpenseID       string
	ExpectedVersion int64
	PaidAmount      decimal.Decimal
	Status          models.PaymentStatus
	LastPaymentDate time.Time
	Transaction     models.ExpenseTransaction
}

// ExpenseStore 支出台账
type ExpenseStore interface {
	GetExpense(ctx context.Context, id string) (*models.Expense, error)
	// UpdatePaymentFields 只允许修改 PaidAmount/Status/LastPaymentDate
	UpdatePaymentFields(ctx context.Context, u PaymentUpdate) (*models.Expense, error)
	FindTransaction(ctx context.Context, id string) (*models.ExpenseTransaction, error)
	ListTransactions(ctx context.Context, expenseID string) ([]models.ExpenseTransaction, error)

	CreateExpense(ctx context.Context, e *models.Expense) error
	// CorrectExpense 管理员更正类别/金额/预算/到期日，同样以版本号做比较并交换
	CorrectExpense(ctx context.Context, expectedVersion int64, e *models.Expense) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id string, expectedVersion int64) error

	ListExpenses(ctx context.Context, categoryID uint, period models.Period) ([]models.Expense, error)
	HasExpensesBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error)
	// ListExpenseKeys 台账中存在支出的全部 (类别, 账期)
	ListExpenseKeys(ctx context.Context) ([]models.SummaryKey, error)
	CategoryExists(ctx context.Context, categoryID uint) (bool, error)
}

// SummaryStore 类别汇总缓存
type SummaryStore interface {
	GetSummary(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error)
	PutSummary(ctx context.Context, s *models.CategorySummary) error
	// AddDelta 原子地创建或累加汇总
	AddDelta(ctx context.Context, categoryID uint, period models.Period, delta models.SummaryDelta) (*models.CategorySummary, error)
	// HasSummaryBefore 是否存在更早且笔数大于 0 的汇总
	HasSummaryBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error)
	ListSummaryKeys(ctx context.Context) ([]models.SummaryKey, error)
}
