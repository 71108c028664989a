package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expenseledger/models"
	"expenseledger/store"

	"github.com/shopspring/decimal"
)

// DefaultMaxRetries 乐观锁冲突默认重试次数
const DefaultMaxRetries = 5

// AppliedResult 单笔交易入账结果
type AppliedResult struct {
	TransactionID string               `json:"transaction_id"`
	ExpenseID     string               `json:"expense_id"`
	CategoryID    uint                 `json:"category_id"`
	Period        string               `json:"period"`
	Amount        decimal.Decimal      `json:"amount"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	Status        models.PaymentStatus `json:"status"`
	AppliedAt     time.Time            `json:"applied_at"`
	Duplicate     bool                 `json:"duplicate"`
	Attempts      int                  `json:"attempts"`
}

// Applier 交易入账器
type Applier struct {
	store      store.ExpenseStore
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger
}

// NewApplier 创建入账器，maxRetries <= 0 时使用默认值
func NewApplier(s store.ExpenseStore, maxRetries int) *Applier {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Applier{
		store:      s,
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     slog.Default().With("component", "applier"),
	}
}

// Apply 将一笔已完成交易入账到对应支出
// 同一交易ID重复提交时返回首次入账结果（Duplicate=true），不会重复累加
func (a *Applier) Apply(ctx context.Context, tx models.ExpenseTransaction) (*AppliedResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prior, err := a.store.FindTransaction(ctx, tx.ID)
		switch {
		case err == nil:
			if prior.ExpenseID != tx.ExpenseID || !prior.Amount.Equal(tx.Amount) {
				a.logger.WarnContext(ctx, "重复交易ID的内容与已入账记录不一致",
					"transaction_id", tx.ID,
					"expense_id", tx.ExpenseID,
					"recorded_expense_id", prior.ExpenseID)
			}
			res := resultFromRecord(prior)
			res.Attempts = attempt
			return res, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}

		exp, err := a.store.GetExpense(ctx, tx.ExpenseID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, tx.ExpenseID)
			}
			return nil, err
		}
		if exp.IsSettled() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, exp.ID)
		}

		newPaid := exp.PaidAmount.Add(tx.Amount)
		if newPaid.GreaterThan(exp.Amount) {
			return nil, fmt.Errorf("%w: 已付 %s + 本次 %s > 应付 %s",
				ErrOverpayment, exp.PaidAmount.StringFixed(2), tx.Amount.StringFixed(2), exp.Amount.StringFixed(2))
		}
		newStatus := models.DeriveStatus(newPaid, exp.Amount)

		lastPayment := tx.Date
		if exp.LastPaymentDate != nil && exp.LastPaymentDate.After(lastPayment) {
			lastPayment = *exp.LastPaymentDate
		}

		appliedAt := a.now()
		rec := tx
		rec.CategoryID = exp.CategoryID
		rec.Period = exp.AccountingPeriod().String()
		rec.PaidAmountAfter = newPaid
		rec.StatusAfter = newStatus
		rec.AppliedAt = &appliedAt

		updated, err := a.store.UpdatePaymentFields(ctx, store.PaymentUpdate{
			ExpenseID:       exp.ID,
			ExpectedVersion: exp.Version,
			PaidAmount:      newPaid,
			Status:          newStatus,
			LastPaymentDate: lastPayment,
			Transaction:     rec,
		})
		switch {
		case err == nil:
			return &AppliedResult{
				TransactionID: tx.ID,
				ExpenseID:     updated.ID,
				CategoryID:    updated.CategoryID,
				Period:        rec.Period,
				Amount:        tx.Amount,
				PaidAmount:    updated.PaidAmount,
				Status:        updated.Status,
				AppliedAt:     appliedAt,
				Attempts:      attempt,
			}, nil
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicateTransaction):
			// 重新读取最新状态后重试；重复交易在下一轮按幂等回执返回
			a.logger.DebugContext(ctx, "入账并发冲突，重新读取后重试",
				"transaction_id", tx.ID,
				"expense_id", tx.ExpenseID,
				"attempt", attempt,
				"error", err)
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, tx.ExpenseID)
		default:
			return nil, err
		}
	}

	a.logger.WarnContext(ctx, "入账重试次数已用尽",
		"transaction_id", tx.ID,
		"expense_id", tx.ExpenseID,
		"max_retries", a.maxRetries)
	return nil, fmt.Errorf("%w: 交易 %s 重试 %d 次", ErrReconciliationConflict, tx.ID, a.maxRetries)
}

func resultFromRecord(rec *models.ExpenseTransaction) *AppliedResult {
	res := &AppliedResult{
		TransactionID: rec.ID,
		ExpenseID:     rec.ExpenseID,
		CategoryID:    rec.CategoryID,
		Period:        rec.Period,
		Amount:        rec.Amount,
		PaidAmount:    rec.PaidAmountAfter,
		Status:        rec.StatusAfter,
		Duplicate:     true,
	}
	if rec.AppliedAt != nil {
		res.AppliedAt = *rec.AppliedAt
	}
	return res
}
