package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAppliedEvent 交易入账事件，入账成功（非重复）后发布
type PaymentAppliedEvent struct {
	TransactionID string          `json:"transaction_id"`
	ExpenseID     string          `json:"expense_id"`
	CategoryID    uint            `json:"category_id"`
	Period        string          `json:"period"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        string          `json:"status"`
	AppliedAt     time.Time       `json:"applied_at"`
}

// EventPublisher 事件发布；发布失败不影响已提交的入账
type EventPublisher interface {
	PublishPaymentApplied(ctx context.Context, evt PaymentAppliedEvent) error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// PublishPaymentApplied 实现 EventPublisher
func (NopPublisher) PublishPaymentApplied(context.Context, PaymentAppliedEvent) error { return nil }

func eventFromResult(res *AppliedResult) PaymentAppliedEvent {
	return PaymentAppliedEvent{
		TransactionID: res.TransactionID,
		ExpenseID:     res.ExpenseID,
		CategoryID:    res.CategoryID,
		Period:        res.Period,
		Amount:        res.Amount,
		PaidAmount:    res.PaidAmount,
		Status:        string(res.Status),
		AppliedAt:     res.AppliedAt,
	}
}
