package messaging

import (
	"encoding/json"
	"time"

	"expenseledger/service"

	"github.com/shopspring/decimal"
)

// PaymentAppliedMessage 交易入账消息
type PaymentAppliedMessage struct {
	TransactionID string          `json:"transaction_id"`
	ExpenseID     string          `json:"expense_id"`
	CategoryID    uint            `json:"category_id"`
	Period        string          `json:"period"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        string          `json:"status"`
	AppliedAt     time.Time       `json:"applied_at"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewPaymentAppliedMessage 由入账事件创建消息
func NewPaymentAppliedMessage(evt service.PaymentAppliedEvent) *PaymentAppliedMessage {
	return &PaymentAppliedMessage{
		TransactionID: evt.TransactionID,
		ExpenseID:     evt.ExpenseID,
		CategoryID:    evt.CategoryID,
		Period:        evt.Period,
		Amount:        evt.Amount,
		PaidAmount:    evt.PaidAmount,
		Status:        evt.Status,
		AppliedAt:     evt.AppliedAt,
		Timestamp:     time.Now(),
	}
}

// ToJSON 序列化
func (m *PaymentAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentAppliedMessageFromJSON 反序列化
func PaymentAppliedMessageFromJSON(data []byte) (*PaymentAppliedMessage, error) {
	var msg PaymentAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
