package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"expenseledger/service"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp091.Publishing
	keys      []string
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func sampleEvent() service.PaymentAppliedEvent {
	return service.PaymentAppliedEvent{
		TransactionID: "tx-1",
		ExpenseID:     "exp-1",
		CategoryID:    3,
		Period:        "2024-05",
		Amount:        decimal.RequireFromString("400"),
		PaidAmount:    decimal.RequireFromString("400"),
		Status:        "PARTIAL",
		AppliedAt:     time.Date(2024, 5, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("connection refused")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.True(t, isConnectionError(amqp091.ErrClosed))
	assert.True(t, isConnectionError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.False(t, isConnectionError(errors.New("invalid input")))
}

func TestPublisher_PublishPaymentApplied(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "ledger", "payment.applied")

	require.NoError(t, p.PublishPaymentApplied(context.Background(), sampleEvent()))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "ledger/payment.applied", ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.Equal(t, "tx-1", msg.MessageId)

	decoded, err := PaymentAppliedMessageFromJSON(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", decoded.ExpenseID)
	assert.Equal(t, uint(3), decoded.CategoryID)
	assert.True(t, decoded.PaidAmount.Equal(decimal.RequireFromString("400")))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_CircuitBreaker(t *testing.T) {
	ch := &fakeChannel{err: errors.New("connection reset by peer")}
	p := newPublisher(ch, "ledger", "payment.applied")
	now := time.Date(2024, 5, 5, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	for i := 0; i < failureThreshold; i++ {
		err := p.PublishPaymentApplied(context.Background(), sampleEvent())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	err := p.PublishPaymentApplied(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// 退避结束后恢复发布
	ch.err = nil
	now = now.Add(2 * time.Second)
	require.NoError(t, p.PublishPaymentApplied(context.Background(), sampleEvent()))
	assert.False(t, p.isOpen())
}

func TestPublisher_NonConnectionErrorDoesNotTrip(t *testing.T) {
	ch := &fakeChannel{err: errors.New("invalid routing")}
	p := newPublisher(ch, "ledger", "payment.applied")

	for i := 0; i < failureThreshold+2; i++ {
		err := p.PublishPaymentApplied(context.Background(), sampleEvent())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
}

func TestPaymentAppliedMessage_InvalidJSON(t *testing.T) {
	_, err := PaymentAppliedMessageFromJSON([]byte("{not json"))
	assert.Error(t, err)
}
