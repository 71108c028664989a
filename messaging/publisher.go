// Package messaging 入账事件的 AMQP 发布
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"expenseledger/service"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout   = 5 * time.Second
	failureThreshold = 3
	maxBackoff       = 30 * time.Second
)

// ErrCircuitOpen 连续发布失败后暂停发布
var ErrCircuitOpen = errors.New("AMQP 发布熔断中")

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

var _ service.EventPublisher = (*Publisher)(nil)

// Publisher 入账事件发布器，实现 service.EventPublisher
type Publisher struct {
	conn       *amqp091.Connection
	channel    publishChannel
	exchange   string
	routingKey string

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	now       func() time.Time
}

// NewPublisher 连接 AMQP 并声明持久化 topic 交换机
func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("连接 AMQP 失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开 AMQP 通道失败: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明交换机失败: %w", err)
	}

	p := newPublisher(ch, exchange, routingKey)
	p.conn = conn
	return p, nil
}

func newPublisher(ch publishChannel, exchange, routingKey string) *Publisher {
	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// PublishPaymentApplied 发布入账事件，持久化 JSON 消息
func (p *Publisher) PublishPaymentApplied(ctx context.Context, evt service.PaymentAppliedEvent) error {
	if p.isOpen() {
		return ErrCircuitOpen
	}

	body, err := NewPaymentAppliedMessage(evt).ToJSON()
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    evt.TransactionID,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		p.recordFailure(err)
		return fmt.Errorf("发布消息失败: %w", err)
	}
	p.recordSuccess()

	slog.DebugContext(ctx, "入账事件已发布",
		"transaction_id", evt.TransactionID,
		"expense_id", evt.ExpenseID,
		"exchange", p.exchange,
		"routing_key", p.routingKey)
	return nil
}

func (p *Publisher) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.openUntil)
}

func (p *Publisher) recordFailure(err error) {
	if !isConnectionError(err) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	if p.failures >= failureThreshold {
		wait := exponentialBackoff(p.failures - failureThreshold)
		p.openUntil = p.now().Add(wait)
		slog.Warn("AMQP 连续发布失败，暂停发布",
			"failures", p.failures,
			"retry_after", wait)
	}
}

func (p *Publisher) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
	p.openUntil = time.Time{}
}

// Close 关闭通道与连接
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// exponentialBackoff 1s 起步翻倍，最长 30s
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
