package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"expenseledger/models"

	"golang.org/x/sync/errgroup"
)

// Outcome 单笔交易的处理结果分类
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// DefaultWorkers 默认并发处理的支出组数
const DefaultWorkers = 4

// Result 单笔交易对账结果
type Result struct {
	TransactionID string                  `json:"transaction_id"`
	Outcome       Outcome                 `json:"outcome"`
	Applied       *AppliedResult          `json:"applied,omitempty"`
	Summary       *models.CategorySummary `json:"summary,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Err           error                   `json:"-"`
}

// Coordinator 对账协调器：按支出分组、组内按时间顺序入账，再累加类别汇总
type Coordinator struct {
	applier   *Applier
	rollup    *RollupEngine
	publisher EventPublisher
	workers   int
	logger    *slog.Logger
}

// NewCoordinator 创建协调器，publisher 为 nil 时不发布事件
func NewCoordinator(applier *Applier, rollup *RollupEngine, publisher EventPublisher, workers int) *Coordinator {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		applier:   applier,
		rollup:    rollup,
		publisher: publisher,
		workers:   workers,
		logger:    slog.Default().With("component", "coordinator"),
	}
}

// Submit 批量提交交易，结果顺序与提交顺序一致
// 业务拒绝按笔返回；存储层故障时返回错误，未处理的交易标记为 skipped
func (c *Coordinator) Submit(ctx context.Context, txs []models.ExpenseTransaction) ([]Result, error) {
	results := make([]Result, len(txs))
	for i := range txs {
		results[i] = Result{TransactionID: txs[i].ID, Outcome: OutcomeSkipped}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, idx := range groupByExpense(txs) {
		idx := idx
		g.Go(func() error {
			for _, i := range idx {
				if gctx.Err() != nil {
					return nil
				}
				res, err := c.process(gctx, txs[i])
				results[i] = res
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// SubmitOne 提交单笔交易
func (c *Coordinator) SubmitOne(ctx context.Context, tx models.ExpenseTransaction) (Result, error) {
	return c.process(ctx, tx)
}

// process 入账并累加汇总；只有存储层故障会返回 error
func (c *Coordinator) process(ctx context.Context, tx models.ExpenseTransaction) (Result, error) {
	res := Result{TransactionID: tx.ID}

	applied, err := c.applier.Apply(ctx, tx)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		switch {
		case errors.Is(err, ErrReconciliationConflict):
			res.Outcome = OutcomeConflict
		case IsRejection(err):
			res.Outcome = OutcomeRejected
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			res.Outcome = OutcomeSkipped
			return res, err
		default:
			res.Outcome = OutcomeFailed
			c.logger.ErrorContext(ctx, "入账失败",
				"transaction_id", tx.ID,
				"expense_id", tx.ExpenseID,
				"error", err)
			return res, fmt.Errorf("交易 %s 入账失败: %w", tx.ID, err)
		}
		return res, nil
	}

	res.Applied = applied
	if applied.Duplicate {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	res.Outcome = OutcomeApplied

	period, err := models.ParsePeriod(applied.Period)
	if err != nil {
		c.logger.ErrorContext(ctx, "入账回执账期无法解析",
			"transaction_id", tx.ID,
			"period", applied.Period)
		return res, nil
	}
	sum, err := c.rollup.ApplyDelta(ctx, applied.CategoryID, period, models.SummaryDelta{Amount: applied.Amount})
	if err != nil {
		// 入账已提交，汇总由巡检从台账重算修复
		c.logger.ErrorContext(ctx, "汇总累加失败",
			"transaction_id", tx.ID,
			"expense_id", applied.ExpenseID,
			"category_id", applied.CategoryID,
			"period", applied.Period,
			"error", err)
	} else {
		res.Summary = sum
	}

	if err := c.publisher.PublishPaymentApplied(ctx, eventFromResult(applied)); err != nil {
		c.logger.WarnContext(ctx, "入账事件发布失败",
			"transaction_id", tx.ID,
			"expense_id", applied.ExpenseID,
			"error", err)
	}
	return res, nil
}

// groupByExpense 按支出分组，组内按 (Date, ID) 排序，组间按首次出现顺序
func groupByExpense(txs []models.ExpenseTransaction) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, tx := range txs {
		g, ok := pos[tx.ExpenseID]
		if !ok {
			g = len(groups)
			pos[tx.ExpenseID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			ta, tb := txs[idx[a]], txs[idx[b]]
			if !ta.Date.Equal(tb.Date) {
				return ta.Date.Before(tb.Date)
			}
			return ta.ID < tb.ID
		})
	}
	return groups
}
