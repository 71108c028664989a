package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"expenseledger/models"
	"expenseledger/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []PaymentAppliedEvent
	err    error
}

func (p *recordingPublisher) PublishPaymentApplied(ctx context.Context, evt PaymentAppliedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

// brokenStore 读取指定支出时返回存储故障
type brokenStore struct {
	*store.MemoryStore
	broken string
}

func (s *brokenStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	if id == s.broken {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.GetExpense(ctx, id)
}

func TestGroupByExpense(t *testing.T) {
	txs := []models.ExpenseTransaction{
		completedTx("b-late", "b", "1", may(20)),
		completedTx("a-2", "a", "1", may(9)),
		completedTx("b-early", "b", "1", may(2)),
		completedTx("a-1", "a", "1", may(9)),
	}
	groups := groupByExpense(txs)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{2, 0}, groups[0])
	// 同一时间按交易ID排序
	assert.Equal(t, []int{3, 1}, groups[1])
}

func TestCoordinator_OutOfOrderBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register(t, "exp-1", 1, "1000", "1200", may(31))

	// 600 在提交顺序中靠前，但按日期应在 400 之后入账
	results, err := f.coord.Submit(ctx, []models.ExpenseTransaction{
		completedTx("tx-600", "exp-1", "600", may(20)),
		completedTx("tx-400", "exp-1", "400", may(5)),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tx-600", results[0].TransactionID)
	assert.Equal(t, "tx-400", results[1].TransactionID)

	assert.Equal(t, OutcomeApplied, results[1].Outcome)
	assert.Equal(t, models.PaymentStatusPartial, results[1].Applied.Status)
	assert.True(t, d("400").Equal(results[1].Applied.PaidAmount))

	assert.Equal(t, OutcomeApplied, results[0].Outcome)
	assert.Equal(t, models.PaymentStatusPaid, results[0].Applied.Status)
	assert.True(t, d("1000").Equal(results[0].Applied.PaidAmount))
}

func TestCoordinator_PartialFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register(t, "exp-1", 1, "100", "100", may(31))
	f.register(t, "exp-2", 2, "50", "80", may(31))

	results, err := f.coord.Submit(ctx, []models.ExpenseTransaction{
		completedTx("ok-1", "exp-1", "60", may(1)),
		completedTx("over", "exp-1", "60", may(2)),
		completedTx("ghost", "missing", "10", may(3)),
		completedTx("ok-2", "exp-2", "50", may(4)),
		completedTx("ok-1", "exp-1", "60", may(1)),
	})
	require.NoError(t, err)

	outcomes := make([]Outcome, len(results))
	for i, r := range results {
		outcomes[i] = r.Outcome
	}
	assert.Equal(t, []Outcome{
		OutcomeApplied,
		OutcomeRejected,
		OutcomeRejected,
		OutcomeApplied,
		OutcomeDuplicate,
	}, outcomes)
	assert.ErrorIs(t, results[1].Err, ErrOverpayment)
	assert.ErrorIs(t, results[2].Err, ErrExpenseNotFound)
	assert.NotEmpty(t, results[1].Error)

	sum, err := f.rollup.Summary(ctx, 1, period(2024, time.May))
	require.NoError(t, err)
	assert.True(t, d("60").Equal(sum.Amount))

	sum, err = f.rollup.Summary(ctx, 2, period(2024, time.May))
	require.NoError(t, err)
	assert.True(t, d("50").Equal(sum.Amount))
	assert.True(t, d("30").Equal(sum.Remaining))

	assertCacheMatchesLedger(t, f)
}

func TestCoordinator_InfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore(1)
	bs := &brokenStore{MemoryStore: base, broken: "exp-bad"}
	rollup := NewRollupEngine(bs, base)
	coord := NewCoordinator(NewApplier(bs, 0), rollup, nil, 1)

	for _, id := range []string{"exp-bad", "exp-ok"} {
		require.NoError(t, base.CreateExpense(ctx, &models.Expense{
			ID: id, CategoryID: 1, Amount: d("100"), Budget: d("100"),
			Status: models.PaymentStatusPending, DueDate: may(31), Period: "2024-05", Version: 1,
		}))
	}

	results, err := coord.Submit(ctx, []models.ExpenseTransaction{
		completedTx("t1", "exp-bad", "10", may(1)),
		completedTx("t2", "exp-bad", "10", may(2)),
	})
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, OutcomeSkipped, results[1].Outcome)

	res, err := coord.SubmitOne(ctx, completedTx("t3", "exp-ok", "10", may(3)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestCoordinator_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register(t, "exp-1", 1, "100", "100", may(31))

	pub := &recordingPublisher{}
	coord := NewCoordinator(f.applier, f.rollup, pub, 2)

	_, err := coord.Submit(ctx, []models.ExpenseTransaction{
		completedTx("tx-1", "exp-1", "40", may(1)),
		completedTx("tx-1", "exp-1", "40", may(1)),
	})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, "tx-1", evt.TransactionID)
	assert.Equal(t, "2024-05", evt.Period)
	assert.Equal(t, string(models.PaymentStatusPartial), evt.Status)
	assert.True(t, d("40").Equal(evt.PaidAmount))
}

func TestCoordinator_PublishFailureDoesNotFailTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register(t, "exp-1", 1, "100", "100", may(31))

	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	coord := NewCoordinator(f.applier, f.rollup, pub, 1)

	res, err := coord.SubmitOne(ctx, completedTx("tx-1", "exp-1", "100", may(1)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.PaymentStatusPaid, res.Applied.Status)
}

func TestCoordinator_ManyExpensesConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	coord := NewCoordinator(f.applier, f.rollup, nil, 8)

	var batch []models.ExpenseTransaction
	ids := []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6", "e7", "e8", "e9"}
	for _, id := range ids {
		f.register(t, id, 1, "30", "30", may(31))
		batch = append(batch,
			completedTx(id+"-c", id, "10", may(3)),
			completedTx(id+"-a", id, "10", may(1)),
			completedTx(id+"-b", id, "10", may(2)),
		)
	}

	results, err := coord.Submit(ctx, batch)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, batch[i].ID, r.TransactionID)
		assert.Equal(t, OutcomeApplied, r.Outcome)
	}
	for _, id := range ids {
		e, err := f.store.GetExpense(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, e.Status)
	}

	sum, err := f.rollup.Summary(ctx, 1, period(2024, time.May))
	require.NoError(t, err)
	assert.True(t, d("300").Equal(sum.Amount))
	assert.Equal(t, int64(len(ids)), sum.Count)
}
