package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expenseledger/models"
	"expenseledger/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RollupEngine 类别账期汇总引擎
// 台账是唯一事实来源，汇总缓存只通过增量累加或整体重算写入
type RollupEngine struct {
	ledger store.ExpenseStore
	cache  store.SummaryStore
	logger *slog.Logger
}

// NewRollupEngine 创建汇总引擎
func NewRollupEngine(ledger store.ExpenseStore, cache store.SummaryStore) *RollupEngine {
	return &RollupEngine{
		ledger: ledger,
		cache:  cache,
		logger: slog.Default().With("component", "rollup"),
	}
}

// DriftReport 汇总缓存与台账重算结果的比对
type DriftReport struct {
	CategoryID uint                    `json:"category_id"`
	Period     string                  `json:"period"`
	Cached     *models.CategorySummary `json:"cached"`
	Expected   *models.CategorySummary `json:"expected"`
	Missing    bool                    `json:"missing"`
	Drifted    bool                    `json:"drifted"`
}

// Recompute 从台账完整重算某类别某账期的汇总，不写缓存
func (r *RollupEngine) Recompute(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	sum, err := r.fold(ctx, categoryID, period)
	if err != nil {
		return nil, err
	}
	pct, err := r.ledgerPercentage(ctx, categoryID, period, sum.Amount)
	if err != nil {
		return nil, err
	}
	sum.PercentageChange = pct
	return sum, nil
}

func (r *RollupEngine) fold(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	expenses, err := r.ledger.ListExpenses(ctx, categoryID, period)
	if err != nil {
		return nil, fmt.Errorf("读取账期支出失败: %w", err)
	}
	sum := models.NewCategorySummary("", categoryID, period)
	for i := range expenses {
		sum.Add(models.ExpenseContribution(&expenses[i]))
	}
	return sum, nil
}

// ledgerPercentage 以台账上期已付合计计算环比
// 上期无支出但更早账期有支出时为 0，类别完全没有更早账期时为 nil
func (r *RollupEngine) ledgerPercentage(ctx context.Context, categoryID uint, period models.Period, cur decimal.Decimal) (*decimal.Decimal, error) {
	prev, err := r.fold(ctx, categoryID, period.Prev())
	if err != nil {
		return nil, err
	}
	if prev.Count > 0 {
		pct := models.PercentageChange(cur, prev.Amount)
		return &pct, nil
	}
	has, err := r.ledger.HasExpensesBefore(ctx, categoryID, period.Prev())
	if err != nil {
		return nil, err
	}
	return zeroOrNil(has), nil
}

func (r *RollupEngine) cachedPercentage(ctx context.Context, categoryID uint, period models.Period, cur decimal.Decimal) (*decimal.Decimal, error) {
	prev, err := r.cache.GetSummary(ctx, categoryID, period.Prev())
	switch {
	case err == nil && prev.Count > 0:
		pct := models.PercentageChange(cur, prev.Amount)
		return &pct, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("读取上期汇总失败: %w", err)
	}
	has, err := r.cache.HasSummaryBefore(ctx, categoryID, period.Prev())
	if err != nil {
		return nil, err
	}
	return zeroOrNil(has), nil
}

func zeroOrNil(has bool) *decimal.Decimal {
	if !has {
		return nil
	}
	z := decimal.Zero
	return &z
}

// ApplyDelta 原子累加汇总增量，返回累加后的汇总（含环比）
func (r *RollupEngine) ApplyDelta(ctx context.Context, categoryID uint, period models.Period, delta models.SummaryDelta) (*models.CategorySummary, error) {
	if delta.IsZero() {
		return r.Summary(ctx, categoryID, period)
	}
	sum, err := r.cache.AddDelta(ctx, categoryID, period, delta)
	if err != nil {
		return nil, fmt.Errorf("累加汇总失败: %w", err)
	}
	pct, err := r.cachedPercentage(ctx, categoryID, period, sum.Amount)
	if err != nil {
		return nil, err
	}
	sum.PercentageChange = pct
	return sum, nil
}

// Summary 读取汇总；缓存缺失时由台账重算
func (r *RollupEngine) Summary(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	sum, err := r.cache.GetSummary(ctx, categoryID, period)
	if errors.Is(err, store.ErrNotFound) {
		fresh, err := r.Recompute(ctx, categoryID, period)
		if err != nil {
			return nil, err
		}
		if fresh.Count == 0 {
			return fresh, nil
		}
		return r.Rebuild(ctx, categoryID, period)
	}
	if err != nil {
		return nil, fmt.Errorf("读取汇总失败: %w", err)
	}
	pct, err := r.cachedPercentage(ctx, categoryID, period, sum.Amount)
	if err != nil {
		return nil, err
	}
	sum.PercentageChange = pct
	return sum, nil
}

// Rebuild 由台账重算并覆盖缓存，保留原汇总ID
func (r *RollupEngine) Rebuild(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	fresh, err := r.Recompute(ctx, categoryID, period)
	if err != nil {
		return nil, err
	}
	existing, err := r.cache.GetSummary(ctx, categoryID, period)
	switch {
	case err == nil:
		fresh.ExpenseByCategoryID = existing.ExpenseByCategoryID
		fresh.CreatedAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		fresh.ExpenseByCategoryID = uuid.NewString()
	default:
		return nil, fmt.Errorf("读取汇总失败: %w", err)
	}
	if err := r.cache.PutSummary(ctx, fresh); err != nil {
		return nil, fmt.Errorf("写入汇总失败: %w", err)
	}
	r.logger.InfoContext(ctx, "汇总已重算",
		"category_id", categoryID,
		"period", period.String(),
		"amount", fresh.Amount.StringFixed(2),
		"count", fresh.Count)
	return fresh, nil
}

// Verify 比对缓存与台账重算结果；环比为读取时派生值，不参与比对
func (r *RollupEngine) Verify(ctx context.Context, categoryID uint, period models.Period) (*DriftReport, error) {
	expected, err := r.Recompute(ctx, categoryID, period)
	if err != nil {
		return nil, err
	}
	report := &DriftReport{
		CategoryID: categoryID,
		Period:     period.String(),
		Expected:   expected,
	}
	cached, err := r.cache.GetSummary(ctx, categoryID, period)
	switch {
	case errors.Is(err, store.ErrNotFound):
		report.Missing = true
		report.Drifted = expected.Count > 0
		return report, nil
	case err != nil:
		return nil, fmt.Errorf("读取汇总失败: %w", err)
	}
	report.Cached = cached

	a, b := *cached, *expected
	a.PercentageChange, b.PercentageChange = nil, nil
	report.Drifted = !a.SameTotals(&b)
	return report, nil
}

// SummaryKeys 台账与缓存中出现过的全部汇总键
// 首次增量写入失败时缓存没有对应行，只能从台账发现
func (r *RollupEngine) SummaryKeys(ctx context.Context) ([]models.SummaryKey, error) {
	ledgerKeys, err := r.ledger.ListExpenseKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取台账账期失败: %w", err)
	}
	cacheKeys, err := r.cache.ListSummaryKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取汇总键失败: %w", err)
	}
	seen := make(map[models.SummaryKey]struct{}, len(ledgerKeys)+len(cacheKeys))
	keys := make([]models.SummaryKey, 0, len(ledgerKeys)+len(cacheKeys))
	for _, k := range append(ledgerKeys, cacheKeys...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	models.SortSummaryKeys(keys)
	return keys, nil
}

// PeriodSummaries 返回账期内所有有支出的类别汇总，按类别ID排序
func (r *RollupEngine) PeriodSummaries(ctx context.Context, period models.Period) ([]*models.CategorySummary, error) {
	keys, err := r.SummaryKeys(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.CategorySummary
	for _, k := range keys {
		if k.Period != period {
			continue
		}
		sum, err := r.Summary(ctx, k.CategoryID, k.Period)
		if err != nil {
			return nil, err
		}
		if sum.Count == 0 {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}
