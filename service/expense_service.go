package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expenseledger/models"
	"expenseledger/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseInput 登记支出参数
type ExpenseInput struct {
	ID          string          `json:"id"`
	CategoryID  uint            `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	Budget      decimal.Decimal `json:"budget"`
	DueDate     time.Time       `json:"due_date"`
	Vendor      string          `json:"vendor"`
	Description string          `json:"description"`
}

// ExpenseCorrection 更正支出参数，nil 字段保持不变
type ExpenseCorrection struct {
	CategoryID *uint            `json:"category_id"`
	Amount     *decimal.Decimal `json:"amount"`
	Budget     *decimal.Decimal `json:"budget"`
	DueDate    *time.Time       `json:"due_date"`
}

// ExpenseService 支出登记、更正与删除，每次台账变更同步累加汇总增量
type ExpenseService struct {
	ledger store.ExpenseStore
	rollup *RollupEngine
	logger *slog.Logger
}

// NewExpenseService 创建支出服务
func NewExpenseService(ledger store.ExpenseStore, rollup *RollupEngine) *ExpenseService {
	return &ExpenseService{
		ledger: ledger,
		rollup: rollup,
		logger: slog.Default().With("component", "expense"),
	}
}

// Register 登记新支出
func (s *ExpenseService) Register(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	if !models.ValidMoney(in.Amount) {
		return nil, fmt.Errorf("%w: 应付金额必须非负且最多两位小数", ErrInvalidExpense)
	}
	if !models.ValidMoney(in.Budget) {
		return nil, fmt.Errorf("%w: 预算必须非负且最多两位小数", ErrInvalidExpense)
	}
	if in.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: 缺少到期日", ErrInvalidExpense)
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	e := &models.Expense{
		ID:          id,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Budget:      in.Budget,
		PaidAmount:  decimal.Zero,
		Status:      models.DeriveStatus(decimal.Zero, in.Amount),
		DueDate:     in.DueDate,
		Period:      models.PeriodOf(in.DueDate).String(),
		Vendor:      in.Vendor,
		Description: in.Description,
		Version:     1,
	}
	if err := s.ledger.CreateExpense(ctx, e); err != nil {
		return nil, err
	}

	s.applyDelta(ctx, e.ID, e.CategoryID, e.AccountingPeriod(), models.ExpenseContribution(e))
	return e, nil
}

// Correct 更正支出的类别、金额、预算或到期日
// expectedVersion 为 0 时以当前版本为准
func (s *ExpenseService) Correct(ctx context.Context, id string, expectedVersion int64, c ExpenseCorrection) (*models.Expense, error) {
	cur, err := s.ledger.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion == 0 {
		expectedVersion = cur.Version
	}
	if cur.Version != expectedVersion {
		return nil, fmt.Errorf("%w: 当前版本 %d", ErrVersionConflict, cur.Version)
	}

	next := *cur
	if c.CategoryID != nil && *c.CategoryID != cur.CategoryID {
		if err := s.requireCategory(ctx, *c.CategoryID); err != nil {
			return nil, err
		}
		next.CategoryID = *c.CategoryID
	}
	if c.Amount != nil && !c.Amount.Equal(cur.Amount) {
		if cur.IsSettled() {
			return nil, fmt.Errorf("%w: 已结清支出不能修改金额", ErrAlreadySettled)
		}
		if !models.ValidMoney(*c.Amount) {
			return nil, fmt.Errorf("%w: 应付金额必须非负且最多两位小数", ErrInvalidExpense)
		}
		if c.Amount.LessThan(cur.PaidAmount) {
			return nil, fmt.Errorf("%w: 应付金额不能低于已付金额 %s", ErrInvalidExpense, cur.PaidAmount.StringFixed(2))
		}
		next.Amount = *c.Amount
	}
	if c.Budget != nil {
		if !models.ValidMoney(*c.Budget) {
			return nil, fmt.Errorf("%w: 预算必须非负且最多两位小数", ErrInvalidExpense)
		}
		next.Budget = *c.Budget
	}
	if c.DueDate != nil && !c.DueDate.IsZero() {
		next.DueDate = *c.DueDate
		next.Period = models.PeriodOf(*c.DueDate).String()
	}
	next.Status = models.DeriveStatus(next.PaidAmount, next.Amount)

	updated, err := s.ledger.CorrectExpense(ctx, expectedVersion, &next)
	if err != nil {
		return nil, err
	}

	oldKey, newKey := cur.AccountingPeriod(), updated.AccountingPeriod()
	removed := models.ExpenseContribution(cur).Neg()
	added := models.ExpenseContribution(updated)
	if cur.CategoryID == updated.CategoryID && oldKey == newKey {
		s.applyDelta(ctx, id, updated.CategoryID, newKey, removed.Plus(added))
	} else {
		s.applyDelta(ctx, id, cur.CategoryID, oldKey, removed)
		s.applyDelta(ctx, id, updated.CategoryID, newKey, added)
	}
	return updated, nil
}

// Delete 删除没有任何交易的支出
func (s *ExpenseService) Delete(ctx context.Context, id string, expectedVersion int64) error {
	cur, err := s.ledger.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if expectedVersion == 0 {
		expectedVersion = cur.Version
	}
	if err := s.ledger.DeleteExpense(ctx, id, expectedVersion); err != nil {
		return err
	}
	s.applyDelta(ctx, id, cur.CategoryID, cur.AccountingPeriod(), models.ExpenseContribution(cur).Neg())
	return nil
}

// Get 查询支出
func (s *ExpenseService) Get(ctx context.Context, id string) (*models.Expense, error) {
	return s.ledger.GetExpense(ctx, id)
}

// Transactions 查询支出的入账交易，按交易日期排序
func (s *ExpenseService) Transactions(ctx context.Context, id string) ([]models.ExpenseTransaction, error) {
	if _, err := s.ledger.GetExpense(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, id)
}

func (s *ExpenseService) requireCategory(ctx context.Context, categoryID uint) error {
	ok, err := s.ledger.CategoryExists(ctx, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrCategoryNotFound, categoryID)
	}
	return nil
}

// applyDelta 台账已提交，汇总失败只记录日志，由巡检修复
func (s *ExpenseService) applyDelta(ctx context.Context, expenseID string, categoryID uint, period models.Period, d models.SummaryDelta) {
	if d.IsZero() {
		return
	}
	if _, err := s.rollup.ApplyDelta(ctx, categoryID, period, d); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "汇总累加失败",
			"expense_id", expenseID,
			"category_id", categoryID,
			"period", period.String(),
			"error", err)
	}
}
