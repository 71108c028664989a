package store

import (
	"context"
	"errors"
	"fmt"

	"expenseledger/models"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的支出台账
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 gorm 支出台账
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	var e models.Expense
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询支出失败: %w", err)
	}
	return &e, nil
}

// UpdatePaymentFields 版本号不一致时不覆盖，返回 ErrConflict
func (s *GormStore) UpdatePaymentFields(ctx context.Context, u PaymentUpdate) (*models.Expense, error) {
	var updated models.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND version = ?", u.ExpenseID, u.ExpectedVersion).
			Updates(map[string]interface{}{
				"paid_amount":       u.PaidAmount,
				"status":            u.Status,
				"last_payment_date": u.LastPaymentDate,
				"version":           gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("更新付款字段失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.missOrConflict(tx, u.ExpenseID)
		}

		rec := u.Transaction
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("写入交易失败: %w", err)
		}

		return tx.Where("id = ?", u.ExpenseID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// missOrConflict 区分记录不存在与版本冲突
func (s *GormStore) missOrConflict(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&models.Expense{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("查询支出失败: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *GormStore) FindTransaction(ctx context.Context, id string) (*models.ExpenseTransaction, error) {
	var t models.ExpenseTransaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	return &t, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, expenseID string) ([]models.ExpenseTransaction, error) {
	var list []models.ExpenseTransaction
	if err := s.db.WithContext(ctx).
		Where("expense_id = ?", expenseID).
		Order("date ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询交易列表失败: %w", err)
	}
	return list, nil
}

func (s *GormStore) CreateExpense(ctx context.Context, e *models.Expense) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateExpense
		}
		return fmt.Errorf("创建支出失败: %w", err)
	}
	return nil
}

func (s *GormStore) CorrectExpense(ctx context.Context, expectedVersion int64, e *models.Expense) (*models.Expense, error) {
	var updated models.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND version = ?", e.ID, expectedVersion).
			Updates(map[string]interface{}{
				"category_id": e.CategoryID,
				"amount":      e.Amount,
				"budget":      e.Budget,
				"status":      e.Status,
				"due_date":    e.DueDate,
				"period":      e.Period,
				"version":     gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("更正支出失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.missOrConflict(tx, e.ID)
		}
		return tx.Where("id = ?", e.ID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteExpense 存在关联交易时拒绝删除
func (s *GormStore) DeleteExpense(ctx context.Context, id string, expectedVersion int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.ExpenseTransaction{}).Where("expense_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("查询关联交易失败: %w", err)
		}
		if n > 0 {
			return ErrHasTransactions
		}
		res := tx.Where("id = ? AND version = ?", id, expectedVersion).Delete(&models.Expense{})
		if res.Error != nil {
			return fmt.Errorf("删除支出失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.missOrConflict(tx, id)
		}
		return nil
	})
}

func (s *GormStore) ListExpenses(ctx context.Context, categoryID uint, period models.Period) ([]models.Expense, error) {
	var list []models.Expense
	if err := s.db.WithContext(ctx).
		Where("category_id = ? AND period = ?", categoryID, period.String()).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询支出列表失败: %w", err)
	}
	return list, nil
}

// ListExpenseKeys 台账中出现过的 (类别, 账期)，不含软删除的支出
func (s *GormStore) ListExpenseKeys(ctx context.Context) ([]models.SummaryKey, error) {
	var rows []struct {
		CategoryID uint
		Period     string
	}
	if err := s.db.WithContext(ctx).Model(&models.Expense{}).
		Distinct("category_id", "period").
		Order("category_id ASC, period ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询支出账期失败: %w", err)
	}
	keys := make([]models.SummaryKey, 0, len(rows))
	for _, r := range rows {
		p, err := models.ParsePeriod(r.Period)
		if err != nil {
			return nil, err
		}
		keys = append(keys, models.SummaryKey{CategoryID: r.CategoryID, Period: p})
	}
	return keys, nil
}

func (s *GormStore) HasExpensesBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Expense{}).
		Where("category_id = ? AND period < ?", categoryID, period.String()).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("查询历史支出失败: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) CategoryExists(ctx context.Context, categoryID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ExpenseCategory{}).
		Where("id = ?", categoryID).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("查询类别失败: %w", err)
	}
	return n > 0, nil
}
