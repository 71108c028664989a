package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expenseledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSummaryStore 基于 gorm 的类别汇总缓存
type GormSummaryStore struct {
	db *gorm.DB
}

// NewGormSummaryStore 创建 gorm 汇总缓存
func NewGormSummaryStore(db *gorm.DB) *GormSummaryStore {
	return &GormSummaryStore{db: db}
}

var summaryKeyColumns = []clause.Column{{Name: "category_id"}, {Name: "period"}}

// incrementColumn 自增表达式须带表名，postgres 的 DO UPDATE 中裸列名与 EXCLUDED 冲突
func incrementColumn(column string, delta interface{}) clause.Expr {
	return gorm.Expr(models.CategorySummary{}.TableName()+"."+column+" + ?", delta)
}

func (s *GormSummaryStore) GetSummary(ctx context.Context, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	return s.get(s.db.WithContext(ctx), categoryID, period)
}

func (s *GormSummaryStore) get(db *gorm.DB, categoryID uint, period models.Period) (*models.CategorySummary, error) {
	var sum models.CategorySummary
	if err := db.Where("category_id = ? AND period = ?", categoryID, period.String()).First(&sum).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询类别汇总失败: %w", err)
	}
	return &sum, nil
}

// PutSummary 覆盖写入（重建汇总时使用）
func (s *GormSummaryStore) PutSummary(ctx context.Context, sum *models.CategorySummary) error {
	row := *sum
	row.PercentageChange = nil
	if row.ExpenseByCategoryID == "" {
		row.ExpenseByCategoryID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   summaryKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{"amount", "expense_count", "allocated", "obligated", "remaining", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("写入类别汇总失败: %w", err)
	}
	return nil
}

// AddDelta 使用 upsert + 列自增，保证并发增量不丢失
func (s *GormSummaryStore) AddDelta(ctx context.Context, categoryID uint, period models.Period, delta models.SummaryDelta) (*models.CategorySummary, error) {
	row := models.NewCategorySummary(uuid.NewString(), categoryID, period)
	row.Add(delta)

	var out *models.CategorySummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: summaryKeyColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount":        incrementColumn("amount", delta.Amount),
				"allocated":     incrementColumn("allocated", delta.Allocated),
				"obligated":     incrementColumn("obligated", delta.Obligated),
				"expense_count": incrementColumn("expense_count", delta.Count),
				"remaining":     incrementColumn("remaining", delta.Allocated.Sub(delta.Amount)),
				"updated_at":    time.Now(),
			}),
		}).Create(row).Error
		if err != nil {
			return fmt.Errorf("累加类别汇总失败: %w", err)
		}
		out, err = s.get(tx, categoryID, period)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormSummaryStore) HasSummaryBefore(ctx context.Context, categoryID uint, period models.Period) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.CategorySummary{}).
		Where("category_id = ? AND period < ? AND expense_count > 0", categoryID, period.String()).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("查询历史汇总失败: %w", err)
	}
	return n > 0, nil
}

func (s *GormSummaryStore) ListSummaryKeys(ctx context.Context) ([]models.SummaryKey, error) {
	var rows []struct {
		CategoryID uint
		Period     string
	}
	if err := s.db.WithContext(ctx).Model(&models.CategorySummary{}).
		Select("category_id, period").
		Order("category_id ASC, period ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询汇总列表失败: %w", err)
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
