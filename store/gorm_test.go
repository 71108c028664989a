package store

import (
	"context"
	"testing"
	"time"

	"expenseledger/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock, func() {
		sqlDB.Close()
	}
}

var expenseColumns = []string{"id", "category_id", "amount", "budget", "paid_amount", "status", "due_date", "period", "version"}

func TestGormStore_GetExpense(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectQuery("SELECT \\* FROM `expenses`").
		WillReturnRows(sqlmock.NewRows(expenseColumns).
			AddRow("exp-1", 3, "1000.00", "1200.00", "400.00", "PARTIAL", time.Now(), "2024-05", 2))

	e, err := s.GetExpense(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, uint(3), e.CategoryID)
	assert.True(t, dec("400").Equal(e.PaidAmount))
	assert.Equal(t, models.PaymentStatusPartial, e.Status)
	assert.Equal(t, int64(2), e.Version)

	mock.ExpectQuery("SELECT \\* FROM `expenses`").
		WillReturnRows(sqlmock.NewRows(expenseColumns))
	_, err = s.GetExpense(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdatePaymentFields(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `expenses` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `expense_transactions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `expenses`").
		WillReturnRows(sqlmock.NewRows(expenseColumns).
			AddRow("exp-1", 3, "1000.00", "1200.00", "400.00", "PARTIAL", time.Now(), "2024-05", 2))
	mock.ExpectCommit()

	updated, err := s.UpdatePaymentFields(context.Background(), paymentUpdate("exp-1", "tx-1", 1, "400"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdatePaymentFields_Conflict(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	// 版本号不匹配：更新 0 行，记录仍存在
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `expenses` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expenses`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.UpdatePaymentFields(context.Background(), paymentUpdate("exp-1", "tx-1", 1, "400"))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdatePaymentFields_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `expenses` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expenses`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := s.UpdatePaymentFields(context.Background(), paymentUpdate("missing", "tx-1", 1, "400"))
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdatePaymentFields_DuplicateTransaction(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	// 交易主键冲突时整体回滚，付款字段不落库
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `expenses` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `expense_transactions`").
		WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectRollback()

	_, err := s.UpdatePaymentFields(context.Background(), paymentUpdate("exp-1", "tx-1", 1, "400"))
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteExpense_HasTransactions(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expense_transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := s.DeleteExpense(context.Background(), "exp-1", 1)
	assert.ErrorIs(t, err, ErrHasTransactions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteExpense(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	// 软删除
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expense_transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE `expenses` SET `deleted_at`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteExpense(context.Background(), "exp-1", 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CategoryExists(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expense_categories`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := s.CategoryExists(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListExpenseKeys(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormStore(db)

	mock.ExpectQuery("SELECT DISTINCT `category_id`,`period` FROM `expenses` WHERE `expenses`.`deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "period"}).
			AddRow(1, "2024-05").
			AddRow(2, "2024-04"))

	keys, err := s.ListExpenseKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, uint(2), keys[1].CategoryID)
	assert.Equal(t, "2024-04", keys[1].Period.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

var summaryColumns = []string{"expense_by_category_id", "category_id", "period", "amount", "expense_count", "allocated", "obligated", "remaining"}

func TestGormSummaryStore_AddDelta(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormSummaryStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `expense_by_category_summaries`.*ON DUPLICATE KEY UPDATE " +
		"`allocated`=expense_by_category_summaries\\.allocated \\+ \\?,`amount`=expense_by_category_summaries\\.amount \\+ \\?").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT \\* FROM `expense_by_category_summaries`").
		WillReturnRows(sqlmock.NewRows(summaryColumns).
			AddRow("sum-1", 3, "2024-05", "400.00", 1, "1200.00", "1000.00", "800.00"))
	mock.ExpectCommit()

	may := models.Period{Year: 2024, Month: time.May}
	sum, err := s.AddDelta(context.Background(), 3, may, models.SummaryDelta{Amount: dec("400")})
	require.NoError(t, err)
	assert.Equal(t, "sum-1", sum.ExpenseByCategoryID)
	assert.Equal(t, int64(1), sum.Count)
	assert.True(t, dec("800").Equal(sum.Remaining))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSummaryStore_AddDelta_Postgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:             sqlDB,
		WithoutReturning: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	s := NewGormSummaryStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "expense_by_category_summaries".*ON CONFLICT \("category_id","period"\) DO UPDATE SET ` +
		`"allocated"=expense_by_category_summaries\.allocated \+ \$\d+,` +
		`"amount"=expense_by_category_summaries\.amount \+ \$\d+,` +
		`"expense_count"=expense_by_category_summaries\.expense_count \+ \$\d+,` +
		`"obligated"=expense_by_category_summaries\.obligated \+ \$\d+,` +
		`"remaining"=expense_by_category_summaries\.remaining \+ \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "expense_by_category_summaries"`).
		WillReturnRows(sqlmock.NewRows(summaryColumns).
			AddRow("sum-1", 3, "2024-05", "650.00", 2, "1200.00", "1000.00", "550.00"))
	mock.ExpectCommit()

	may := models.Period{Year: 2024, Month: time.May}
	sum, err := s.AddDelta(context.Background(), 3, may, models.SummaryDelta{Amount: dec("250")})
	require.NoError(t, err)
	assert.True(t, dec("650").Equal(sum.Amount))
	assert.Equal(t, int64(2), sum.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSummaryStore_GetSummary_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormSummaryStore(db)

	mock.ExpectQuery("SELECT \\* FROM `expense_by_category_summaries`").
		WillReturnRows(sqlmock.NewRows(summaryColumns))

	_, err := s.GetSummary(context.Background(), 3, models.Period{Year: 2024, Month: time.May})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSummaryStore_ListSummaryKeys(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	s := NewGormSummaryStore(db)

	mock.ExpectQuery("SELECT category_id, period FROM `expense_by_category_summaries`").
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "period"}).
			AddRow(1, "2024-04").
			AddRow(1, "2024-05"))

	keys, err := s.ListSummaryKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "2024-05", keys[1].Period.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
