package database

import (
	"testing"

	"expenseledger/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
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

func TestBuildDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:   "mysql",
		Host:     "db",
		Port:     "3306",
		Username: "ledger",
		Password: "secret",
		DBName:   "expense_ledger",
		Charset:  "utf8mb4",
	}
	dsn, err := BuildDSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ledger:secret@tcp(db:3306)/expense_ledger?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	cfg.Driver = "postgres"
	cfg.Port = "5432"
	dsn, err = BuildDSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=ledger password=secret dbname=expense_ledger sslmode=disable TimeZone=UTC", dsn)

	cfg.Driver = "sqlite"
	_, err = BuildDSN(cfg)
	assert.Error(t, err)

	_, err = Dialector(cfg)
	assert.Error(t, err)
}

func TestDialector(t *testing.T) {
	d, err := Dialector(config.DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector(config.DatabaseConfig{Driver: "mysql", Host: "db", Port: "3306"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())
}

func TestSeedCategories(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expense_categories`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `expense_categories`").
		WillReturnResult(sqlmock.NewResult(1, 8))
	mock.ExpectCommit()

	require.NoError(t, SeedCategories(db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedCategories_NotEmpty(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `expense_categories`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, SeedCategories(db))
	require.NoError(t, mock.ExpectationsWereMet())
}
