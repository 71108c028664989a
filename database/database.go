package database

import (
	"fmt"
	"log"

	"expenseledger/config"
	"expenseledger/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// BuildDSN 按驱动构建连接字符串
func BuildDSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
		), nil
	case "postgres":
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.DBName,
			sslmode,
		), nil
	default:
		return "", fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}
}

// Dialector 按配置选择 gorm 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "postgres" {
		return postgres.Open(dsn), nil
	}
	return mysql.Open(dsn), nil
}

// Init 初始化数据库连接
func Init(cfg *config.Config) error {
	dialector, err := Dialector(cfg.Database)
	if err != nil {
		return err
	}

	logLevel := logger.Info
	if cfg.Server.Mode == "release" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 获取底层 *sql.DB 连接池配置
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	maxIdle, maxOpen := cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	if maxOpen <= 0 {
		maxOpen = 100
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)

	if err := Migrate(db); err != nil {
		return err
	}
	if err := SeedCategories(db); err != nil {
		log.Printf("警告: 初始化默认类别失败: %v", err)
	}

	DB = db
	log.Println("数据库初始化成功")
	return nil
}

// Migrate 自动迁移数据库表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ExpenseCategory{},
		&models.Expense{},
		&models.ExpenseTransaction{},
		&models.CategorySummary{},
	); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}
	return nil
}

// SeedCategories 初始化默认支出类别（仅当表为空时）
func SeedCategories(db *gorm.DB) error {
	var catCount int64
	if err := db.Model(&models.ExpenseCategory{}).Count(&catCount).Error; err != nil {
		return err
	}
	if catCount > 0 {
		return nil
	}

	colorMap := map[string]string{
		models.CategoryRent:        "#ef4444", // 红色
		models.CategoryUtilities:   "#3b82f6", // 蓝色
		models.CategoryPurchasing:  "#a855f7", // 紫色
		models.CategoryPayroll:     "#f59e0b", // 橙色
		models.CategoryLogistics:   "#14b8a6", // 青色
		models.CategoryMarketing:   "#ec4899", // 粉色
		models.CategoryMaintenance: "#10b981", // 绿色
	}
	var cats []models.ExpenseCategory
	for i, name := range models.GetCategories() {
		color := colorMap[name]
		if color == "" {
			color = "#64748b" // 默认灰色
		}
		cats = append(cats, models.ExpenseCategory{
			Name:  name,
			Sort:  (i + 1) * 10,
			Color: color,
		})
	}
	return db.Create(&cats).Error
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}
