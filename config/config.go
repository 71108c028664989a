package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Rollup    RollupConfig    `mapstructure:"rollup"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Email     EmailConfig     `mapstructure:"email"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 数据库配置
// Driver: mysql / postgres / memory
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	Charset      string `mapstructure:"charset"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ReconcileConfig 对账配置
type ReconcileConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	Workers          int           `mapstructure:"workers"`
	SubmitRateLimit  int           `mapstructure:"submit_rate_limit"`
	SubmitRateWindow time.Duration `mapstructure:"submit_rate_window"`
}

// RollupConfig 汇总巡检配置，AuditInterval 为 0 时不巡检
type RollupConfig struct {
	AuditInterval time.Duration `mapstructure:"audit_interval"`
}

// AMQPConfig 消息配置，URL 为空时不发布入账事件
type AMQPConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// Enabled 是否启用消息发布
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// JWTConfig 接口鉴权配置，Secret 为空时不鉴权
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// Enabled 是否启用接口鉴权
func (c JWTConfig) Enabled() bool {
	return c.Secret != ""
}

// EmailConfig 巡检告警邮件配置
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 环境变量 > 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}
	log.Println("已加载内置默认配置")

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Printf("警告: 无法读取指定配置文件 %s: %v", configPath, err)
		} else {
			log.Printf("已合并外部配置文件: %s", configPath)
		}
	} else {
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/expenseledger")
		externalViper.AddConfigPath("$HOME/.expenseledger")

		if err := externalViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Printf("警告: 合并外部配置失败: %v", err)
			} else {
				log.Printf("已合并外部配置文件: %s", externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 环境变量覆盖，如 LEDGER_DATABASE_PASSWORD
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 设置 JWT 过期时间
	if cfg.JWT.ExpireHours <= 0 {
		cfg.JWT.ExpireHours = 24
	}
	cfg.JWT.ExpireTime = time.Duration(cfg.JWT.ExpireHours) * time.Hour

	GlobalConfig = &cfg

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver))
	}
	if c.Reconcile.MaxRetries < 1 {
		errs = append(errs, errors.New("reconcile.max_retries 必须大于等于 1"))
	}
	if c.Reconcile.Workers < 1 {
		errs = append(errs, errors.New("reconcile.workers 必须大于等于 1"))
	}
	if c.Reconcile.SubmitRateLimit > 0 && c.Reconcile.SubmitRateWindow <= 0 {
		errs = append(errs, errors.New("reconcile.submit_rate_window 必须大于 0"))
	}
	if c.Rollup.AuditInterval < 0 {
		errs = append(errs, errors.New("rollup.audit_interval 不能为负数"))
	}
	if c.AMQP.Enabled() {
		if !strings.HasPrefix(c.AMQP.URL, "amqp://") && !strings.HasPrefix(c.AMQP.URL, "amqps://") {
			errs = append(errs, errors.New("amqp.url 必须以 amqp:// 或 amqps:// 开头"))
		}
		if c.AMQP.Exchange == "" {
			errs = append(errs, errors.New("amqp.exchange 不能为空"))
		}
	}
	if c.JWT.Enabled() && len(c.JWT.Secret) < 16 {
		errs = append(errs, errors.New("jwt.secret 长度不能少于 16"))
	}
	if c.Email.Enabled && (c.Email.Host == "" || len(c.Email.To) == 0) {
		errs = append(errs, errors.New("email 启用时 host 与 to 不能为空"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
	}
	return nil
}

// MustLoadConfig 加载配置，失败则 panic
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	return cfg
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("配置未初始化，请先调用 LoadConfig")
	}
	return GlobalConfig
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	log.Printf("当前配置:")
	log.Printf("  服务器: %s (模式: %s)", GlobalConfig.Server.Port, GlobalConfig.Server.Mode)
	if GlobalConfig.Database.Driver == "memory" {
		log.Printf("  数据库: memory")
	} else {
		log.Printf("  数据库: %s %s@%s:%s/%s",
			GlobalConfig.Database.Driver,
			GlobalConfig.Database.Username,
			GlobalConfig.Database.Host,
			GlobalConfig.Database.Port,
			GlobalConfig.Database.DBName)
	}
	log.Printf("  对账: 重试 %d 次, 并发 %d", GlobalConfig.Reconcile.MaxRetries, GlobalConfig.Reconcile.Workers)
	log.Printf("  汇总巡检间隔: %s", GlobalConfig.Rollup.AuditInterval)
	log.Printf("  消息发布: %v", GlobalConfig.AMQP.Enabled())
	log.Printf("  接口鉴权: %v", GlobalConfig.JWT.Enabled())
	log.Printf("  巡检告警邮件: %v", GlobalConfig.Email.Enabled)
}

// SafeErrorMessage 生产环境下不向客户端暴露内部错误详情
func SafeErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if GlobalConfig != nil && GlobalConfig.Server.Mode == "release" {
		return fallback
	}
	return err.Error()
}
