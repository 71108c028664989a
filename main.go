package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"expenseledger/api"
	"expenseledger/config"
	"expenseledger/database"
	"expenseledger/messaging"
	"expenseledger/middleware"
	"expenseledger/models"
	"expenseledger/router"
	"expenseledger/service"
	"expenseledger/store"

	"github.com/joho/godotenv"
)

// @title 支出对账 API
// @version 1.0
// @description 支出付款对账与类别预算汇总服务
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	configFile  string
	port        string
	issueToken  string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.StringVar(&issueToken, "token", "", "为指定操作员签发接口令牌并退出")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

// memoryCategoryIDs 内存驱动下可用的类别ID，与默认类别一一对应
func memoryCategoryIDs() []uint {
	ids := make([]uint, len(models.GetCategories()))
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	return ids
}

func main() {
	flag.Parse()

	if showVersion {
		log.Println("支出对账服务 v1.0.0")
		return
	}

	// 本地开发时从 .env 读取环境变量，文件不存在则忽略
	if err := godotenv.Load(); err == nil {
		log.Println("已加载 .env")
	}

	// 加载配置（内置配置 + 可选的外部配置覆盖）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 命令行参数覆盖端口配置
	if port != "" {
		cfg.Server.Port = port
		log.Printf("命令行指定端口: %s", port)
	}
	// 自动添加冒号前缀
	if !strings.HasPrefix(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}

	middleware.InitJWT(cfg)
	if issueToken != "" {
		token, err := middleware.GenerateToken(issueToken, cfg.JWT.ExpireTime)
		if err != nil {
			log.Fatalf("签发令牌失败: %v", err)
		}
		fmt.Println(token)
		return
	}

	// 打印配置信息
	config.PrintConfig()

	var (
		ledger   store.ExpenseStore
		cache    store.SummaryStore
		category *api.CategoryHandler
	)
	if cfg.Database.Driver == "memory" {
		mem := store.NewMemoryStore(memoryCategoryIDs()...)
		ledger, cache = mem, mem
		log.Println("使用内存存储，数据不会持久化")
	} else {
		if err := database.Init(cfg); err != nil {
			log.Fatalf("数据库初始化失败: %v", err)
		}
		db := database.GetDB()
		ledger, cache = store.NewGormStore(db), store.NewGormSummaryStore(db)
		category = api.NewCategoryHandler(db)
	}

	// 入账事件发布（可选）
	var publisher service.EventPublisher
	if cfg.AMQP.Enabled() {
		p, err := messaging.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			log.Fatalf("连接消息服务失败: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	rollup := service.NewRollupEngine(ledger, cache)
	applier := service.NewApplier(ledger, cfg.Reconcile.MaxRetries)
	coordinator := service.NewCoordinator(applier, rollup, publisher, cfg.Reconcile.Workers)
	expenses := service.NewExpenseService(ledger, rollup)

	// 汇总巡检
	var notifier service.AuditNotifier
	if cfg.Email.Enabled {
		notifier = service.NewEmailService(&cfg.Email)
	}
	auditor := service.NewRollupAuditor(rollup, notifier)
	auditor.Start(cfg.Rollup.AuditInterval)
	defer auditor.Stop()

	// 设置路由
	r := router.SetupRouter(cfg, router.Handlers{
		Reconcile: api.NewReconcileHandler(coordinator),
		Expense:   api.NewExpenseHandler(expenses),
		Summary:   api.NewSummaryHandler(rollup),
		Category:  category,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("==========================================")
		log.Printf("  支出对账服务已启动")
		log.Printf("==========================================")
		log.Printf("  Swagger:  http://localhost%s/swagger/index.html", cfg.Server.Port)
		log.Printf("  API接口:  http://localhost%s/api/v1/", cfg.Server.Port)
		log.Printf("==========================================")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("收到信号 %s，正在关闭...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("服务器关闭超时: %v", err)
	}
	log.Println("服务已停止")
}
