package router

import (
	"expenseledger/api"
	"expenseledger/config"
	_ "expenseledger/docs"
	"expenseledger/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Reconcile *api.ReconcileHandler
	Expense   *api.ExpenseHandler
	Summary   *api.SummaryHandler
	// Category 内存驱动下没有类别表，为 nil 时不注册类别管理接口
	Category *api.CategoryHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	// 设置运行模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS 中间件
	r.Use(CORSMiddleware())

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	v1 := r.Group("/api/v1")
	if cfg.JWT.Enabled() {
		v1.Use(middleware.JWTAuth())
	}
	{
		// 付款交易提交限流
		submit := v1.Group("/transactions")
		submit.Use(middleware.RateLimit(cfg.Reconcile.SubmitRateLimit, cfg.Reconcile.SubmitRateWindow))
		{
			submit.POST("", h.Reconcile.Submit)
			submit.POST("/single", h.Reconcile.SubmitOne)
		}

		v1.POST("/expenses", h.Expense.Create)
		v1.GET("/expenses/:id", h.Expense.Get)
		v1.PUT("/expenses/:id", h.Expense.Update)
		v1.DELETE("/expenses/:id", h.Expense.Delete)
		v1.GET("/expenses/:id/transactions", h.Expense.Transactions)

		v1.GET("/summaries", h.Summary.List)
		v1.GET("/categories/:id/summaries/:period", h.Summary.Get)
		v1.POST("/categories/:id/summaries/:period/rebuild", h.Summary.Rebuild)
		v1.GET("/categories/:id/summaries/:period/verify", h.Summary.Verify)

		if h.Category != nil {
			v1.GET("/categories", h.Category.List)
			v1.POST("/categories", h.Category.Create)
			v1.PUT("/categories/:id", h.Category.Update)
			v1.DELETE("/categories/:id", h.Category.Delete)
		}
	}

	return r
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
