package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"expenseledger/middleware"
	"expenseledger/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ExpenseHandler 支出记录处理器
type ExpenseHandler struct {
	expenses *service.ExpenseService
}

// NewExpenseHandler 创建支出记录处理器
func NewExpenseHandler(expenses *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses}
}

// CreateExpenseRequest 登记支出请求
type CreateExpenseRequest struct {
	CategoryID  uint            `json:"category_id" example:"1"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"1000.00"`
	Budget      decimal.Decimal `json:"budget" swaggertype:"string" example:"1200.00"`
	DueDate     string          `json:"due_date" example:"2024-05-31"`
	Vendor      string          `json:"vendor" example:"物业公司"`
	Description string          `json:"description" example:"五月租金"`
}

// UpdateExpenseRequest 更正支出请求，Version 为读取时的版本号
type UpdateExpenseRequest struct {
	Version    int64            `json:"version" example:"3"`
	CategoryID *uint            `json:"category_id" example:"2"`
	Amount     *decimal.Decimal `json:"amount" swaggertype:"string" example:"1100.00"`
	Budget     *decimal.Decimal `json:"budget" swaggertype:"string" example:"1200.00"`
	DueDate    *string          `json:"due_date" example:"2024-06-30"`
}

// Create 登记支出
// @Summary 登记支出
// @Description 登记一条应付支出，账期由到期日推导
// @Tags 支出
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "支出信息"
// @Success 200 {object} Response{data=models.Expense} "登记成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "类别不存在"
// @Failure 422 {object} Response "支出不合法"
// @Router /api/v1/expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	exp, err := h.expenses.Register(c.Request.Context(), service.ExpenseInput{
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Budget:      req.Budget,
		DueDate:     due,
		Vendor:      strings.TrimSpace(req.Vendor),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		ServiceError(c, err, "登记失败")
		return
	}
	slog.Info("登记支出", "component", "api", "operator", middleware.GetCurrentOperator(c), "expense_id", exp.ID)
	SuccessWithMessage(c, "登记成功", exp)
}

// Get 获取支出详情
// @Summary 获取支出详情
// @Tags 支出
// @Produce json
// @Security BearerAuth
// @Param id path string true "支出ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 404 {object} Response "支出不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	exp, err := h.expenses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err, "查询失败")
		return
	}
	Success(c, exp)
}

// Update 更正支出
// @Summary 更正支出
// @Description 按版本号更正类别、金额、预算或到期日；已结清的支出不能改金额，金额不能低于已付金额
// @Tags 支出
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "支出ID"
// @Param request body UpdateExpenseRequest true "更正内容"
// @Success 200 {object} Response{data=models.Expense} "更正成功"
// @Failure 404 {object} Response "支出或类别不存在"
// @Failure 409 {object} Response "版本冲突或支出已结清"
// @Failure 422 {object} Response "支出不合法"
// @Router /api/v1/expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	correction := service.ExpenseCorrection{
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Budget:     req.Budget,
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		correction.DueDate = &due
	}

	exp, err := h.expenses.Correct(c.Request.Context(), c.Param("id"), req.Version, correction)
	if err != nil {
		ServiceError(c, err, "更正失败")
		return
	}
	slog.Info("更正支出", "component", "api", "operator", middleware.GetCurrentOperator(c), "expense_id", exp.ID, "version", exp.Version)
	SuccessWithMessage(c, "更正成功", exp)
}

// Delete 删除支出
// @Summary 删除支出
// @Description 仅允许删除没有付款交易的支出
// @Tags 支出
// @Produce json
// @Security BearerAuth
// @Param id path string true "支出ID"
// @Param version query int false "读取时的版本号"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "支出不存在"
// @Failure 409 {object} Response "版本冲突或已有付款交易"
// @Router /api/v1/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	var version int64
	if v := c.Query("version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			BadRequest(c, "无效的版本号")
			return
		}
		version = parsed
	}

	id := c.Param("id")
	if err := h.expenses.Delete(c.Request.Context(), id, version); err != nil {
		ServiceError(c, err, "删除失败")
		return
	}
	slog.Info("删除支出", "component", "api", "operator", middleware.GetCurrentOperator(c), "expense_id", id)
	SuccessWithMessage(c, "删除成功", nil)
}

// TransactionItem 付款交易展示项
type TransactionItem struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"string"`
	PaymentMethod   string          `json:"payment_method"`
	Date            time.Time       `json:"date"`
	PaidAmountAfter decimal.Decimal `json:"paid_amount_after" swaggertype:"string"`
	StatusAfter     string          `json:"status_after"`
	AppliedAt       *time.Time      `json:"applied_at"`
}

// Transactions 获取支出的付款交易
// @Summary 获取支出的付款交易
// @Tags 支出
// @Produce json
// @Security BearerAuth
// @Param id path string true "支出ID"
// @Success 200 {object} Response{data=[]TransactionItem} "获取成功"
// @Failure 404 {object} Response "支出不存在"
// @Router /api/v1/expenses/{id}/transactions [get]
func (h *ExpenseHandler) Transactions(c *gin.Context) {
	txs, err := h.expenses.Transactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err, "查询失败")
		return
	}
	items := make([]TransactionItem, 0, len(txs))
	for _, tx := range txs {
		items = append(items, TransactionItem{
			ID:              tx.ID,
			Amount:          tx.Amount,
			PaymentMethod:   string(tx.PaymentMethod),
			Date:            tx.Date,
			PaidAmountAfter: tx.PaidAmountAfter,
			StatusAfter:     string(tx.StatusAfter),
			AppliedAt:       tx.AppliedAt,
		})
	}
	Success(c, items)
}
