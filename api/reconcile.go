package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"expenseledger/middleware"
	"expenseledger/models"
	"expenseledger/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// maxBatchSize 单次提交的交易数上限
const maxBatchSize = 500

// 支持的日期格式
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// parseDate 解析请求中的日期
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无效的日期: %q", s)
}

// ReconcileHandler 付款交易提交处理器
type ReconcileHandler struct {
	coordinator *service.Coordinator
}

// NewReconcileHandler 创建交易提交处理器
func NewReconcileHandler(coordinator *service.Coordinator) *ReconcileHandler {
	return &ReconcileHandler{coordinator: coordinator}
}

// TransactionRequest 付款交易
type TransactionRequest struct {
	ID            string          `json:"id" example:"txn-20240505-001"`
	ExpenseID     string          `json:"expense_id" example:"6f1c..."`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string" example:"400.00"`
	PaymentMethod string          `json:"payment_method" example:"Bank Transfer"`
	Status        string          `json:"status" example:"COMPLETED"`
	Date          string          `json:"date" example:"2024-05-05"`
}

// SubmitRequest 批量提交请求
type SubmitRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

// SubmitResponse 批量提交结果，Results 与提交顺序一致
type SubmitResponse struct {
	Results []service.Result        `json:"results"`
	Counts  map[service.Outcome]int `json:"counts"`
}

func (r TransactionRequest) toModel() (models.ExpenseTransaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return models.ExpenseTransaction{}, err
	}
	return models.ExpenseTransaction{
		ID:            strings.TrimSpace(r.ID),
		ExpenseID:     strings.TrimSpace(r.ExpenseID),
		Amount:        r.Amount,
		PaymentMethod: models.PaymentMethod(r.PaymentMethod),
		Status:        models.TransactionStatus(strings.ToUpper(r.Status)),
		Date:          date,
	}, nil
}

// Submit 批量提交付款交易
// @Summary 提交付款交易
// @Description 按支出分组、组内按日期顺序入账，逐笔返回结果；业务拒绝不影响同批其他交易
// @Tags 对账
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitRequest true "交易列表"
// @Success 200 {object} Response{data=SubmitResponse} "处理完成"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 429 {object} Response "提交过于频繁"
// @Failure 500 {object} Response "存储故障"
// @Router /api/v1/transactions [post]
func (h *ReconcileHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	if len(req.Transactions) == 0 {
		BadRequest(c, "交易列表不能为空")
		return
	}
	if len(req.Transactions) > maxBatchSize {
		BadRequest(c, fmt.Sprintf("单次最多提交 %d 笔交易", maxBatchSize))
		return
	}

	txs := make([]models.ExpenseTransaction, 0, len(req.Transactions))
	for i, r := range req.Transactions {
		tx, err := r.toModel()
		if err != nil {
			BadRequest(c, fmt.Sprintf("第 %d 笔交易: %v", i+1, err))
			return
		}
		txs = append(txs, tx)
	}

	results, err := h.coordinator.Submit(c.Request.Context(), txs)
	resp := SubmitResponse{Results: results, Counts: countOutcomes(results)}
	if err != nil {
		slog.Error("批量入账中断", "component", "api", "operator", middleware.GetCurrentOperator(c), "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Code:    http.StatusInternalServerError,
			Message: SafeErrorMessage(err, "入账失败，请稍后重试"),
			Data:    resp,
		})
		return
	}
	Success(c, resp)
}

// SubmitOne 提交单笔付款交易
// @Summary 提交单笔付款交易
// @Tags 对账
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransactionRequest true "交易"
// @Success 200 {object} Response{data=service.Result} "入账成功或重复提交"
// @Failure 404 {object} Response "支出不存在"
// @Failure 409 {object} Response "并发冲突或支出已结清"
// @Failure 422 {object} Response "交易不合法或超额付款"
// @Router /api/v1/transactions/single [post]
func (h *ReconcileHandler) SubmitOne(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	tx, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	res, err := h.coordinator.SubmitOne(c.Request.Context(), tx)
	if err != nil {
		ServiceError(c, err, "入账失败，请稍后重试")
		return
	}
	switch res.Outcome {
	case service.OutcomeApplied, service.OutcomeDuplicate:
		Success(c, res)
	default:
		// 业务拒绝按原因映射状态码
		if res.Err == nil {
			res.Err = errors.New(res.Error)
		}
		ServiceError(c, res.Err, "入账失败")
	}
}

func countOutcomes(results []service.Result) map[service.Outcome]int {
	counts := make(map[service.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	return counts
}
