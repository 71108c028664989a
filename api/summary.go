package api

import (
	"log/slog"
	"strconv"

	"expenseledger/middleware"
	"expenseledger/models"
	"expenseledger/service"

	"github.com/gin-gonic/gin"
)

// SummaryHandler 类别账期汇总处理器
type SummaryHandler struct {
	rollup *service.RollupEngine
}

// NewSummaryHandler 创建汇总处理器
func NewSummaryHandler(rollup *service.RollupEngine) *SummaryHandler {
	return &SummaryHandler{rollup: rollup}
}

// summaryKey 解析路径中的类别ID与账期
func summaryKey(c *gin.Context) (uint, models.Period, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id64 == 0 {
		BadRequest(c, "无效的类别ID")
		return 0, models.Period{}, false
	}
	period, err := models.ParsePeriod(c.Param("period"))
	if err != nil {
		BadRequest(c, "账期格式错误，应为: 2006-01")
		return 0, models.Period{}, false
	}
	return uint(id64), period, true
}

// Get 获取类别账期汇总
// @Summary 获取类别账期汇总
// @Description 读取汇总缓存，缓存缺失时由台账重算；percentage_change 为与上一账期已付金额的环比
// @Tags 汇总
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param period path string true "账期 (2024-05)"
// @Success 200 {object} Response{data=models.CategorySummary} "获取成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/categories/{id}/summaries/{period} [get]
func (h *SummaryHandler) Get(c *gin.Context) {
	categoryID, period, ok := summaryKey(c)
	if !ok {
		return
	}
	sum, err := h.rollup.Summary(c.Request.Context(), categoryID, period)
	if err != nil {
		ServiceError(c, err, "查询汇总失败")
		return
	}
	Success(c, sum)
}

// Rebuild 由台账重算并覆盖汇总
// @Summary 重算类别账期汇总
// @Tags 汇总
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param period path string true "账期 (2024-05)"
// @Success 200 {object} Response{data=models.CategorySummary} "重算成功"
// @Router /api/v1/categories/{id}/summaries/{period}/rebuild [post]
func (h *SummaryHandler) Rebuild(c *gin.Context) {
	categoryID, period, ok := summaryKey(c)
	if !ok {
		return
	}
	sum, err := h.rollup.Rebuild(c.Request.Context(), categoryID, period)
	if err != nil {
		ServiceError(c, err, "重算汇总失败")
		return
	}
	slog.Info("手动重算汇总", "component", "api", "operator", middleware.GetCurrentOperator(c),
		"category_id", categoryID, "period", period.String())
	SuccessWithMessage(c, "重算成功", sum)
}

// Verify 比对汇总缓存与台账
// @Summary 校验类别账期汇总
// @Tags 汇总
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param period path string true "账期 (2024-05)"
// @Success 200 {object} Response{data=service.DriftReport} "校验完成"
// @Router /api/v1/categories/{id}/summaries/{period}/verify [get]
func (h *SummaryHandler) Verify(c *gin.Context) {
	categoryID, period, ok := summaryKey(c)
	if !ok {
		return
	}
	report, err := h.rollup.Verify(c.Request.Context(), categoryID, period)
	if err != nil {
		ServiceError(c, err, "校验汇总失败")
		return
	}
	Success(c, report)
}

// periodSummaries 读取查询参数中账期的所有类别汇总
func (h *SummaryHandler) periodSummaries(c *gin.Context) (models.Period, []*models.CategorySummary, bool) {
	period, err := models.ParsePeriod(c.Query("period"))
	if err != nil {
		BadRequest(c, "账期格式错误，应为: 2006-01")
		return models.Period{}, nil, false
	}
	sums, err := h.rollup.PeriodSummaries(c.Request.Context(), period)
	if err != nil {
		ServiceError(c, err, "查询汇总失败")
		return models.Period{}, nil, false
	}
	return period, sums, true
}

// List 获取账期内所有类别的汇总
// @Summary 账期汇总列表
// @Tags 汇总
// @Produce json
// @Security BearerAuth
// @Param period query string true "账期 (2024-05)"
// @Success 200 {object} Response{data=[]models.CategorySummary} "获取成功"
// @Router /api/v1/summaries [get]
func (h *SummaryHandler) List(c *gin.Context) {
	_, sums, ok := h.periodSummaries(c)
	if !ok {
		return
	}
	if sums == nil {
		sums = []*models.CategorySummary{}
	}
	Success(c, sums)
}
