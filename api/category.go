package api

import (
	"errors"
	"strconv"
	"strings"

	"expenseledger/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// defaultCategoryColor 默认灰色
const defaultCategoryColor = "#64748b"

// CategoryHandler 支出类别管理，仅在数据库驱动下启用
type CategoryHandler struct {
	db *gorm.DB
}

// NewCategoryHandler 创建类别处理器
func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{db: db}
}

type CategoryCreateRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=50"`
	Sort  int    `json:"sort"`
	Color string `json:"color" binding:"omitempty,max=20"` // 颜色代码，如 #ef4444
}

type CategoryUpdateRequest struct {
	Name  string  `json:"name" binding:"omitempty,min=1,max=50"`
	Sort  *int    `json:"sort"`
	Color *string `json:"color" binding:"omitempty,max=20"`
}

func parseCategoryID(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id64 == 0 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id64), true
}

// List 列出所有类别（不包含软删除）
// @Summary 获取支出类别列表
// @Tags 支出类别
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.ExpenseCategory} "获取成功"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	var list []models.ExpenseCategory
	if err := h.db.WithContext(c.Request.Context()).Order("sort ASC, id ASC").Find(&list).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, list)
}

// Create 创建类别
// @Summary 创建支出类别
// @Tags 支出类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CategoryCreateRequest true "类别信息"
// @Success 200 {object} Response{data=models.ExpenseCategory} "创建成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 409 {object} Response "类别名称已存在"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req CategoryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(c, "名称不能为空")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var existing models.ExpenseCategory
	if err := db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		Conflict(c, "类别名称已存在")
		return
	}

	color := req.Color
	if color == "" {
		color = defaultCategoryColor
	}
	cat := models.ExpenseCategory{Name: req.Name, Sort: req.Sort, Color: color}
	if err := db.Create(&cat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "类别名称已存在")
			return
		}
		InternalError(c, SafeErrorMessage(err, "创建失败"))
		return
	}
	SuccessWithMessage(c, "创建成功", cat)
}

// Update 更新类别
// @Summary 更新支出类别
// @Tags 支出类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param request body CategoryUpdateRequest true "更新的类别信息"
// @Success 200 {object} Response{data=models.ExpenseCategory} "更新成功"
// @Failure 404 {object} Response "类别不存在"
// @Failure 409 {object} Response "类别名称已存在"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())

	var cat models.ExpenseCategory
	if err := db.First(&cat, id).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	var req CategoryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			BadRequest(c, "名称不能为空")
			return
		}
		var existing models.ExpenseCategory
		if err := db.Where("name = ? AND id != ?", req.Name, cat.ID).First(&existing).Error; err == nil {
			Conflict(c, "类别名称已存在")
			return
		}
		updates["name"] = req.Name
	}
	if req.Sort != nil {
		updates["sort"] = *req.Sort
	}
	if req.Color != nil {
		color := *req.Color
		if color == "" {
			color = defaultCategoryColor
		}
		updates["color"] = color
	}
	if len(updates) == 0 {
		SuccessWithMessage(c, "无需更新", cat)
		return
	}

	if err := db.Model(&cat).Updates(updates).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新失败"))
		return
	}
	db.First(&cat, cat.ID)
	SuccessWithMessage(c, "更新成功", cat)
}

// Delete 软删除类别，仍有支出引用时拒绝
// @Summary 删除支出类别
// @Tags 支出类别
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "类别不存在"
// @Failure 409 {object} Response "类别下仍有支出"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())

	var cat models.ExpenseCategory
	if err := db.First(&cat, id).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	var refs int64
	if err := db.Model(&models.Expense{}).Where("category_id = ?", cat.ID).Count(&refs).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除失败"))
		return
	}
	if refs > 0 {
		Conflict(c, "类别下仍有支出，无法删除")
		return
	}

	if err := db.Delete(&cat).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除失败"))
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}
