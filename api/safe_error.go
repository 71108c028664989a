package api

import (
	"errors"
	"net/http"

	"expenseledger/config"
	"expenseledger/service"
)

// rejectionStatus 业务拒绝与 HTTP 状态码的对应关系，按顺序匹配
var rejectionStatus = []struct {
	err  error
	code int
}{
	{service.ErrExpenseNotFound, http.StatusNotFound},
	{service.ErrCategoryNotFound, http.StatusNotFound},
	{service.ErrVersionConflict, http.StatusConflict},
	{service.ErrReconciliationConflict, http.StatusConflict},
	{service.ErrHasTransactions, http.StatusConflict},
	{service.ErrDuplicateExpense, http.StatusConflict},
	{service.ErrAlreadySettled, http.StatusConflict},
	{service.ErrOverpayment, http.StatusUnprocessableEntity},
	{service.ErrInvalidExpense, http.StatusUnprocessableEntity},
	{service.ErrInvalidTransaction, http.StatusUnprocessableEntity},
}

// rejectionCode 业务拒绝返回对应状态码；存储层等内部错误返回 false
func rejectionCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	for _, r := range rejectionStatus {
		if errors.Is(err, r.err) {
			return r.code, true
		}
	}
	return 0, false
}

// SafeErrorMessage 业务拒绝原样返回给客户端；其余错误在生产环境下只返回 fallback，避免泄露内部细节
func SafeErrorMessage(err error, fallback string) string {
	if _, ok := rejectionCode(err); ok {
		return err.Error()
	}
	return config.SafeErrorMessage(err, fallback)
}
