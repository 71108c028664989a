package service

import (
	"errors"

	"expenseledger/store"
)

// 业务拒绝类错误：按交易逐笔返回，不会中断批次
var (
	ErrExpenseNotFound        = store.ErrNotFound
	ErrOverpayment            = errors.New("付款后已付金额将超过应付总额")
	ErrAlreadySettled         = errors.New("支出已结清")
	ErrReconciliationConflict = errors.New("并发冲突重试次数已用尽")
	ErrInvalidTransaction     = errors.New("交易不合法")
	ErrInvalidExpense         = errors.New("支出不合法")
	ErrCategoryNotFound       = errors.New("类别不存在")
	ErrHasTransactions        = store.ErrHasTransactions
	ErrVersionConflict        = store.ErrConflict
	ErrDuplicateExpense       = store.ErrDuplicateExpense
)

// IsRejection 判断是否为业务规则拒绝；其余错误视为存储层故障
func IsRejection(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrExpenseNotFound),
		errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrReconciliationConflict),
		errors.Is(err, ErrInvalidTransaction),
		errors.Is(err, ErrInvalidExpense),
		errors.Is(err, ErrCategoryNotFound),
		errors.Is(err, ErrHasTransactions),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrDuplicateExpense):
		return true
	}
	return false
}
