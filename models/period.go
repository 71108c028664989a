package models

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period 账期（自然月）
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf 返回时间所在账期
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod 解析 2024-01 格式的账期
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return Period{}, fmt.Errorf("账期格式错误，应为 2024-01: %w", err)
	}
	return PeriodOf(t), nil
}

// String 2024-01 格式
func (p Period) String() string {
	return p.Start().Format(periodLayout)
}

// Start 账期第一天 00:00:00 UTC
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Prev 上一个账期
func (p Period) Prev() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Before 是否早于另一个账期
func (p Period) Before(o Period) bool {
	return p.String() < o.String()
}

// IsZero 是否为空账期
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}
