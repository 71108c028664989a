package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditReport 一轮巡检结果
type AuditReport struct {
	Checked  int           `json:"checked"`
	Repaired int           `json:"repaired"`
	Failed   int           `json:"failed"`
	Drifts   []DriftReport `json:"drifts,omitempty"` // 已修复的偏差
}

// AuditNotifier 巡检发现偏差或失败时的通知
type AuditNotifier interface {
	NotifyAudit(ctx context.Context, report AuditReport) error
}

// RollupAuditor 定期比对汇总缓存与台账，发现偏差时重算
type RollupAuditor struct {
	rollup   *RollupEngine
	notifier AuditNotifier
	logger   *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewRollupAuditor 创建汇总巡检，notifier 可为 nil
func NewRollupAuditor(rollup *RollupEngine, notifier AuditNotifier) *RollupAuditor {
	return &RollupAuditor{
		rollup:   rollup,
		notifier: notifier,
		logger:   slog.Default().With("component", "rollup_auditor"),
	}
}

// Start 按间隔启动后台巡检，interval <= 0 时不启动
func (a *RollupAuditor) Start(interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if interval <= 0 || a.stop != nil {
		return
	}
	a.stop = make(chan struct{})
	a.stopped = make(chan struct{})
	go a.loop(interval, a.stop, a.stopped)
}

func (a *RollupAuditor) loop(interval time.Duration, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			a.tick(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// tick 执行一轮巡检，有修复或失败时记录并通知
func (a *RollupAuditor) tick(ctx context.Context) {
	report, err := a.RunOnce(ctx)
	if err != nil {
		a.logger.Error("汇总巡检失败", "error", err)
		return
	}
	if report.Repaired == 0 && report.Failed == 0 {
		return
	}
	a.logger.Info("汇总巡检完成",
		"checked", report.Checked,
		"repaired", report.Repaired,
		"failed", report.Failed)
	if a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyAudit(ctx, report); err != nil {
		a.logger.Warn("巡检通知发送失败", "error", err)
	}
}

// Stop 停止后台巡检并等待当前一轮结束
func (a *RollupAuditor) Stop() {
	a.mu.Lock()
	stop, stopped := a.stop, a.stopped
	a.stop, a.stopped = nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
}

// RunOnce 巡检台账与缓存中的全部汇总键，缺失的缓存行同样重算
func (a *RollupAuditor) RunOnce(ctx context.Context) (AuditReport, error) {
	var report AuditReport
	keys, err := a.rollup.SummaryKeys(ctx)
	if err != nil {
		return report, err
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		drift, err := a.rollup.Verify(ctx, k.CategoryID, k.Period)
		if err != nil {
			report.Failed++
			a.logger.WarnContext(ctx, "汇总比对失败",
				"category_id", k.CategoryID,
				"period", k.Period.String(),
				"error", err)
			continue
		}
		if !drift.Drifted {
			continue
		}
		a.logger.WarnContext(ctx, "汇总与台账不一致，重算修复",
			"category_id", k.CategoryID,
			"period", k.Period.String())
		if _, err := a.rollup.Rebuild(ctx, k.CategoryID, k.Period); err != nil {
			report.Failed++
			a.logger.ErrorContext(ctx, "汇总重算失败",
				"category_id", k.CategoryID,
				"period", k.Period.String(),
				"error", err)
			continue
		}
		report.Repaired++
		report.Drifts = append(report.Drifts, *drift)
	}
	return report, nil
}
