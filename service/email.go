package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"expenseledger/config"

	"gopkg.in/gomail.v2"
)

// EmailService 巡检告警邮件
type EmailService struct {
	cfg  *config.EmailConfig
	send func(m *gomail.Message) error
}

var _ AuditNotifier = (*EmailService)(nil)

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

// NotifyAudit 发送巡检结果邮件
func (s *EmailService) NotifyAudit(ctx context.Context, report AuditReport) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 email.enabled=true")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("【支出对账】汇总巡检：修复 %d 项，失败 %d 项", report.Repaired, report.Failed)
	return s.sendEmail(s.cfg.To, subject, s.generateAuditEmailBody(report))
}

// generateAuditEmailBody 生成巡检邮件内容
func (s *EmailService) generateAuditEmailBody(report AuditReport) string {
	var rows strings.Builder
	for _, d := range report.Drifts {
		cached, expected := "-", "-"
		if d.Cached != nil {
			cached = d.Cached.Amount.StringFixed(2)
		}
		if d.Expected != nil {
			expected = d.Expected.Amount.StringFixed(2)
		}
		fmt.Fprintf(&rows, "<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			d.CategoryID, html.EscapeString(d.Period), cached, expected)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>汇总巡检结果</h2>
    <p>本轮共检查 %d 项汇总，修复 %d 项，失败 %d 项。</p>
    <table border="1" cellpadding="6" style="border-collapse: collapse;">
        <tr><th>类别ID</th><th>账期</th><th>缓存已付</th><th>台账已付</th></tr>
%s    </table>
    <p style="color: #666;">失败项将在下一轮巡检重试，详情见服务日志。</p>
    <p style="color: #666;">—— 支出对账服务</p>
</body>
</html>
`, report.Checked, report.Repaired, report.Failed, rows.String())
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

func (s *EmailService) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	return d.DialAndSend(m)
}
