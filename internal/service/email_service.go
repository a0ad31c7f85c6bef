package service

import (
	"fmt"
	"strings"

	"github.com/bitfantasy/approveflow/internal/config"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier 工作流通知接口。引擎在事务提交后调用，
// 实现方自行处理失败（记日志即可），任何错误都不回传给工作流。
type Notifier interface {
	// RequestCreated 通知审批人：有新的审批请求
	RequestCreated(toEmail, fromUser string, fileNames []string)
	// RequestDeleted 通知审批人：审批请求被作者删除
	RequestDeleted(toEmail, fromUser string, fileNames []string)
	// RequestReviewed 通知作者：某个审批人处理了任务
	RequestReviewed(toEmail, reviewer string, fileNames []string)
}

// EmailService 邮件通知服务，Notifier 的 SMTP 实现
type EmailService struct {
	cfg       config.SMTPConfig
	uiBaseURL string
	logger    *zap.Logger
}

// NewEmailService 创建邮件通知服务
func NewEmailService(cfg config.SMTPConfig, uiBaseURL string, logger *zap.Logger) *EmailService {
	return &EmailService{cfg: cfg, uiBaseURL: uiBaseURL, logger: logger}
}

// RequestCreated 通知审批人有新的审批请求
func (s *EmailService) RequestCreated(toEmail, fromUser string, fileNames []string) {
	subject := "You have a new approval request"
	body := fmt.Sprintf(
		"We would like to inform you that %s submitted an approval request containing %s. Please visit %s/inbox to check it.",
		fromUser, strings.Join(fileNames, ", "), s.uiBaseURL,
	)
	s.send(toEmail, subject, body)
}

// RequestDeleted 通知审批人审批请求已删除
func (s *EmailService) RequestDeleted(toEmail, fromUser string, fileNames []string) {
	subject := "An approval request was deleted"
	body := fmt.Sprintf(
		"We would like to inform you that %s deleted the approval request containing %s.",
		fromUser, strings.Join(fileNames, ", "),
	)
	s.send(toEmail, subject, body)
}

// RequestReviewed 通知作者审批请求有了新的处理结果
func (s *EmailService) RequestReviewed(toEmail, reviewer string, fileNames []string) {
	subject := "Your approval request was reviewed"
	body := fmt.Sprintf(
		"We would like to inform you that %s reviewed the approval request containing %s. Please visit %s/sent to check it.",
		reviewer, strings.Join(fileNames, ", "), s.uiBaseURL,
	)
	s.send(toEmail, subject, body)
}

func (s *EmailService) send(toEmail, subject, body string) {
	if !s.cfg.Enabled {
		return
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 {
		s.logger.Info("SMTP not configured, skipping email",
			zap.String("to", toEmail),
			zap.String("subject", subject),
		)
		return
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", strings.ToLower(toEmail))
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send email",
			zap.String("to", toEmail),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
