package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"

	"quill/internal/config"
	"quill/internal/logger"

	"go.uber.org/zap"
)

//go:embed templates/email/*.html
var emailFS embed.FS

var emailTemplates = template.Must(template.ParseFS(emailFS, "templates/email/*.html"))

type MailService struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	ClientURL string
	Enabled   bool

	// send 可在测试中替换
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailService(cfg *config.Config) *MailService {
	enabled := cfg.MailEnabled()
	if !enabled {
		logger.Log.Warn("MailService disabled: missing SMTP environment variables")
	}
	return &MailService{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUser,
		Password:  cfg.SMTPPass,
		From:      cfg.SMTPFrom,
		ClientURL: cfg.ClientURL,
		Enabled:   enabled,
		send:      smtp.SendMail,
	}
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// encodeSubject 去掉换行并按 RFC 2047 编码，标题来自用户输入
func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", headerBreaks.Replace(subject))
}

func (s *MailService) buildMessage(to []string, subject, body string) []byte {
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: Quill <%s>\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
		"\r\n%s", strings.Join(to, ","), s.From, encodeSubject(subject), body))
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if s == nil || !s.Enabled {
		return
	}

	go func() {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

		if err := s.send(addr, auth, s.From, to, s.buildMessage(to, subject, body)); err != nil {
			logger.Log.Error("Failed to send email", zap.Strings("to", to), zap.Error(err))
		} else {
			logger.Log.Info("Email sent", zap.Strings("to", to), zap.String("subject", subject))
		}
	}()
}

func (s *MailService) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *MailService) SendVerificationEmail(email, name, token string) {
	body, err := s.render("verify.html", map[string]string{
		"Name": name,
		"Link": s.ClientURL + "/verify-email?token=" + token,
	})
	if err != nil {
		logger.Log.Error("Error rendering verification email", zap.Error(err))
		return
	}
	s.sendAsync([]string{email}, "Verify your Quill email address", body)
}

func (s *MailService) SendPasswordResetEmail(email, name, token string) {
	body, err := s.render("reset.html", map[string]string{
		"Name": name,
		"Link": s.ClientURL + "/reset-password?token=" + token,
	})
	if err != nil {
		logger.Log.Error("Error rendering reset email", zap.Error(err))
		return
	}
	s.sendAsync([]string{email}, "Reset your Quill password", body)
}

// SendCommentNotification 评论/回复邮件提醒
func (s *MailService) SendCommentNotification(email, actor, action, postTitle, excerpt, postSlug string) {
	body, err := s.render("notification.html", map[string]string{
		"Actor":     actor,
		"Action":    action,
		"PostTitle": postTitle,
		"Excerpt":   excerpt,
		"Link":      s.ClientURL + "/posts/" + postSlug,
	})
	if err != nil {
		logger.Log.Error("Error rendering notification email", zap.Error(err))
		return
	}
	s.sendAsync([]string{email}, actor+" "+action+" "+postTitle, body)
}
