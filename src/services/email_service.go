package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/limoney/backend/src/config"
	"github.com/username/limoney/backend/src/logger"
)

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:              mg,
			senderEmail:     config.Cfg.SenderEmail,
			senderName:      config.Cfg.SenderName,
			frontendBaseURL: config.Cfg.FrontendBaseURL,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:      config.Cfg.SMTPServer,
			SMTPPort:        config.Cfg.SMTPPort,
			SMTPUser:        config.Cfg.SMTPUser,
			SMTPPassword:    config.Cfg.SMTPPassword,
			SenderEmail:     config.Cfg.SenderEmail,
			FrontendBaseURL: config.Cfg.FrontendBaseURL,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

// FormatAmount renders integer cents as a dollar string for email bodies.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

type SMTPEmailService struct {
	SMTPServer      string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SenderEmail     string
	FrontendBaseURL string
}

func (s *SMTPEmailService) send(toEmail, subject, body string) error {
	header := make(map[string]string)
	header["From"] = s.SenderEmail
	header["To"] = toEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	err := smtp.SendMail(addr, auth, s.SenderEmail, []string{toEmail}, []byte(message))
	if err != nil {
		logger.L.Error("Failed to send email via SMTP", "error", err, "to", toEmail, "subject", subject)
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}
	logger.L.Info("Email sent successfully via SMTP", "to", toEmail, "subject", subject)
	return nil
}

func (s *SMTPEmailService) SendRequestReceivedEmail(toEmail, toName, senderName string, amount int64, requestID int64) error {
	subject := fmt.Sprintf("%s requested %s from you on Limoney", senderName, FormatAmount(amount))
	link := fmt.Sprintf("%s/reimbursements/%d", s.FrontendBaseURL, requestID)
	body := fmt.Sprintf(`Hi %s,

%s has requested %s from you.

Review and approve or reject the request here:
%s

Thanks,
The Limoney Team`, toName, senderName, FormatAmount(amount), link)
	return s.send(toEmail, subject, body)
}

func (s *SMTPEmailService) SendRequestDecisionEmail(toEmail, toName, counterpartName, status string, amount int64) error {
	subject := fmt.Sprintf("Your %s request was %s", FormatAmount(amount), status)
	body := fmt.Sprintf(`Hi %s,

%s has %s your request for %s.

Thanks,
The Limoney Team`, toName, counterpartName, status, FormatAmount(amount))
	return s.send(toEmail, subject, body)
}

type MailgunEmailService struct {
	mg              mailgun.Mailgun
	senderEmail     string
	senderName      string
	frontendBaseURL string
}

func (s *MailgunEmailService) send(toEmail, subject, plainTextBody, htmlBody, tag string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, subject, plainTextBody, toEmail)
	message.SetHtml(htmlBody)
	if tag != "" {
		message.AddTag(tag)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

func (s *MailgunEmailService) SendRequestReceivedEmail(toEmail, toName, senderName string, amount int64, requestID int64) error {
	subject := fmt.Sprintf("%s requested %s from you on Limoney", senderName, FormatAmount(amount))
	link := fmt.Sprintf("%s/reimbursements/%d", s.frontendBaseURL, requestID)

	plainTextBody := fmt.Sprintf(`Hi %s,

%s has requested %s from you.

Review and approve or reject the request here:
%s

Thanks,
The Limoney Team`, toName, senderName, FormatAmount(amount), link)

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p><strong>%s</strong> has requested <strong>%s</strong> from you.</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8; text-decoration: none; font-weight: bold; padding: 10px 15px; border: 1px solid #1a73e8; border-radius: 4px; background-color: #e8f0fe;">Review Request</a></p>
			<p>If the button above doesn't work, copy and paste this link into your browser:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8;">%s</a></p>
			<p>Thanks,<br>The Limoney Team</p>
		</body>
	</html>`, toName, senderName, FormatAmount(amount), link, link, link)

	return s.send(toEmail, subject, plainTextBody, htmlBody, "reimbursement-request")
}

func (s *MailgunEmailService) SendRequestDecisionEmail(toEmail, toName, counterpartName, status string, amount int64) error {
	subject := fmt.Sprintf("Your %s request was %s", FormatAmount(amount), status)

	plainTextBody := fmt.Sprintf(`Hi %s,

%s has %s your request for %s.

Thanks,
The Limoney Team`, toName, counterpartName, status, FormatAmount(amount))

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p><strong>%s</strong> has %s your request for <strong>%s</strong>.</p>
			<p>Thanks,<br>The Limoney Team</p>
		</body>
	</html>`, toName, counterpartName, status, FormatAmount(amount))

	return s.send(toEmail, subject, plainTextBody, htmlBody, "reimbursement-decision")
}

type MockEmailService struct{}

func (m *MockEmailService) SendRequestReceivedEmail(toEmail, toName, senderName string, amount int64, requestID int64) error {
	logger.L.Info("MockEmailService: Would send request notification.",
		"to", toEmail, "toName", toName, "from", senderName,
		"amount", FormatAmount(amount), "requestID", requestID)
	return nil
}

func (m *MockEmailService) SendRequestDecisionEmail(toEmail, toName, counterpartName, status string, amount int64) error {
	logger.L.Info("MockEmailService: Would send decision notification.",
		"to", toEmail, "toName", toName, "counterpart", counterpartName,
		"status", status, "amount", FormatAmount(amount))
	return nil
}
