package utils

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// MailConfig holds the SMTP settings for new-message emails.
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	SiteURL   string
}

type EmailData struct {
	Subject   string
	To        []string
	Template  string
	Data      interface{}
	FromName  string
	FromEmail string
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Embedded email templates
var emailTemplates = map[string]string{
	LabelMessageReceived: `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body>
    <p>Hello {{.Recipient}},</p>
    <p>you received a private message from {{.Sender}}.</p>
    <p><strong>{{.Subject}}</strong></p>
    <p><a href="{{.URL}}">Read the message</a></p>
    <p>© {{.Year}}</p>
</body>
</html>`,

	LabelReplyReceived: `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body>
    <p>Hello {{.Recipient}},</p>
    <p>{{.Sender}} replied to your message.</p>
    <p><strong>{{.Subject}}</strong></p>
    <p><a href="{{.URL}}">Read the reply</a></p>
    <p>© {{.Year}}</p>
</body>
</html>`,
}

// MailNotifier emails recipients when a message arrives.
type MailNotifier struct {
	cfg    MailConfig
	sender mailSender
	logger *logrus.Entry
}

func NewMailNotifier(cfg MailConfig, logger *logrus.Entry) *MailNotifier {
	return &MailNotifier{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

func (mn *MailNotifier) Name() string {
	return "email"
}

// Notify sends the email synchronously. Recipients without a well-formed
// address are skipped.
func (mn *MailNotifier) Notify(ctx context.Context, n Notification) error {
	recipient := n.Message.Recipient
	if recipient == nil || recipient.Email == "" {
		return nil
	}
	if err := checkmail.ValidateFormat(recipient.Email); err != nil {
		mn.logger.WithFields(logrus.Fields{
			"user_id": recipient.ID,
			"email":   recipient.Email,
		}).Warn("Skipping notification to malformed address")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return mn.SendEmail(EmailData{
		Subject:  fmt.Sprintf("New Message: %s", n.Message.Subject),
		To:       []string{recipient.Email},
		Template: n.Label,
		Data: struct {
			Subject   string
			Sender    string
			Recipient string
			URL       string
			Year      int
		}{
			Subject:   n.Message.Subject,
			Sender:    n.Message.Sender.Username,
			Recipient: recipient.Username,
			URL:       mn.cfg.SiteURL + n.Message.AbsoluteURL(),
			Year:      time.Now().Year(),
		},
	})
}

func (mn *MailNotifier) SendEmail(data EmailData) error {
	if data.FromEmail == "" {
		data.FromEmail = mn.cfg.FromEmail
	}
	if data.FromName == "" {
		data.FromName = mn.cfg.FromName
	}

	tmplContent, ok := emailTemplates[data.Template]
	if !ok {
		return fmt.Errorf("template '%s' not found", data.Template)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("error executing template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(data.FromEmail, data.FromName))
	m.SetHeader("To", data.To...)
	m.SetHeader("Subject", data.Subject)
	m.SetBody("text/html", body.String())

	if err := mn.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
