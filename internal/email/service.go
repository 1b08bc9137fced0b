// Package email sends feedback notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/smtp"
	"strings"
	texttemplate "text/template"

	"github.com/google/uuid"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text and an HTML part.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "docfeedback-" + uuid.NewString()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// FeedbackNotificationData is what the document author sees about one
// completed feedback.
type FeedbackNotificationData struct {
	AppName        string
	AuthorName     string
	DocumentTitle  string
	RespondentName string
	Accepted       bool
	Text           string
}

// SendFeedbackNotification tells the document author about new feedback.
func (s *Service) SendFeedbackNotification(to string, data FeedbackNotificationData) error {
	if data.AppName == "" {
		data.AppName = "Document Feedback"
	}

	subject := fmt.Sprintf("[%s] New feedback on %q", data.AppName, data.DocumentTitle)
	text, err := render(feedbackText, data)
	if err != nil {
		return fmt.Errorf("render feedback text template: %w", err)
	}
	html, err := render(feedbackHTML, data)
	if err != nil {
		return fmt.Errorf("render feedback template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

var (
	feedbackHTML = template.Must(template.New("feedback.html").Parse(feedbackEmailTemplate))
	feedbackText = texttemplate.Must(texttemplate.New("feedback.txt").Parse(feedbackTextTemplate))
)

type executor interface {
	Execute(w io.Writer, data any) error
}

func render(t executor, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const feedbackTextTemplate = `Hi {{.AuthorName}},

{{.RespondentName}} left feedback on "{{.DocumentTitle}}".

Did the document answer their question? {{if .Accepted}}Yes{{else}}No{{end}}
{{if .Text}}
{{.Text}}
{{end}}`

const feedbackEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New feedback on {{.DocumentTitle}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .verdict { display: inline-block; padding: 4px 12px; border-radius: 4px; font-weight: bold; }
        .accepted { background: #d4edda; color: #155724; }
        .declined { background: #f8d7da; color: #721c24; }
        .quote { border-left: 3px solid #ccc; padding-left: 12px; color: #555; white-space: pre-wrap; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.AuthorName}},</p>

    <p>{{.RespondentName}} left feedback on <strong>{{.DocumentTitle}}</strong>.</p>

    <p>Did the document answer their question?
        {{if .Accepted}}<span class="verdict accepted">Yes</span>{{else}}<span class="verdict declined">No</span>{{end}}
    </p>
    {{if .Text}}
    <p class="quote">{{.Text}}</p>
    {{end}}
    <div class="footer">
        <p>You receive this message because you are the author of this document.</p>
    </div>
</body>
</html>`
