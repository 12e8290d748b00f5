package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/lborres/bantay/core"
)

//go:embed templates/*.html
var templateFS embed.FS

type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionStartTLS Encryption = "starttls"
	EncryptionTLS      Encryption = "tls"
)

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Encryption Encryption
	Timeout    time.Duration
}

var subjects = map[core.NotificationKind]string{
	core.NotifyVerifyEmail:     "Confirm your email address",
	core.NotifyPasswordReset:   "Reset your password",
	core.NotifyPasswordChanged: "Your password was changed",
}

// SMTPSender renders the embedded HTML template for a notification kind and
// mails it.
type SMTPSender struct {
	config    SMTPConfig
	templates *template.Template
}

func NewSMTPSender(config SMTPConfig) (*SMTPSender, error) {
	if config.Host == "" || config.From == "" {
		return nil, fmt.Errorf("smtp: host and from address are required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Encryption == "" {
		config.Encryption = EncryptionStartTLS
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	tpl, err := template.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("smtp: parse templates: %w", err)
	}
	return &SMTPSender{config: config, templates: tpl}, nil
}

type templateData struct {
	Name    string
	Email   string
	Link    string
	Minutes string
}

func (s *SMTPSender) render(n core.Notification) (string, []byte, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return "", nil, fmt.Errorf("smtp: no template for %q", n.Kind)
	}

	var body bytes.Buffer
	data := templateData{Name: n.Name, Email: n.To, Link: n.Payload["link"], Minutes: n.Payload["minutes"]}
	if err := s.templates.ExecuteTemplate(&body, string(n.Kind)+".html", data); err != nil {
		return "", nil, fmt.Errorf("smtp: render %s: %w", n.Kind, err)
	}
	return subject, body.Bytes(), nil
}

// message builds a single-part quoted-printable HTML message.
func (s *SMTPSender) message(to, subject string, html []byte) ([]byte, error) {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&msg)
	if _, err := qp.Write(html); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func (s *SMTPSender) Send(ctx context.Context, n core.Notification) error {
	subject, html, err := s.render(n)
	if err != nil {
		return err
	}
	msg, err := s.message(n.To, subject, html)
	if err != nil {
		return fmt.Errorf("smtp: build message: %w", err)
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}
	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(n.To); err != nil {
		return fmt.Errorf("smtp: RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: close data: %w", err)
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	dialer := &net.Dialer{Timeout: s.config.Timeout}
	tlsConfig := &tls.Config{ServerName: s.config.Host}

	var (
		conn net.Conn
		err  error
	)
	if s.config.Encryption == EncryptionTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.config.Timeout))
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp: handshake: %w", err)
	}
	if s.config.Encryption == EncryptionStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, fmt.Errorf("smtp: server does not offer STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp: starttls: %w", err)
		}
	}
	return client, nil
}

// ParseEncryption accepts none, starttls, tls and ssl in any case.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "starttls":
		return EncryptionStartTLS, nil
	case "tls", "ssl", "ssl/tls":
		return EncryptionTLS, nil
	case "none":
		return EncryptionNone, nil
	default:
		return "", fmt.Errorf("unknown smtp encryption %q", s)
	}
}
