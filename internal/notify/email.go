package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type emailNotifier struct {
	host     string
	port     int
	from     string
	to       []string
	username string
	password string
}

func NewEmail(host string, port int, from string, to []string, username, password string) (Notifier, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("config.smtp_host is required")
	}
	if port == 0 {
		port = 587
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("config.from is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("config.to must list at least one recipient")
	}

	return &emailNotifier{
		host:     host,
		port:     port,
		from:     from,
		to:       append([]string(nil), to...),
		username: username,
		password: password,
	}, nil
}

func (e *emailNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("backup %s: %s", event.Status, event.Database)
	var body strings.Builder
	fmt.Fprintf(&body, "Database: %s\r\n", event.Database)
	fmt.Fprintf(&body, "Status:   %s\r\n", event.Status)
	if event.Artifact != "" {
		fmt.Fprintf(&body, "Artifact: %s\r\n", event.Artifact)
	}
	fmt.Fprintf(&body, "Bytes:    %d\r\n", event.Bytes)
	fmt.Fprintf(&body, "Duration: %s\r\n", event.Duration)
	if event.Error != "" {
		fmt.Fprintf(&body, "Error:    %s\r\n", event.Error)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.from, strings.Join(e.to, ", "), subject, body.String())

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	if err := smtp.SendMail(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}
