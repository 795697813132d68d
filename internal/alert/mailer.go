// Package alert は運用者向けの障害通知メールを提供する。
// 投稿ドロップなど人手の確認が必要な事象のみに使用し、
// 通常のリトライ可能な失敗では送信しない。
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// Mailer はSMTP経由の通知送信実装。
type Mailer struct {
	host   string
	port   string
	user   string
	pass   string
	from   string
	to     string
	logger *slog.Logger

	// テスト用に差し替え可能
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer はMailerの新しいインスタンスを生成する。
// userが空の場合は認証なしで送信する。
func NewMailer(logger *slog.Logger, host, port, user, pass, from, to string) *Mailer {
	return &Mailer{
		host:   host,
		port:   port,
		user:   user,
		pass:   pass,
		from:   from,
		to:     to,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Notify は通知メールを1通送信する。
func (m *Mailer) Notify(_ context.Context, subject, body string) error {
	msg := m.buildMessage(subject, body)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	if err := m.send(addr, auth, m.from, []string{m.to}, msg); err != nil {
		return fmt.Errorf("通知メールの送信に失敗しました: %w", err)
	}

	m.logger.Info("通知メールを送信しました",
		slog.String("to", m.to),
		slog.String("subject", subject),
	)
	return nil
}

// buildMessage はヘッダ付きのメール本文を組み立てる。
func (m *Mailer) buildMessage(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", m.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
