package transport

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers notifications over SMTP
type Email struct {
	addr     string
	from     string
	auth     smtp.Auth
	baseURL  string
	sendMail sendMailFunc
}

var _ interfaces.Transport = &Email{}

type EmailOption func(*Email)

// WithSMTPAuth enables PLAIN authentication
func WithSMTPAuth(username, password, host string) EmailOption {
	return func(e *Email) {
		e.auth = smtp.PlainAuth("", username, password, host)
	}
}

// WithEmailBaseURL adds links to the web inbox in message bodies
func WithEmailBaseURL(baseURL string) EmailOption {
	return func(e *Email) {
		e.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewEmail creates an SMTP transport. addr is host:port of the relay.
func NewEmail(addr, from string, opts ...EmailOption) (*Email, error) {
	if addr == "" {
		return nil, goerr.New("SMTP address is required")
	}
	if from == "" {
		return nil, goerr.New("sender address is required")
	}

	e := &Email{
		addr:     addr,
		from:     from,
		sendMail: smtp.SendMail,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Email) Channel() types.Channel {
	return types.ChannelEmail
}

func (e *Email) Send(ctx context.Context, address string, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "context is done before sending email")
	}

	msg := buildEmailMessage(e.from, address, n, e.baseURL)
	if err := e.sendMail(e.addr, e.auth, e.from, []string{address}, msg); err != nil {
		return goerr.Wrap(err, "failed to send email",
			goerr.V("notification_id", n.ID),
			goerr.V("smtp_addr", e.addr))
	}
	return nil
}

func buildEmailMessage(from, to string, n *model.Notification, baseURL string) []byte {
	var buf bytes.Buffer

	subject := n.Title
	if n.Urgency == types.UrgencyUrgent {
		subject = "[URGENT] " + subject
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", n.CreatedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@ringi>\r\n", n.ID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")

	buf.WriteString(n.Message)
	buf.WriteString("\r\n\r\n")

	if n.Metadata.ProjectTitle != "" {
		fmt.Fprintf(&buf, "Project: %s\r\n", n.Metadata.ProjectTitle)
	}
	if n.DueAt != nil {
		fmt.Fprintf(&buf, "Due: %s\r\n", n.DueAt.Format(time.RFC1123))
	}
	fmt.Fprintf(&buf, "Urgency: %s\r\n", n.Urgency)

	if len(n.Actions) > 0 {
		labels := make([]string, 0, len(n.Actions))
		for _, a := range n.Actions {
			label := a.Label
			if a.RequiresComment {
				label += " (comment required)"
			}
			labels = append(labels, label)
		}
		fmt.Fprintf(&buf, "Actions: %s\r\n", strings.Join(labels, ", "))
	}
	if baseURL != "" {
		fmt.Fprintf(&buf, "\r\nOpen: %s\r\n", NotificationURL(baseURL, n.ID))
	}

	return buf.Bytes()
}
