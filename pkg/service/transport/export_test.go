package transport

import "net/smtp"

var (
	TruncateToMaxBytes = truncateToMaxBytes
	SMSBody            = smsBody
)

// SetSendMail replaces the SMTP client call
func (e *Email) SetSendMail(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) {
	e.sendMail = fn
}
