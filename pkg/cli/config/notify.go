package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	"github.com/secmon-lab/ringi/pkg/service/transport"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Notify holds CLI flags for the delivery channels other than in-app
type Notify struct {
	baseURL      string
	smtpAddr     string
	smtpFrom     string
	smtpUser     string
	smtpPassword string
	smtpHost     string
	smsEndpoint  string
	smsToken     string
}

func (x *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Public URL of this server, used for notification links in delivered messages",
			Category:    "Notification",
			Destination: &x.baseURL,
			Sources:     cli.EnvVars("RINGI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:        "smtp-addr",
			Usage:       "SMTP relay address (host:port)",
			Category:    "Notification",
			Destination: &x.smtpAddr,
			Sources:     cli.EnvVars("RINGI_SMTP_ADDR"),
		},
		&cli.StringFlag{
			Name:        "smtp-from",
			Usage:       "Sender address of notification emails",
			Category:    "Notification",
			Destination: &x.smtpFrom,
			Sources:     cli.EnvVars("RINGI_SMTP_FROM"),
		},
		&cli.StringFlag{
			Name:        "smtp-user",
			Usage:       "SMTP username (PLAIN auth)",
			Category:    "Notification",
			Destination: &x.smtpUser,
			Sources:     cli.EnvVars("RINGI_SMTP_USER"),
		},
		&cli.StringFlag{
			Name:        "smtp-password",
			Usage:       "SMTP password (PLAIN auth)",
			Category:    "Notification",
			Destination: &x.smtpPassword,
			Sources:     cli.EnvVars("RINGI_SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:        "smtp-host",
			Usage:       "SMTP host name for auth (defaults to the host of --smtp-addr)",
			Category:    "Notification",
			Destination: &x.smtpHost,
			Sources:     cli.EnvVars("RINGI_SMTP_HOST"),
		},
		&cli.StringFlag{
			Name:        "sms-endpoint",
			Usage:       "SMS gateway endpoint URL",
			Category:    "Notification",
			Destination: &x.smsEndpoint,
			Sources:     cli.EnvVars("RINGI_SMS_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:        "sms-token",
			Usage:       "Bearer token of the SMS gateway",
			Category:    "Notification",
			Destination: &x.smsToken,
			Sources:     cli.EnvVars("RINGI_SMS_TOKEN"),
		},
	}
}

func (x Notify) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base-url", x.baseURL),
		slog.String("smtp-addr", x.smtpAddr),
		slog.String("smtp-from", x.smtpFrom),
		slog.Int("smtp-password.len", len(x.smtpPassword)),
		slog.String("sms-endpoint", x.smsEndpoint),
		slog.Int("sms-token.len", len(x.smsToken)),
	)
}

// BaseURL returns the inbox base URL
func (x *Notify) BaseURL() string {
	return x.baseURL
}

// Configure builds the transports. hub is always included. chat is added
// when a Slack service is given.
func (x *Notify) Configure(hub *transport.Hub, slackSvc slack.Service) ([]interfaces.Transport, error) {
	transports := []interfaces.Transport{hub}

	if slackSvc != nil {
		transports = append(transports, transport.NewChat(slackSvc, transport.WithChatBaseURL(x.baseURL)))
	}

	if x.smtpAddr != "" || x.smtpFrom != "" {
		if x.smtpAddr == "" || x.smtpFrom == "" {
			return nil, goerr.Wrap(ErrIncompleteSMTP, "both --smtp-addr and --smtp-from are required")
		}
		opts := []transport.EmailOption{transport.WithEmailBaseURL(x.baseURL)}
		if x.smtpUser != "" {
			opts = append(opts, transport.WithSMTPAuth(x.smtpUser, x.smtpPassword, x.smtpHost))
		}
		email, err := transport.NewEmail(x.smtpAddr, x.smtpFrom, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure email transport")
		}
		transports = append(transports, email)
	}

	if x.smsEndpoint != "" {
		sms, err := transport.NewSMS(x.smsEndpoint, x.smsToken)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure SMS transport")
		}
		transports = append(transports, sms)
	}

	channels := make([]string, 0, len(transports))
	for _, t := range transports {
		channels = append(channels, string(t.Channel()))
	}
	logging.Default().Info("Notification channels configured", "channels", channels)

	return transports, nil
}
