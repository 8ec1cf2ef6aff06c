package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken      string
	signingSecret string
	cacheTTL      time.Duration
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for direct messages and user lookup)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("RINGI_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for interaction verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("RINGI_SLACK_SIGNING_SECRET"),
		},
		&cli.DurationFlag{
			Name:        "slack-user-cache-ttl",
			Usage:       "How long Slack user lookups are cached",
			Category:    "Slack",
			Value:       10 * time.Minute,
			Destination: &x.cacheTTL,
			Sources:     cli.EnvVars("RINGI_SLACK_USER_CACHE_TTL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.Duration("user-cache-ttl", x.cacheTTL),
	)
}

// Configure creates the Slack service. It returns nil when no bot token is
// set, which disables the chat channel.
func (x *Slack) Configure() (slack.Service, error) {
	if x.botToken == "" {
		logging.Default().Info("Slack bot token is not set, chat notifications are disabled")
		return nil, nil
	}

	svc, err := slack.New(x.botToken, slack.WithCacheTTL(x.cacheTTL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Slack service")
	}
	return svc, nil
}

// IsInteractionConfigured reports whether Slack button callbacks can be
// verified and answered
func (x *Slack) IsInteractionConfigured() bool {
	return x.botToken != "" && x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}
