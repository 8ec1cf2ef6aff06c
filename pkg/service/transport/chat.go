package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	goslack "github.com/slack-go/slack"
)

const (
	// SlackActionIDPrefix prefixes the action_id of every notification
	// button. The suffix is the action token and the button value is the
	// notification ID.
	SlackActionIDPrefix = "ringi_"

	slackActionBlockID = "ringi_actions"

	// Slack rejects section text over 3000 characters
	maxSlackTextBytes = 3000
)

// Chat delivers notifications as Slack direct messages with one button per
// notification action
type Chat struct {
	slack   slack.Service
	baseURL string
}

var _ interfaces.Transport = &Chat{}

type ChatOption func(*Chat)

// WithChatBaseURL adds a link to the web inbox in messages
func WithChatBaseURL(baseURL string) ChatOption {
	return func(c *Chat) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func NewChat(svc slack.Service, opts ...ChatOption) *Chat {
	c := &Chat{slack: svc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chat) Channel() types.Channel {
	return types.ChannelChat
}

// Send posts the notification to address, a Slack user ID
func (c *Chat) Send(ctx context.Context, address string, n *model.Notification) error {
	blocks := NotificationBlocks(n, c.baseURL)
	if _, _, err := c.slack.PostDirectMessage(ctx, address, blocks, n.Title); err != nil {
		return goerr.Wrap(err, "failed to deliver chat notification", goerr.V("notification_id", n.ID))
	}
	return nil
}

// NotificationURL is the API location of a notification under baseURL, the
// public URL of the ringi server
func NotificationURL(baseURL string, id types.NotificationID) string {
	return strings.TrimRight(baseURL, "/") + "/api/notifications/" + string(id)
}

// SlackActionID returns the button action_id for token
func SlackActionID(token types.ActionToken) string {
	return SlackActionIDPrefix + string(token)
}

// ParseSlackActionID extracts the action token from a button action_id.
// ok is false for buttons that are not notification actions.
func ParseSlackActionID(actionID string) (types.ActionToken, bool) {
	if !strings.HasPrefix(actionID, SlackActionIDPrefix) {
		return "", false
	}
	token := types.ActionToken(strings.TrimPrefix(actionID, SlackActionIDPrefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// NotificationBlocks renders a notification as Block Kit. Actioned
// notifications show the outcome instead of buttons.
func NotificationBlocks(n *model.Notification, baseURL string) []goslack.Block {
	header := n.Title
	if n.Urgency == types.UrgencyUrgent {
		header = ":rotating_light: " + header
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, header, true, false),
		),
	}

	if n.Message != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateToMaxBytes(n.Message, maxSlackTextBytes), false, false),
			nil, nil,
		))
	}

	contextParts := []string{}
	if n.Metadata.ProjectTitle != "" {
		contextParts = append(contextParts, fmt.Sprintf("Project: %s", n.Metadata.ProjectTitle))
	}
	if n.Metadata.StageKind != "" {
		contextParts = append(contextParts, fmt.Sprintf("Stage: %s", n.Metadata.StageKind.DisplayName()))
	}
	if n.DueAt != nil {
		contextParts = append(contextParts, fmt.Sprintf("Due: <!date^%d^{date_short_pretty} {time}|%s>",
			n.DueAt.Unix(), n.DueAt.Format(time.RFC1123)))
	}
	if baseURL != "" {
		contextParts = append(contextParts, fmt.Sprintf(":link: <%s|Open>", NotificationURL(baseURL, n.ID)))
	}
	if len(contextParts) > 0 {
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, strings.Join(contextParts, "  |  "), false, false),
		))
	}

	if n.Actioned {
		text := fmt.Sprintf(":white_check_mark: %s", n.ActionTaken)
		if n.ActionComment != "" {
			text += ": " + n.ActionComment
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateToMaxBytes(text, maxSlackTextBytes), false, false),
			nil, nil,
		))
		return blocks
	}

	var buttons []goslack.BlockElement
	for _, a := range n.Actions {
		// View only links to the inbox
		if a.Token == types.ActionTokenView {
			continue
		}
		btn := goslack.NewButtonBlockElement(SlackActionID(a.Token), string(n.ID),
			goslack.NewTextBlockObject(goslack.PlainTextType, a.Label, true, false),
		)
		switch a.Kind {
		case types.ActionKindPrimary:
			btn.Style = goslack.StylePrimary
		case types.ActionKindDanger:
			btn.Style = goslack.StyleDanger
		}
		buttons = append(buttons, btn)
	}
	if len(buttons) > 0 {
		blocks = append(blocks, goslack.NewActionBlock(slackActionBlockID, buttons...))
	}

	return blocks
}

// truncateToMaxBytes cuts s to at most maxBytes without splitting a UTF-8
// sequence
func truncateToMaxBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
