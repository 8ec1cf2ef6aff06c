package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// Service provides the Slack API operations used for chat notifications and
// directory enrichment
type Service interface {
	// GetUserInfo retrieves user information for the given user ID
	GetUserInfo(ctx context.Context, userID string) (*User, error)

	// LookupUserByEmail returns the workspace user registered with email.
	// Results are cached for the configured TTL.
	LookupUserByEmail(ctx context.Context, email string) (*User, error)

	// PostDirectMessage opens a DM with the user and posts a Block Kit message.
	// It returns the DM channel ID and the message timestamp.
	PostDirectMessage(ctx context.Context, userID string, blocks []slack.Block, text string) (channelID string, timestamp string, err error)

	// UpdateMessage updates an existing Block Kit message identified by channel and timestamp.
	UpdateMessage(ctx context.Context, channelID string, timestamp string, blocks []slack.Block, text string) error
}

// User represents a Slack user
type User struct {
	ID       string
	Name     string
	RealName string
	Email    string
	Phone    string
	ImageURL string
}
