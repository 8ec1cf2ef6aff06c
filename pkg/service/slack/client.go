package slack

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for the email lookup cache
	DefaultCacheTTL = 10 * time.Minute
)

// cacheEntry holds a cached user with expiration. A nil user records a
// lookup miss.
type cacheEntry struct {
	user      *User
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	apiURL   string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for the email lookup cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at a different Slack API endpoint
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

func toUser(u *slack.User) *User {
	return &User{
		ID:       u.ID,
		Name:     u.Name,
		RealName: u.RealName,
		Email:    u.Profile.Email,
		Phone:    u.Profile.Phone,
		ImageURL: u.Profile.Image48,
	}
}

// GetUserInfo retrieves user information for the given user ID
func (c *client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V("user_id", userID))
	}

	return toUser(user), nil
}

// LookupUserByEmail resolves a workspace user by email with caching. It
// returns nil without error when no user has the address.
func (c *client) LookupUserByEmail(ctx context.Context, email string) (*User, error) {
	key := strings.ToLower(email)
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		return entry.user, nil
	}

	var user *User
	u, err := c.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		if !strings.Contains(err.Error(), "users_not_found") {
			return nil, goerr.Wrap(err, "failed to look up user by email")
		}
	} else {
		user = toUser(u)
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{user: user, expiresAt: now.Add(c.cacheTTL)}
	c.mu.Unlock()

	return user, nil
}

// PostDirectMessage opens a DM channel with the user and posts blocks into it
func (c *client) PostDirectMessage(ctx context.Context, userID string, blocks []slack.Block, text string) (string, string, error) {
	channel, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to open DM conversation", goerr.V("user_id", userID))
	}

	channelID, ts, err := c.api.PostMessageContext(ctx, channel.ID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to post DM", goerr.V("user_id", userID), goerr.V("channel_id", channel.ID))
	}

	return channelID, ts, nil
}

// UpdateMessage replaces the blocks of a posted message
func (c *client) UpdateMessage(ctx context.Context, channelID string, timestamp string, blocks []slack.Block, text string) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, timestamp,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update Slack message", goerr.V("channel_id", channelID), goerr.V("ts", timestamp))
	}
	return nil
}
