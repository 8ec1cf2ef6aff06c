package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Actor is a person known to the directory, with organizational placement
// and contact addresses
type Actor struct {
	ID         types.ActorID `toml:"id"`
	Name       string        `toml:"name"`
	Level      int           `toml:"level"`
	Facility   string        `toml:"facility"`
	Department string        `toml:"department"`
	Team       string        `toml:"team"`
	Roles      []string      `toml:"roles"`
	Email      string        `toml:"email" masq:"secret"`
	SlackID    string        `toml:"slack_id"`
	Phone      string        `toml:"phone" masq:"secret"`
}

// Validate checks the actor record
func (a *Actor) Validate() error {
	if a.ID == "" {
		return goerr.New("actor ID is required")
	}
	if a.Level < 0 {
		return goerr.New("actor level must not be negative", goerr.V("id", a.ID), goerr.V("level", a.Level))
	}
	return nil
}

// HasRole reports whether the actor holds role
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Address returns the contact address of the actor for channel. An empty
// string means the actor cannot be reached on that channel. In-app delivery
// is addressed by actor ID.
func (a *Actor) Address(channel types.Channel) string {
	switch channel {
	case types.ChannelInApp:
		return string(a.ID)
	case types.ChannelEmail:
		return a.Email
	case types.ChannelChat:
		return a.SlackID
	case types.ChannelSMS:
		return a.Phone
	default:
		return ""
	}
}

// Group is a named set of actors addressable by a role token
type Group struct {
	Token   string          `toml:"token"`
	Name    string          `toml:"name"`
	Members []types.ActorID `toml:"members"`
}

// Validate checks the group record
func (g *Group) Validate() error {
	if g.Token == "" {
		return goerr.New("group token is required")
	}
	if len(g.Members) == 0 {
		return goerr.New("group must have at least one member", goerr.V("token", g.Token))
	}
	return nil
}
