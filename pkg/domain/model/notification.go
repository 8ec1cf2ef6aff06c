package model

import (
	"time"

	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Notification is a unit of required attention directed at one actor
type Notification struct {
	ID          types.NotificationID   `firestore:"id" json:"id"`
	RecipientID types.ActorID          `firestore:"recipient_id" json:"recipient_id"`
	Type        types.NotificationType `firestore:"type" json:"type"`
	Title       string                 `firestore:"title" json:"title"`
	Message     string                 `firestore:"message" json:"message"`
	CreatedAt   time.Time              `firestore:"created_at" json:"created_at"`
	DueAt       *time.Time             `firestore:"due_at" json:"due_at,omitempty"`

	Read       bool       `firestore:"read" json:"read"`
	ReadAt     *time.Time `firestore:"read_at" json:"read_at,omitempty"`
	Actioned   bool       `firestore:"actioned" json:"actioned"`
	ActionedAt *time.Time `firestore:"actioned_at" json:"actioned_at,omitempty"`

	ActionTaken   types.ActionToken    `firestore:"action_taken" json:"action_taken,omitempty"`
	ActionComment string               `firestore:"action_comment" json:"action_comment,omitempty"`
	Actions       []NotificationAction `firestore:"actions" json:"actions"`

	Metadata NotificationMetadata `firestore:"metadata" json:"metadata"`

	Category   types.Category  `firestore:"category" json:"category,omitempty"`
	Urgency    types.Urgency   `firestore:"urgency" json:"urgency"`
	Channels   []types.Channel `firestore:"channels" json:"channels"`
	Deliveries []Delivery      `firestore:"deliveries" json:"deliveries"`
}

// NotificationAction is an executable action offered by a notification
type NotificationAction struct {
	Label           string            `firestore:"label" json:"label"`
	Kind            types.ActionKind  `firestore:"kind" json:"kind"`
	Token           types.ActionToken `firestore:"token" json:"token"`
	RequiresComment bool              `firestore:"requires_comment" json:"requires_comment"`
}

// NotificationMetadata links a notification back to where it came from
type NotificationMetadata struct {
	ProjectID    types.ProjectID `firestore:"project_id" json:"project_id"`
	ProjectTitle string          `firestore:"project_title" json:"project_title"`
	StageID      types.StageID   `firestore:"stage_id" json:"stage_id,omitempty"`
	StageKind    types.StageKind `firestore:"stage_kind" json:"stage_kind,omitempty"`
}

// Delivery is the outcome of one channel delivery attempt
type Delivery struct {
	Channel types.Channel        `firestore:"channel" json:"channel"`
	Status  types.DeliveryStatus `firestore:"status" json:"status"`
	Error   string               `firestore:"error" json:"error,omitempty"`
	At      time.Time            `firestore:"at" json:"at"`
}

// FindAction returns the action with token, or nil
func (n *Notification) FindAction(token types.ActionToken) *NotificationAction {
	for i := range n.Actions {
		if n.Actions[i].Token == token {
			return &n.Actions[i]
		}
	}
	return nil
}

// NotificationFilter narrows a recipient's notification listing
type NotificationFilter struct {
	UnreadOnly bool
	Type       types.NotificationType
	ProjectID  types.ProjectID
	Limit      int
}

// Match reports whether n passes the filter, ignoring Limit
func (f NotificationFilter) Match(n *Notification) bool {
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.ProjectID != "" && n.Metadata.ProjectID != f.ProjectID {
		return false
	}
	return true
}
