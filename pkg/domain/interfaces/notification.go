package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// NotificationRepository stores actionable notifications. Notifications are
// never deleted.
type NotificationRepository interface {
	// Create saves a new notification
	Create(ctx context.Context, n *model.Notification) error

	// Get retrieves a notification by ID
	Get(ctx context.Context, id types.NotificationID) (*model.Notification, error)

	// Update overwrites read/actioned state of an existing notification
	Update(ctx context.Context, n *model.Notification) error

	// ListByRecipient returns the recipient's notifications, newest first
	ListByRecipient(ctx context.Context, recipientID types.ActorID, filter model.NotificationFilter) ([]*model.Notification, error)

	// ListByProject returns every notification of a project, newest first
	ListByProject(ctx context.Context, projectID types.ProjectID) ([]*model.Notification, error)

	// CountUnread returns the number of unread notifications of the recipient
	CountUnread(ctx context.Context, recipientID types.ActorID) (int, error)

	// MarkAllRead marks every unread notification of the recipient as read
	// and returns how many were changed
	MarkAllRead(ctx context.Context, recipientID types.ActorID, at time.Time) (int, error)

	// AppendDelivery appends a delivery outcome without touching other fields
	AppendDelivery(ctx context.Context, id types.NotificationID, delivery model.Delivery) error
}
