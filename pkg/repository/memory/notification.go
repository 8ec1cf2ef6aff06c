package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

type notificationRepository struct {
	mu            sync.RWMutex
	notifications map[types.NotificationID]*model.Notification
	byRecipient   map[types.ActorID][]types.NotificationID
}

func newNotificationRepository() *notificationRepository {
	return &notificationRepository{
		notifications: make(map[types.NotificationID]*model.Notification),
		byRecipient:   make(map[types.ActorID][]types.NotificationID),
	}
}

// copyNotification creates a deep copy of a notification
func copyNotification(n *model.Notification) *model.Notification {
	copied := *n

	copied.Actions = make([]model.NotificationAction, len(n.Actions))
	copy(copied.Actions, n.Actions)

	copied.Channels = make([]types.Channel, len(n.Channels))
	copy(copied.Channels, n.Channels)

	copied.Deliveries = make([]model.Delivery, len(n.Deliveries))
	copy(copied.Deliveries, n.Deliveries)

	return &copied
}

func sortNewestFirst(list []*model.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		return goerr.New("notification ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifications[n.ID]; exists {
		return goerr.New("notification already exists", goerr.V("id", n.ID))
	}

	r.notifications[n.ID] = copyNotification(n)
	r.byRecipient[n.RecipientID] = append(r.byRecipient[n.RecipientID], n.ID)
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id types.NotificationID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifications[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", id))
	}
	return copyNotification(n), nil
}

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.notifications[n.ID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", n.ID))
	}

	updated := copyNotification(n)
	// Deliveries are owned by AppendDelivery and may have advanced since the
	// caller read the notification
	updated.Deliveries = existing.Deliveries
	r.notifications[n.ID] = updated
	return nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID types.ActorID, filter model.NotificationFilter) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Notification, 0)
	for _, id := range r.byRecipient[recipientID] {
		n := r.notifications[id]
		if filter.Match(n) {
			result = append(result, copyNotification(n))
		}
	}

	sortNewestFirst(result)

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *notificationRepository) ListByProject(ctx context.Context, projectID types.ProjectID) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Notification, 0)
	for _, n := range r.notifications {
		if n.Metadata.ProjectID == projectID {
			result = append(result, copyNotification(n))
		}
	}

	sortNewestFirst(result)
	return result, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID types.ActorID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, id := range r.byRecipient[recipientID] {
		if !r.notifications[id].Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID types.ActorID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, id := range r.byRecipient[recipientID] {
		n := r.notifications[id]
		if n.Read {
			continue
		}
		readAt := at
		n.Read = true
		n.ReadAt = &readAt
		count++
	}
	return count, nil
}

func (r *notificationRepository) AppendDelivery(ctx context.Context, id types.NotificationID, delivery model.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, exists := r.notifications[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", id))
	}

	n.Deliveries = append(n.Deliveries, delivery)
	return nil
}
