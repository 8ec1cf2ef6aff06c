package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/repository/firestore"
	"github.com/secmon-lab/ringi/pkg/repository/memory"
)

func newTestNotification(recipient types.ActorID, projectID types.ProjectID, typ types.NotificationType, createdAt time.Time) *model.Notification {
	return &model.Notification{
		ID:          types.NewNotificationID(),
		RecipientID: recipient,
		Type:        typ,
		Title:       "Approval requested",
		Message:     "Please review",
		CreatedAt:   createdAt,
		Actions: []model.NotificationAction{
			{Label: "Approve", Kind: types.ActionKindPrimary, Token: types.ActionTokenApprove},
		},
		Metadata: model.NotificationMetadata{
			ProjectID:    projectID,
			ProjectTitle: "Ward renovation",
		},
		Urgency:  types.UrgencyNormal,
		Channels: []types.Channel{types.ChannelInApp},
	}
}

func runNotificationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	uniq := func(prefix string) string {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}

	t.Run("Create and Get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		n := newTestNotification(types.ActorID(uniq("bob")), "p-1", types.NotificationTypeApprovalRequest, now)
		gt.NoError(t, repo.Notification().Create(ctx, n)).Required()

		got, err := repo.Notification().Get(ctx, n.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.RecipientID).Equal(n.RecipientID)
		gt.Value(t, got.Type).Equal(types.NotificationTypeApprovalRequest)
		gt.Array(t, got.Actions).Length(1)
		gt.Bool(t, got.Read).False()
	})

	t.Run("Create rejects duplicate ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		n := newTestNotification(types.ActorID(uniq("bob")), "p-1", types.NotificationTypeApprovalRequest, time.Now())
		gt.NoError(t, repo.Notification().Create(ctx, n)).Required()
		gt.Error(t, repo.Notification().Create(ctx, n))
	})

	t.Run("Get unknown returns not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Notification().Get(context.Background(), types.NewNotificationID())
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()
	})

	t.Run("ListByRecipient orders newest first and filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		recipient := types.ActorID(uniq("carol"))
		now := time.Now().UTC().Truncate(time.Millisecond)

		older := newTestNotification(recipient, "p-1", types.NotificationTypeApprovalRequest, now.Add(-time.Hour))
		newer := newTestNotification(recipient, "p-2", types.NotificationTypeStageCompleted, now)
		other := newTestNotification(types.ActorID(uniq("dave")), "p-1", types.NotificationTypeApprovalRequest, now)
		for _, n := range []*model.Notification{older, newer, other} {
			gt.NoError(t, repo.Notification().Create(ctx, n)).Required()
		}

		all, err := repo.Notification().ListByRecipient(ctx, recipient, model.NotificationFilter{})
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(2).Required()
		gt.Value(t, all[0].ID).Equal(newer.ID)
		gt.Value(t, all[1].ID).Equal(older.ID)

		byType, err := repo.Notification().ListByRecipient(ctx, recipient, model.NotificationFilter{
			Type: types.NotificationTypeApprovalRequest,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, byType).Length(1).Required()
		gt.Value(t, byType[0].ID).Equal(older.ID)

		byProject, err := repo.Notification().ListByRecipient(ctx, recipient, model.NotificationFilter{ProjectID: "p-2"})
		gt.NoError(t, err).Required()
		gt.Array(t, byProject).Length(1)

		limited, err := repo.Notification().ListByRecipient(ctx, recipient, model.NotificationFilter{Limit: 1})
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(1).Required()
		gt.Value(t, limited[0].ID).Equal(newer.ID)
	})

	t.Run("Update read state and unread count", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		recipient := types.ActorID(uniq("erin"))
		now := time.Now().UTC()

		n1 := newTestNotification(recipient, "p-1", types.NotificationTypeApprovalRequest, now)
		n2 := newTestNotification(recipient, "p-1", types.NotificationTypeStageCompleted, now.Add(time.Second))
		gt.NoError(t, repo.Notification().Create(ctx, n1)).Required()
		gt.NoError(t, repo.Notification().Create(ctx, n2)).Required()

		count, err := repo.Notification().CountUnread(ctx, recipient)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(2)

		n1.Read = true
		n1.ReadAt = &now
		gt.NoError(t, repo.Notification().Update(ctx, n1)).Required()

		count, err = repo.Notification().CountUnread(ctx, recipient)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)

		unread, err := repo.Notification().ListByRecipient(ctx, recipient, model.NotificationFilter{UnreadOnly: true})
		gt.NoError(t, err).Required()
		gt.Array(t, unread).Length(1).Required()
		gt.Value(t, unread[0].ID).Equal(n2.ID)
	})

	t.Run("Update unknown returns error", func(t *testing.T) {
		repo := newRepo(t)
		n := newTestNotification("nobody", "p-1", types.NotificationTypeApprovalRequest, time.Now())
		gt.Error(t, repo.Notification().Update(context.Background(), n))
	})

	t.Run("MarkAllRead", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		recipient := types.ActorID(uniq("frank"))
		now := time.Now().UTC()

		for i := 0; i < 3; i++ {
			n := newTestNotification(recipient, "p-1", types.NotificationTypeApprovalRequest, now.Add(time.Duration(i)*time.Second))
			gt.NoError(t, repo.Notification().Create(ctx, n)).Required()
		}

		marked, err := repo.Notification().MarkAllRead(ctx, recipient, now)
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(3)

		count, err := repo.Notification().CountUnread(ctx, recipient)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)

		marked, err = repo.Notification().MarkAllRead(ctx, recipient, now)
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(0)
	})

	t.Run("MarkAllRead beyond one transaction", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		recipient := types.ActorID(uniq("heidi"))
		now := time.Now().UTC()

		const total = 501
		for i := 0; i < total; i++ {
			n := newTestNotification(recipient, "p-1", types.NotificationTypeStageCompleted, now.Add(time.Duration(i)*time.Millisecond))
			gt.NoError(t, repo.Notification().Create(ctx, n)).Required()
		}

		marked, err := repo.Notification().MarkAllRead(ctx, recipient, now)
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(total)

		count, err := repo.Notification().CountUnread(ctx, recipient)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)
	})

	t.Run("AppendDelivery survives Update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		n := newTestNotification(types.ActorID(uniq("grace")), "p-1", types.NotificationTypeApprovalRequest, now)
		gt.NoError(t, repo.Notification().Create(ctx, n)).Required()

		gt.NoError(t, repo.Notification().AppendDelivery(ctx, n.ID, model.Delivery{
			Channel: types.ChannelInApp,
			Status:  types.DeliveryStatusSent,
			At:      now,
		})).Required()

		n.Actioned = true
		n.ActionTaken = types.ActionTokenApprove
		gt.NoError(t, repo.Notification().Update(ctx, n)).Required()

		got, err := repo.Notification().Get(ctx, n.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.Actioned).True()
		gt.Array(t, got.Deliveries).Length(1).Required()
		gt.Value(t, got.Deliveries[0].Status).Equal(types.DeliveryStatusSent)
	})

	t.Run("ListByProject", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		projectID := types.ProjectID(uniq("p"))
		now := time.Now().UTC()

		gt.NoError(t, repo.Notification().Create(ctx, newTestNotification("a", projectID, types.NotificationTypeApprovalRequest, now))).Required()
		gt.NoError(t, repo.Notification().Create(ctx, newTestNotification("b", projectID, types.NotificationTypeApprovalRequest, now))).Required()
		gt.NoError(t, repo.Notification().Create(ctx, newTestNotification("a", "elsewhere", types.NotificationTypeApprovalRequest, now))).Required()

		list, err := repo.Notification().ListByProject(ctx, projectID)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2)
	})
}

func TestMemoryNotificationRepository(t *testing.T) {
	runNotificationRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreNotificationRepository(t *testing.T) {
	runNotificationRepositoryTest(t, newFirestoreRepository)
}
