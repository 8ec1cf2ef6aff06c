package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type notificationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newNotificationRepository(client *firestore.Client) *notificationRepository {
	return &notificationRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *notificationRepository) notificationsCollection() string {
	return prefixed(r.collectionPrefix, CollectionNotifications)
}

func (r *notificationRepository) doc(id types.NotificationID) *firestore.DocumentRef {
	return r.client.Collection(r.notificationsCollection()).Doc(string(id))
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		return goerr.New("notification ID is required")
	}

	if _, err := r.doc(n.ID).Create(ctx, n); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.New("notification already exists", goerr.V("id", n.ID))
		}
		return goerr.Wrap(err, "failed to create notification", goerr.V("id", n.ID))
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id types.NotificationID) (*model.Notification, error) {
	docSnap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get notification", goerr.V("id", id))
	}

	var n model.Notification
	if err := docSnap.DataTo(&n); err != nil {
		return nil, goerr.Wrap(err, "failed to decode notification", goerr.V("id", id))
	}
	return &n, nil
}

// Update writes only the mutable read/actioned fields so that a concurrent
// AppendDelivery is not overwritten
func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	_, err := r.doc(n.ID).Update(ctx, []firestore.Update{
		{Path: "read", Value: n.Read},
		{Path: "read_at", Value: n.ReadAt},
		{Path: "actioned", Value: n.Actioned},
		{Path: "actioned_at", Value: n.ActionedAt},
		{Path: "action_taken", Value: n.ActionTaken},
		{Path: "action_comment", Value: n.ActionComment},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", n.ID))
		}
		return goerr.Wrap(err, "failed to update notification", goerr.V("id", n.ID))
	}
	return nil
}

func (r *notificationRepository) collect(iter *firestore.DocumentIterator, filter model.NotificationFilter) ([]*model.Notification, error) {
	defer iter.Stop()

	result := make([]*model.Notification, 0)
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate notifications")
		}

		var n model.Notification
		if err := docSnap.DataTo(&n); err != nil {
			return nil, goerr.Wrap(err, "failed to decode notification", goerr.V("doc_id", docSnap.Ref.ID))
		}
		if !filter.Match(&n) {
			continue
		}

		result = append(result, &n)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID types.ActorID, filter model.NotificationFilter) ([]*model.Notification, error) {
	q := r.client.Collection(r.notificationsCollection()).
		Where("recipient_id", "==", string(recipientID))
	if filter.UnreadOnly {
		q = q.Where("read", "==", false)
	}
	q = q.OrderBy("created_at", firestore.Desc)

	result, err := r.collect(q.Documents(ctx), filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notifications by recipient", goerr.V("recipient_id", recipientID))
	}
	return result, nil
}

func (r *notificationRepository) ListByProject(ctx context.Context, projectID types.ProjectID) ([]*model.Notification, error) {
	q := r.client.Collection(r.notificationsCollection()).
		Where("metadata.project_id", "==", string(projectID)).
		OrderBy("created_at", firestore.Desc)

	result, err := r.collect(q.Documents(ctx), model.NotificationFilter{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notifications by project", goerr.V("project_id", projectID))
	}
	return result, nil
}

func (r *notificationRepository) unreadQuery(recipientID types.ActorID) firestore.Query {
	return r.client.Collection(r.notificationsCollection()).
		Where("recipient_id", "==", string(recipientID)).
		Where("read", "==", false)
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID types.ActorID) (int, error) {
	iter := r.unreadQuery(recipientID).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count unread notifications", goerr.V("recipient_id", recipientID))
		}
		count++
	}
	return count, nil
}

// MarkAllRead updates the unread documents through a BulkWriter, which has
// no limit on the number of writes. Each document is marked independently,
// so a failure leaves the others read.
func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID types.ActorID, at time.Time) (int, error) {
	iter := r.unreadQuery(recipientID).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, goerr.Wrap(err, "failed to get unread notifications", goerr.V("recipient_id", recipientID))
		}

		job, err := bw.Update(doc.Ref, []firestore.Update{
			{Path: "read", Value: true},
			{Path: "read_at", Value: at},
		})
		if err != nil {
			bw.End()
			return 0, goerr.Wrap(err, "failed to enqueue notification update",
				goerr.V("recipient_id", recipientID),
				goerr.V("doc_id", doc.Ref.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	count := 0
	var failed error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if failed == nil {
				failed = err
			}
			continue
		}
		count++
	}
	if failed != nil {
		return count, goerr.Wrap(failed, "failed to mark some notifications read",
			goerr.V("recipient_id", recipientID),
			goerr.V("marked", count),
			goerr.V("total", len(jobs)))
	}
	return count, nil
}

func (r *notificationRepository) AppendDelivery(ctx context.Context, id types.NotificationID, delivery model.Delivery) error {
	_, err := r.doc(id).Update(ctx, []firestore.Update{
		{Path: "deliveries", Value: firestore.ArrayUnion(delivery)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "notification not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to append delivery", goerr.V("id", id))
	}
	return nil
}
