package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = interfaces.ErrNotFound

// ErrConflict is returned when a write is based on a stale workflow
var ErrConflict = interfaces.ErrConflict

// Collection names without prefix. The migrate command uses them to define
// indexes.
const (
	CollectionWorkflows     = "workflows"
	CollectionNotifications = "notifications"
)

type Firestore struct {
	client       *firestore.Client
	workflow     *workflowRepository
	notification *notificationRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.workflow.collectionPrefix = prefix
		f.notification.collectionPrefix = prefix
	}
}

// New creates a Firestore repository. An empty databaseID selects the
// default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		workflow:     newWorkflowRepository(client),
		notification: newNotificationRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Workflow() interfaces.WorkflowRepository {
	return f.workflow
}

func (f *Firestore) Notification() interfaces.NotificationRepository {
	return f.notification
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func prefixed(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

// CollectionName returns the collection name used for name under prefix
func CollectionName(prefix, name string) string {
	return prefixed(prefix, name)
}
