package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type workflowRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newWorkflowRepository(client *firestore.Client) *workflowRepository {
	return &workflowRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *workflowRepository) workflowsCollection() string {
	return prefixed(r.collectionPrefix, CollectionWorkflows)
}

func (r *workflowRepository) Get(ctx context.Context, projectID types.ProjectID) (*model.Workflow, error) {
	docSnap, err := r.client.Collection(r.workflowsCollection()).Doc(string(projectID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "workflow not found", goerr.V("project_id", projectID))
		}
		return nil, goerr.Wrap(err, "failed to get workflow", goerr.V("project_id", projectID))
	}

	var wf model.Workflow
	if err := docSnap.DataTo(&wf); err != nil {
		return nil, goerr.Wrap(err, "failed to decode workflow", goerr.V("project_id", projectID))
	}

	return &wf, nil
}

type workflowVersion struct {
	Version int64 `firestore:"version"`
}

// Put stores the whole workflow as one document. The version check and the
// write run in one transaction, so writers in other processes cannot
// overwrite each other.
func (r *workflowRepository) Put(ctx context.Context, wf *model.Workflow) error {
	if wf.ProjectID == "" {
		return goerr.New("workflow project ID is required")
	}

	ref := r.client.Collection(r.workflowsCollection()).Doc(string(wf.ProjectID))
	saved := *wf
	saved.Version = wf.Version + 1

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var stored workflowVersion
		docSnap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return goerr.Wrap(err, "failed to get workflow version")
		default:
			if err := docSnap.DataTo(&stored); err != nil {
				return goerr.Wrap(err, "failed to decode workflow version")
			}
		}

		if stored.Version != wf.Version {
			return goerr.Wrap(ErrConflict, "workflow was modified concurrently",
				goerr.V("version", wf.Version),
				goerr.V("stored_version", stored.Version))
		}
		return tx.Set(ref, &saved)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put workflow", goerr.V("project_id", wf.ProjectID))
	}

	wf.Version = saved.Version
	return nil
}

func (r *workflowRepository) Exists(ctx context.Context, projectID types.ProjectID) (bool, error) {
	_, err := r.client.Collection(r.workflowsCollection()).Doc(string(projectID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to check workflow existence", goerr.V("project_id", projectID))
	}
	return true, nil
}

func (r *workflowRepository) ListActive(ctx context.Context) ([]*model.Workflow, error) {
	iter := r.client.Collection(r.workflowsCollection()).
		Where("active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	workflows := make([]*model.Workflow, 0)
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate workflows")
		}

		var wf model.Workflow
		if err := docSnap.DataTo(&wf); err != nil {
			return nil, goerr.Wrap(err, "failed to decode workflow", goerr.V("doc_id", docSnap.Ref.ID))
		}
		workflows = append(workflows, &wf)
	}

	return workflows, nil
}
