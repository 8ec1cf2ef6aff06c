package interfaces

import (
	"context"

	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// WorkflowRepository stores workflows keyed by project ID
type WorkflowRepository interface {
	// Get retrieves the workflow of a project. It returns an error wrapping
	// ErrNotFound when the project has no workflow.
	Get(ctx context.Context, projectID types.ProjectID) (*model.Workflow, error)

	// Put saves the whole workflow atomically. The write only succeeds when
	// the stored version equals wf.Version (0 for a new workflow); otherwise
	// it returns an error wrapping ErrConflict. On success wf.Version is
	// advanced to the stored version.
	Put(ctx context.Context, wf *model.Workflow) error

	// Exists reports whether the project has a workflow
	Exists(ctx context.Context, projectID types.ProjectID) (bool, error)

	// ListActive returns every workflow that is neither approved nor rejected
	ListActive(ctx context.Context) ([]*model.Workflow, error)
}
