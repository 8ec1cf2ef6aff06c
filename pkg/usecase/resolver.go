package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// Resolver maps role tokens to assignees. A token the directory cannot map
// becomes a placeholder so the workflow can still be built and later
// reassigned.
type Resolver struct {
	directory interfaces.Directory
}

func NewResolver(directory interfaces.Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve returns the assignee for roleToken. Only directory failures are
// returned as errors.
func (r *Resolver) Resolve(ctx context.Context, roleToken string, project *model.Project) (model.Assignee, error) {
	if roleToken == model.RoleSystem {
		return model.SystemAssignee(), nil
	}

	if r.directory == nil {
		logging.From(ctx).Warn("no directory configured, using placeholder assignee",
			"role_token", roleToken,
			ProjectIDKey, project.ID,
		)
		return model.UnknownAssignee(roleToken), nil
	}

	assignee, ok, err := r.directory.Resolve(ctx, roleToken, project)
	if err != nil {
		return model.Assignee{}, goerr.Wrap(err, "failed to resolve role token",
			goerr.V("role_token", roleToken),
			goerr.V(ProjectIDKey, project.ID))
	}
	if !ok {
		logging.From(ctx).Warn("role token has no mapping, using placeholder assignee",
			"role_token", roleToken,
			ProjectIDKey, project.ID,
		)
		return model.UnknownAssignee(roleToken), nil
	}

	return assignee, nil
}
