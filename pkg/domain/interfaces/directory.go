package interfaces

import (
	"context"

	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Directory is the identity and role collaborator
type Directory interface {
	// Actor returns the actor with id. It returns an error wrapping
	// ErrActorNotFound of the implementation when unknown.
	Actor(ctx context.Context, id types.ActorID) (*model.Actor, error)

	// Resolve maps a role token to the actors holding it in the context of
	// project. ok is false when the token has no mapping.
	Resolve(ctx context.Context, roleToken string, project *model.Project) (assignee model.Assignee, ok bool, err error)

	// InDepartment reports whether the actor belongs to department
	InDepartment(ctx context.Context, id types.ActorID, department string) (bool, error)
}
