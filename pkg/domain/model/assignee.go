package model

import (
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// AssigneeKind distinguishes what an Assignee refers to
type AssigneeKind string

const (
	AssigneeKindIndividual AssigneeKind = "individual"
	AssigneeKindSystem     AssigneeKind = "system"
	AssigneeKindGroup      AssigneeKind = "group"
	AssigneeKindUnknown    AssigneeKind = "unknown"
)

// Assignee is a resolved actor or actor group bound to a stage. It only
// references identities; the directory owns them.
type Assignee struct {
	Kind    AssigneeKind    `firestore:"kind" json:"kind"`
	ID      string          `firestore:"id" json:"id"`
	Name    string          `firestore:"name" json:"name"`
	Members []types.ActorID `firestore:"members" json:"members,omitempty"`
}

// NewIndividualAssignee returns an assignee for a single actor
func NewIndividualAssignee(id types.ActorID, name string) Assignee {
	return Assignee{
		Kind:    AssigneeKindIndividual,
		ID:      string(id),
		Name:    name,
		Members: []types.ActorID{id},
	}
}

// NewGroupAssignee returns an assignee for a named group of actors
func NewGroupAssignee(id, name string, members []types.ActorID) Assignee {
	copied := make([]types.ActorID, len(members))
	copy(copied, members)
	return Assignee{
		Kind:    AssigneeKindGroup,
		ID:      id,
		Name:    name,
		Members: copied,
	}
}

// SystemAssignee is the automated system account
func SystemAssignee() Assignee {
	return Assignee{
		Kind: AssigneeKindSystem,
		ID:   string(types.ActorIDSystem),
		Name: "System",
	}
}

// UnknownAssignee is the placeholder for a role token with no mapping
func UnknownAssignee(roleToken string) Assignee {
	return Assignee{
		Kind: AssigneeKindUnknown,
		ID:   "unknown:" + roleToken,
		Name: "Unknown (" + roleToken + ")",
	}
}

// Contains reports whether actorID is, or is a member of, the assignee
func (a Assignee) Contains(actorID types.ActorID) bool {
	for _, m := range a.Members {
		if m == actorID {
			return true
		}
	}
	return false
}

// Recipients returns the actors who should be notified for this assignee
func (a Assignee) Recipients() []types.ActorID {
	if a.Kind == AssigneeKindSystem || a.Kind == AssigneeKindUnknown {
		return nil
	}
	result := make([]types.ActorID, len(a.Members))
	copy(result, a.Members)
	return result
}

// IsZero reports whether the assignee was never resolved
func (a Assignee) IsZero() bool {
	return a.Kind == "" && a.ID == ""
}
