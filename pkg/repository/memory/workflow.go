package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

type workflowRepository struct {
	mu        sync.RWMutex
	workflows map[types.ProjectID]*model.Workflow
}

func newWorkflowRepository() *workflowRepository {
	return &workflowRepository{
		workflows: make(map[types.ProjectID]*model.Workflow),
	}
}

func copyAssignee(a model.Assignee) model.Assignee {
	a.Members = copyActorIDs(a.Members)
	return a
}

func copyActorIDs(ids []types.ActorID) []types.ActorID {
	if ids == nil {
		return nil
	}
	copied := make([]types.ActorID, len(ids))
	copy(copied, ids)
	return copied
}

func copyStage(s *model.Stage) *model.Stage {
	copied := *s
	copied.Assignee = copyAssignee(s.Assignee)
	if s.OverrideAuthority != nil {
		authority := copyAssignee(*s.OverrideAuthority)
		copied.OverrideAuthority = &authority
	}
	copied.Approvals = copyActorIDs(s.Approvals)
	copied.RequiredApprovers = copyActorIDs(s.RequiredApprovers)
	return &copied
}

// copyWorkflow creates a deep copy of a workflow. Time pointers are shared
// because the engine always replaces them rather than writing through them.
func copyWorkflow(wf *model.Workflow) *model.Workflow {
	copied := *wf

	copied.Stages = make([]*model.Stage, len(wf.Stages))
	for i, s := range wf.Stages {
		copied.Stages[i] = copyStage(s)
	}

	copied.NotificationLogs = make([]model.NotificationLog, len(wf.NotificationLogs))
	for i, l := range wf.NotificationLogs {
		l.Channels = append([]types.Channel(nil), l.Channels...)
		copied.NotificationLogs[i] = l
	}

	copied.Escalations = make([]model.EscalationRecord, len(wf.Escalations))
	for i, e := range wf.Escalations {
		e.From = copyAssignee(e.From)
		if e.Target != nil {
			target := copyAssignee(*e.Target)
			e.Target = &target
		}
		copied.Escalations[i] = e
	}

	if wf.MemberSelection != nil {
		sel := *wf.MemberSelection
		sel.Provisional = copyActorIDs(wf.MemberSelection.Provisional)
		copied.MemberSelection = &sel
	}

	return &copied
}

func (r *workflowRepository) Get(ctx context.Context, projectID types.ProjectID) (*model.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, exists := r.workflows[projectID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "workflow not found", goerr.V("project_id", projectID))
	}

	return copyWorkflow(wf), nil
}

func (r *workflowRepository) Put(ctx context.Context, wf *model.Workflow) error {
	if wf.ProjectID == "" {
		return goerr.New("workflow project ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var stored int64
	if current, ok := r.workflows[wf.ProjectID]; ok {
		stored = current.Version
	}
	if stored != wf.Version {
		return goerr.Wrap(ErrConflict, "workflow was modified concurrently",
			goerr.V("project_id", wf.ProjectID),
			goerr.V("version", wf.Version),
			goerr.V("stored_version", stored))
	}

	saved := copyWorkflow(wf)
	saved.Version = wf.Version + 1
	r.workflows[wf.ProjectID] = saved
	wf.Version = saved.Version
	return nil
}

func (r *workflowRepository) Exists(ctx context.Context, projectID types.ProjectID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.workflows[projectID]
	return exists, nil
}

func (r *workflowRepository) ListActive(ctx context.Context) ([]*model.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Workflow, 0)
	for _, wf := range r.workflows {
		if wf.Active {
			result = append(result, copyWorkflow(wf))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}
