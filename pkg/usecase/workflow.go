package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/async"
	"github.com/secmon-lab/ringi/pkg/utils/errutil"
	"github.com/secmon-lab/ringi/pkg/utils/keylock"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// OverrideCommentPrefix marks the comment of a stage completed by emergency
// override
const OverrideCommentPrefix = "[EMERGENCY OVERRIDE] "

// WorkflowUseCase drives the approval workflow of each project through its
// stages. All operations on one workflow, including timer firings, are
// serialized by a per-project lock.
type WorkflowUseCase struct {
	repo                interfaces.Repository
	resolver            *Resolver
	directory           interfaces.Directory
	notifier            *NotificationUseCase
	archiver            interfaces.Archiver
	scheduler           interfaces.Scheduler
	governingDepartment string
	clock               func() time.Time
	syncDelivery        bool
	tasks               *async.Group

	locks *keylock.Locker
}

var _ interfaces.TimerHandler = (*WorkflowUseCase)(nil)

// effects are caused by a transition outside the workflow document. They
// are applied only after the workflow is saved.
type effects struct {
	notifications []*model.Notification
	arms          []timerArm
	cancels       []types.StageID
	cancelAll     bool
	archive       bool
}

type timerArm struct {
	stageID types.StageID
	kind    types.TimerKind
	at      time.Time
}

// transition is one in-flight mutation of a workflow
type transition struct {
	wf        *model.Workflow
	now       time.Time
	unchanged bool
	fx        effects
}

func (uc *WorkflowUseCase) begin(wf *model.Workflow) *transition {
	// Firestore keeps microseconds. Timer fire-at values must survive a round trip.
	return &transition{
		wf:  wf,
		now: uc.clock().UTC().Truncate(time.Microsecond),
	}
}

func (tx *transition) cancel(stageID types.StageID) {
	tx.fx.cancels = append(tx.fx.cancels, stageID)
}

// armStage arms the overdue and escalation timers of an in-progress stage
func (tx *transition) armStage(stage *model.Stage) {
	if stage.DueAt != nil && !stage.OverdueNotified {
		tx.fx.arms = append(tx.fx.arms, timerArm{stageID: stage.ID, kind: types.TimerKindOverdue, at: *stage.DueAt})
	}
	if stage.EscalationAt != nil {
		tx.fx.arms = append(tx.fx.arms, timerArm{stageID: stage.ID, kind: types.TimerKindEscalation, at: *stage.EscalationAt})
	}
}

func (uc *WorkflowUseCase) notify(tx *transition, ev event) {
	tx.fx.notifications = append(tx.fx.notifications, uc.notifier.prepare(tx.wf, ev, tx.now)...)
}

func (uc *WorkflowUseCase) load(ctx context.Context, projectID types.ProjectID) (*model.Workflow, error) {
	wf, err := uc.repo.Workflow().Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrWorkflowNotFound, "workflow not found", goerr.V(ProjectIDKey, projectID))
		}
		return nil, goerr.Wrap(err, "failed to load workflow", goerr.V(ProjectIDKey, projectID))
	}
	return wf, nil
}

// commit saves the workflow and then applies the transition's effects
func (uc *WorkflowUseCase) commit(ctx context.Context, tx *transition) error {
	if n := tx.wf.InProgressCount(); n > 1 {
		return goerr.New("workflow has more than one stage in progress",
			goerr.V(ProjectIDKey, tx.wf.ProjectID),
			goerr.V("in_progress", n))
	}

	tx.wf.UpdatedAt = tx.now
	if err := uc.repo.Workflow().Put(ctx, tx.wf); err != nil {
		return goerr.Wrap(err, "failed to save workflow", goerr.V(ProjectIDKey, tx.wf.ProjectID))
	}

	uc.apply(ctx, tx.wf, &tx.fx)
	return nil
}

func (uc *WorkflowUseCase) apply(ctx context.Context, wf *model.Workflow, fx *effects) {
	if uc.scheduler != nil {
		if fx.cancelAll {
			uc.scheduler.CancelWorkflow(wf.ProjectID)
		} else {
			for _, stageID := range fx.cancels {
				uc.scheduler.Cancel(wf.ProjectID, stageID)
			}
			for _, arm := range fx.arms {
				uc.scheduler.Arm(wf.ProjectID, arm.stageID, arm.kind, arm.at)
			}
		}
	}

	uc.notifier.publish(ctx, fx.notifications)

	if fx.archive && uc.archiver != nil {
		archive := func(ctx context.Context) error {
			if err := uc.archiver.Archive(ctx, wf); err != nil {
				errutil.Handle(ctx, goerr.Wrap(err, "failed to archive workflow",
					goerr.V(ProjectIDKey, wf.ProjectID)), "workflow snapshot is not archived")
			}
			return nil
		}
		if uc.syncDelivery {
			_ = archive(ctx)
		} else {
			uc.tasks.Dispatch(ctx, archive)
		}
	}
}

// commitAttempts bounds how often a transition is replayed when another
// process saved the workflow in between
const commitAttempts = 3

// retryable reports whether a failed commit should be replayed on a fresh
// copy of the workflow
func retryable(err error, attempt int) bool {
	return errors.Is(err, interfaces.ErrConflict) && attempt < commitAttempts
}

// update locks the workflow, applies fn to a fresh copy and commits it. fn
// is replayed on a reloaded copy when the save conflicts.
func (uc *WorkflowUseCase) update(ctx context.Context, projectID types.ProjectID, fn func(ctx context.Context, tx *transition) error) (*model.Workflow, error) {
	unlock := uc.locks.Lock(string(projectID))
	defer unlock()

	for attempt := 1; ; attempt++ {
		wf, err := uc.load(ctx, projectID)
		if err != nil {
			return nil, err
		}

		tx := uc.begin(wf)
		if err := fn(ctx, tx); err != nil {
			return nil, err
		}
		if tx.unchanged {
			return wf, nil
		}

		err = uc.commit(ctx, tx)
		if err == nil {
			return wf, nil
		}
		if !retryable(err, attempt) {
			return nil, err
		}
		logging.From(ctx).Warn("workflow was saved concurrently, retrying",
			ProjectIDKey, projectID,
			"attempt", attempt,
		)
	}
}

func offsetFrom(from time.Time, d time.Duration) *time.Time {
	if d <= 0 {
		return nil
	}
	t := from.Add(d)
	return &t
}

// scheduleStage sets the stage deadlines from its kind, scaled by category
func scheduleStage(stage *model.Stage, category types.Category, from time.Time) {
	d := model.DurationOf(stage.Kind)
	stage.DueAt = offsetFrom(from, category.ScaleDays(d.DueDays))
	stage.EscalationAt = offsetFrom(from, category.ScaleDays(d.EscalationDays))
}

func copyActorIDs(ids []types.ActorID) []types.ActorID {
	if len(ids) == 0 {
		return nil
	}
	result := make([]types.ActorID, len(ids))
	copy(result, ids)
	return result
}

func containsActor(ids []types.ActorID, id types.ActorID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Get returns the workflow of a project
func (uc *WorkflowUseCase) Get(ctx context.Context, projectID types.ProjectID) (*model.Workflow, error) {
	return uc.load(ctx, projectID)
}

// ListActive returns workflows that are neither approved nor rejected
func (uc *WorkflowUseCase) ListActive(ctx context.Context) ([]*model.Workflow, error) {
	list, err := uc.repo.Workflow().ListActive(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list active workflows")
	}
	return list, nil
}

// Initialize creates the workflow of a project from its template. Leading
// auto-complete stages are completed immediately.
func (uc *WorkflowUseCase) Initialize(ctx context.Context, project *model.Project) (*model.Workflow, error) {
	if err := project.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidProject, "invalid project",
			goerr.V(ProjectIDKey, project.ID),
			goerr.V("reason", err.Error()))
	}

	unlock := uc.locks.Lock(string(project.ID))
	defer unlock()

	exists, err := uc.repo.Workflow().Exists(ctx, project.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check workflow existence", goerr.V(ProjectIDKey, project.ID))
	}
	if exists {
		return nil, goerr.Wrap(ErrWorkflowExists, "workflow already exists", goerr.V(ProjectIDKey, project.ID))
	}

	if project.IsSpecial() {
		if err := uc.checkGoverningDepartment(ctx, project); err != nil {
			return nil, err
		}
	}

	tmpl, err := model.TemplateFor(project)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to select workflow template", goerr.V(ProjectIDKey, project.ID))
	}

	wf := &model.Workflow{
		ProjectID:        project.ID,
		Project:          *project,
		Stages:           make([]*model.Stage, 0, len(tmpl.Stages)),
		NotificationLogs: []model.NotificationLog{},
		Escalations:      []model.EscalationRecord{},
		Active:           true,
	}
	tx := uc.begin(wf)
	wf.CreatedAt = tx.now

	for _, st := range tmpl.Stages {
		stage, err := uc.buildStage(ctx, project, st, tx.now)
		if err != nil {
			return nil, err
		}
		wf.Stages = append(wf.Stages, stage)
	}

	uc.activate(tx, 0)

	if err := uc.commit(ctx, tx); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			return nil, goerr.Wrap(ErrWorkflowExists, "workflow was created concurrently", goerr.V(ProjectIDKey, project.ID))
		}
		return nil, err
	}

	logging.From(ctx).Info("workflow initialized",
		ProjectIDKey, wf.ProjectID,
		"template", tmpl.Key,
		"stages", len(wf.Stages),
		"current_stage", wf.CurrentStageIndex,
	)
	return wf, nil
}

func (uc *WorkflowUseCase) checkGoverningDepartment(ctx context.Context, project *model.Project) error {
	if uc.governingDepartment == "" || uc.directory == nil {
		return goerr.Wrap(ErrSpecialCategoryRestricted, "no governing department is configured",
			goerr.V(ProjectIDKey, project.ID),
			goerr.V("special_category", project.SpecialCategory))
	}

	member, err := uc.directory.InDepartment(ctx, project.ProposerID, uc.governingDepartment)
	if err != nil {
		return goerr.Wrap(err, "failed to check proposer department", goerr.V(ActorIDKey, project.ProposerID))
	}
	if !member {
		return goerr.Wrap(ErrSpecialCategoryRestricted, "proposer is not in the governing department",
			goerr.V(ProjectIDKey, project.ID),
			goerr.V(ActorIDKey, project.ProposerID),
			goerr.V("special_category", project.SpecialCategory))
	}
	return nil
}

func (uc *WorkflowUseCase) buildStage(ctx context.Context, project *model.Project, st model.StageTemplate, now time.Time) (*model.Stage, error) {
	assignee, err := uc.resolver.Resolve(ctx, st.RoleToken, project)
	if err != nil {
		return nil, err
	}

	stage := &model.Stage{
		ID:                types.NewStageID(),
		Kind:              st.Kind,
		RoleToken:         st.RoleToken,
		Assignee:          assignee,
		RequiredLevel:     st.RequiredLevel,
		Status:            types.StageStatusPending,
		AutoComplete:      st.AutoComplete,
		MultiApprover:     st.MultiApprover,
		EmergencyOverride: st.EmergencyOverride,
		CreatedAt:         now,
	}

	if st.EmergencyOverride && st.OverrideRoleToken != "" {
		authority, err := uc.resolver.Resolve(ctx, st.OverrideRoleToken, project)
		if err != nil {
			return nil, err
		}
		stage.OverrideAuthority = &authority
	}

	if !st.AutoComplete {
		scheduleStage(stage, project.Category, now)
	}
	if st.MultiApprover {
		stage.RequiredApprovers = copyActorIDs(assignee.Members)
	}

	return stage, nil
}

// activate makes the stage at idx the current in-progress stage
func (uc *WorkflowUseCase) activate(tx *transition, idx int) {
	wf := tx.wf
	stage := wf.Stages[idx]

	startedAt := tx.now
	stage.Status = types.StageStatusInProgress
	stage.StartedAt = &startedAt
	wf.CurrentStageIndex = idx

	if stage.AutoComplete {
		uc.complete(tx, stage, types.ActorIDSystem, "")
		return
	}

	scheduleStage(stage, wf.Project.Category, tx.now)
	tx.armStage(stage)

	uc.notify(tx, event{
		typ:        types.NotificationTypeApprovalRequest,
		stage:      stage,
		recipients: stage.Assignee.Recipients(),
		title:      fmt.Sprintf("Approval requested: %s", wf.Project.Title),
		message:    fmt.Sprintf("%s of %q is waiting for your decision.", stage.Kind.DisplayName(), wf.Project.Title),
		actions:    approvalActions(stage),
	})

	if stage.EmergencyOverride && stage.OverrideAuthority != nil {
		uc.notify(tx, event{
			typ:        types.NotificationTypeApprovalRequest,
			stage:      stage,
			recipients: stage.OverrideAuthority.Recipients(),
			title:      fmt.Sprintf("Emergency override available: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q has started. You may complete it by emergency override.", stage.Kind.DisplayName(), wf.Project.Title),
			actions:    overrideActions(),
		})
	}
}

// complete finishes an in-progress stage and advances the workflow
func (uc *WorkflowUseCase) complete(tx *transition, stage *model.Stage, actor types.ActorID, comment string) {
	wf := tx.wf
	completedAt := tx.now
	stage.Status = types.StageStatusCompleted
	stage.CompletedAt = &completedAt
	stage.CompletedBy = actor
	stage.Comment = comment
	tx.cancel(stage.ID)

	if !stage.AutoComplete {
		uc.notify(tx, event{
			typ:        types.NotificationTypeStageCompleted,
			stage:      stage,
			recipients: []types.ActorID{wf.Project.ProposerID},
			title:      fmt.Sprintf("Stage completed: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q was completed by %s.", stage.Kind.DisplayName(), wf.Project.Title, actor),
			actions:    infoActions(),
		})
	}

	if stage.Kind.IsApprovalCompleted() && !wf.ApprovalCompleted {
		wf.ApprovalCompleted = true
		wf.ApprovalCompletedAt = &completedAt
		wf.Active = false
		tx.fx.archive = true

		uc.notify(tx, event{
			typ:        types.NotificationTypeWorkflowApproved,
			recipients: []types.ActorID{wf.Project.ProposerID},
			title:      fmt.Sprintf("Approved: %s", wf.Project.Title),
			message:    fmt.Sprintf("%q has passed every approval stage.", wf.Project.Title),
			actions:    infoActions(),
		})

		// A selection opened early by the proposer is announced again
		uc.openSelection(tx)
		uc.announceSelection(tx)
	}

	_, idx := wf.StageByID(stage.ID)
	if idx+1 < len(wf.Stages) {
		uc.activate(tx, idx+1)
	}
}

// openSelection opens the member selection once. It reports whether a new
// selection was opened.
func (uc *WorkflowUseCase) openSelection(tx *transition) bool {
	if tx.wf.MemberSelection != nil {
		return false
	}
	tx.wf.MemberSelection = &model.MemberSelection{
		StartedAt:   tx.now,
		Provisional: []types.ActorID{},
	}
	return true
}

func (uc *WorkflowUseCase) announceSelection(tx *transition) {
	wf := tx.wf
	uc.notify(tx, event{
		typ:        types.NotificationTypeMemberSelectionStarted,
		recipients: []types.ActorID{wf.Project.ProposerID},
		title:      fmt.Sprintf("Member selection started: %s", wf.Project.Title),
		message:    fmt.Sprintf("Select the members of %q.", wf.Project.Title),
		actions:    infoActions(),
	})
}

// actionableStage returns the stage if a decision can be made on it
func actionableStage(wf *model.Workflow, stageID types.StageID) (*model.Stage, error) {
	if wf.IsRejected() {
		return nil, goerr.Wrap(ErrWorkflowRejected, "workflow is rejected", goerr.V(ProjectIDKey, wf.ProjectID))
	}

	stage, _ := wf.StageByID(stageID)
	if stage == nil {
		return nil, goerr.Wrap(ErrStageNotFound, "stage not found",
			goerr.V(ProjectIDKey, wf.ProjectID),
			goerr.V(StageIDKey, stageID))
	}
	if stage.Status != types.StageStatusInProgress {
		return nil, goerr.Wrap(ErrInvalidStageState, "stage is not in progress",
			goerr.V(ProjectIDKey, wf.ProjectID),
			goerr.V(StageIDKey, stageID),
			goerr.V("status", stage.Status))
	}
	return stage, nil
}

// authorize checks that actor may decide the stage: as a member of the
// assignee or by holding the required level
func (uc *WorkflowUseCase) authorize(ctx context.Context, stage *model.Stage, actor types.ActorID) error {
	if stage.Assignee.Contains(actor) {
		return nil
	}

	if stage.RequiredLevel > 0 && uc.directory != nil {
		a, err := uc.directory.Actor(ctx, actor)
		if err != nil {
			logging.From(ctx).Debug("actor level is unknown", ActorIDKey, actor, "error", err)
		} else if a.Level >= stage.RequiredLevel {
			return nil
		}
	}

	return goerr.Wrap(ErrNotAuthorized, "actor may not decide the stage",
		goerr.V(StageIDKey, stage.ID),
		goerr.V(ActorIDKey, actor),
		goerr.V("required_level", stage.RequiredLevel))
}

// Complete approves a single-approver stage
func (uc *WorkflowUseCase) Complete(ctx context.Context, projectID types.ProjectID, stageID types.StageID, actor types.ActorID, comment string) (*model.Workflow, error) {
	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		stage, err := actionableStage(tx.wf, stageID)
		if err != nil {
			return err
		}
		if stage.MultiApprover {
			return goerr.Wrap(ErrMultiApproverStage, "stage is decided by quorum",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if err := uc.authorize(ctx, stage, actor); err != nil {
			return err
		}

		uc.complete(tx, stage, actor, comment)
		logging.From(ctx).Info("stage completed",
			ProjectIDKey, projectID,
			StageIDKey, stageID,
			ActorIDKey, actor,
			"kind", stage.Kind,
		)
		return nil
	})
}

// Reject rejects the stage and ends the workflow. Later stages stay pending.
func (uc *WorkflowUseCase) Reject(ctx context.Context, projectID types.ProjectID, stageID types.StageID, actor types.ActorID, reason string) (*model.Workflow, error) {
	if reason == "" {
		return nil, goerr.Wrap(ErrCommentRequired, "rejection reason is required",
			goerr.V(ProjectIDKey, projectID),
			goerr.V(StageIDKey, stageID))
	}

	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		wf := tx.wf
		stage, err := actionableStage(wf, stageID)
		if err != nil {
			return err
		}
		if err := uc.authorize(ctx, stage, actor); err != nil {
			return err
		}

		now := tx.now
		stage.Status = types.StageStatusRejected
		stage.CompletedAt = &now
		stage.CompletedBy = actor
		stage.Comment = reason

		wf.RejectedAt = &now
		wf.RejectedBy = actor
		wf.RejectionReason = reason
		wf.Active = false

		if wf.MemberSelection.IsActive() {
			wf.MemberSelection.CancelledAt = &now
			uc.notify(tx, event{
				typ:        types.NotificationTypeMemberSelectionCancelled,
				recipients: wf.MemberSelection.Provisional,
				title:      fmt.Sprintf("Member selection cancelled: %s", wf.Project.Title),
				message:    fmt.Sprintf("%q was rejected. Your provisional selection is cancelled.", wf.Project.Title),
				actions:    infoActions(),
			})
		}

		tx.fx.cancelAll = true
		tx.fx.archive = true

		uc.notify(tx, event{
			typ:        types.NotificationTypeWorkflowRejected,
			stage:      stage,
			recipients: []types.ActorID{wf.Project.ProposerID},
			title:      fmt.Sprintf("Rejected: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q was rejected by %s: %s", stage.Kind.DisplayName(), wf.Project.Title, actor, reason),
			actions:    infoActions(),
		})

		logging.From(ctx).Info("workflow rejected",
			ProjectIDKey, projectID,
			StageIDKey, stageID,
			ActorIDKey, actor,
		)
		return nil
	})
}

// Approve records a vote on a multi-approver stage. A repeated vote by the
// same actor changes nothing. The stage completes once the quorum is met.
func (uc *WorkflowUseCase) Approve(ctx context.Context, projectID types.ProjectID, stageID types.StageID, actor types.ActorID, comment string) (*model.Workflow, error) {
	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		wf := tx.wf
		stage, err := actionableStage(wf, stageID)
		if err != nil {
			return err
		}
		if !stage.MultiApprover {
			return goerr.Wrap(ErrNotMultiApprover, "stage does not take votes",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if err := uc.authorize(ctx, stage, actor); err != nil {
			return err
		}

		if stage.HasApproved(actor) {
			tx.unchanged = true
			return nil
		}
		stage.Approvals = append(stage.Approvals, actor)

		if stage.QuorumReached() {
			uc.complete(tx, stage, types.ActorIDMultipleApprovers, comment)
			logging.From(ctx).Info("quorum reached",
				ProjectIDKey, projectID,
				StageIDKey, stageID,
				"approvals", len(stage.Approvals),
			)
			return nil
		}

		uc.notify(tx, event{
			typ:        types.NotificationTypeQuorumProgress,
			stage:      stage,
			recipients: []types.ActorID{wf.Project.ProposerID},
			title:      fmt.Sprintf("Vote recorded: %s", wf.Project.Title),
			message: fmt.Sprintf("%s of %q has %d of %d approvals.",
				stage.Kind.DisplayName(), wf.Project.Title, len(stage.Approvals), stage.QuorumSize()),
			actions: infoActions(),
		})
		return nil
	})
}

// Override completes an emergency override stage on behalf of its override
// authority
func (uc *WorkflowUseCase) Override(ctx context.Context, projectID types.ProjectID, stageID types.StageID, actor types.ActorID, reason string) (*model.Workflow, error) {
	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		wf := tx.wf
		if wf.IsRejected() {
			return goerr.Wrap(ErrWorkflowRejected, "workflow is rejected", goerr.V(ProjectIDKey, projectID))
		}

		stage, _ := wf.StageByID(stageID)
		if stage == nil {
			return goerr.Wrap(ErrStageNotFound, "stage not found",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if !stage.EmergencyOverride {
			return goerr.Wrap(ErrNotOverrideStage, "stage has no emergency override",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if stage.Status != types.StageStatusInProgress || wf.CurrentStage() != stage {
			return goerr.Wrap(ErrInvalidStageState, "only the current in-progress stage can be overridden",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID),
				goerr.V("status", stage.Status))
		}
		if reason == "" {
			return goerr.Wrap(ErrCommentRequired, "override reason is required",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if stage.OverrideAuthority == nil || !stage.OverrideAuthority.Contains(actor) {
			return goerr.Wrap(ErrNotAuthorized, "actor holds no override authority",
				goerr.V(StageIDKey, stageID),
				goerr.V(ActorIDKey, actor))
		}

		recipients := append([]types.ActorID{wf.Project.ProposerID}, stage.Assignee.Recipients()...)
		uc.notify(tx, event{
			typ:        types.NotificationTypeEmergencyOverride,
			stage:      stage,
			recipients: recipients,
			title:      fmt.Sprintf("Emergency override: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q was completed by emergency override by %s: %s", stage.Kind.DisplayName(), wf.Project.Title, actor, reason),
			actions:    infoActions(),
		})

		uc.complete(tx, stage, actor, OverrideCommentPrefix+reason)

		logging.From(ctx).Warn("emergency override",
			ProjectIDKey, projectID,
			StageIDKey, stageID,
			ActorIDKey, actor,
		)
		return nil
	})
}

// reassignStage hands the stage to a new assignee with fresh deadlines
func (uc *WorkflowUseCase) reassignStage(tx *transition, stage *model.Stage, assignee model.Assignee) {
	stage.Assignee = assignee
	stage.Status = types.StageStatusInProgress
	stage.DueAt = offsetFrom(tx.now, time.Duration(model.ReassignDueDays)*24*time.Hour)
	stage.EscalationAt = offsetFrom(tx.now, time.Duration(model.ReassignEscalationDays)*24*time.Hour)
	stage.OverdueNotified = false
	stage.Approvals = nil
	if stage.MultiApprover {
		stage.RequiredApprovers = copyActorIDs(assignee.Members)
	}
	tx.armStage(stage)
}

// escalate moves a stalled stage to its escalation target, or leaves it
// escalated for manual review when the target cannot take it
func (uc *WorkflowUseCase) escalate(ctx context.Context, tx *transition, stage *model.Stage, reason string) error {
	wf := tx.wf
	previous := stage.Assignee

	stage.Status = types.StageStatusEscalated
	tx.cancel(stage.ID)

	record := model.EscalationRecord{
		StageID:   stage.ID,
		StageKind: stage.Kind,
		At:        tx.now,
		From:      previous,
		Reason:    reason,
	}

	if target := model.EscalationTargetOf(stage.Kind); target.AutoReassign() {
		assignee, err := uc.resolver.Resolve(ctx, target.RoleToken, &wf.Project)
		if err != nil {
			return err
		}

		if assignee.Kind != model.AssigneeKindUnknown {
			record.Target = &assignee
			record.AutoReassigned = true
			wf.Escalations = append(wf.Escalations, record)
			uc.reassignStage(tx, stage, assignee)

			uc.notify(tx, event{
				typ:        types.NotificationTypeEscalation,
				stage:      stage,
				recipients: assignee.Recipients(),
				title:      fmt.Sprintf("Escalated to you: %s", wf.Project.Title),
				message:    fmt.Sprintf("%s of %q was escalated from %s and is now assigned to you.", stage.Kind.DisplayName(), wf.Project.Title, previous.Name),
				actions:    approvalActions(stage),
			})
			uc.notify(tx, event{
				typ:        types.NotificationTypeReassigned,
				stage:      stage,
				recipients: previous.Recipients(),
				title:      fmt.Sprintf("Reassigned: %s", wf.Project.Title),
				message:    fmt.Sprintf("%s of %q was escalated to %s.", stage.Kind.DisplayName(), wf.Project.Title, assignee.Name),
				actions:    infoActions(),
			})
			uc.notify(tx, event{
				typ:        types.NotificationTypeEscalation,
				stage:      stage,
				recipients: []types.ActorID{wf.Project.ProposerID},
				title:      fmt.Sprintf("Escalated: %s", wf.Project.Title),
				message:    fmt.Sprintf("%s of %q was escalated to %s.", stage.Kind.DisplayName(), wf.Project.Title, assignee.Name),
				actions:    infoActions(),
			})

			logging.From(ctx).Info("stage escalated and reassigned",
				ProjectIDKey, wf.ProjectID,
				StageIDKey, stage.ID,
				"to", assignee.ID,
			)
			return nil
		}
	}

	wf.Escalations = append(wf.Escalations, record)

	reviewers, err := uc.resolver.Resolve(ctx, model.ManualReviewRoleToken, &wf.Project)
	if err != nil {
		return err
	}
	uc.notify(tx, event{
		typ:        types.NotificationTypeEscalation,
		stage:      stage,
		recipients: reviewers.Recipients(),
		title:      fmt.Sprintf("Escalation needs review: %s", wf.Project.Title),
		message:    fmt.Sprintf("%s of %q is stalled with %s. Reassign it to continue.", stage.Kind.DisplayName(), wf.Project.Title, previous.Name),
		actions:    reassignActions(),
	})
	uc.notify(tx, event{
		typ:        types.NotificationTypeEscalation,
		stage:      stage,
		recipients: []types.ActorID{wf.Project.ProposerID},
		title:      fmt.Sprintf("Escalated: %s", wf.Project.Title),
		message:    fmt.Sprintf("%s of %q is waiting for manual review.", stage.Kind.DisplayName(), wf.Project.Title),
		actions:    infoActions(),
	})

	logging.From(ctx).Info("stage escalated for manual review",
		ProjectIDKey, wf.ProjectID,
		StageIDKey, stage.ID,
	)
	return nil
}

// resolveTarget reads target as an actor ID first and as a role token
// otherwise
func (uc *WorkflowUseCase) resolveTarget(ctx context.Context, target string, project *model.Project) (model.Assignee, error) {
	if uc.directory != nil {
		if a, err := uc.directory.Actor(ctx, types.ActorID(target)); err == nil {
			return model.NewIndividualAssignee(a.ID, a.Name), nil
		}
	}
	return uc.resolver.Resolve(ctx, target, project)
}

// Reassign hands an escalated stage to target, an actor ID or role token.
// Only manual reviewers may reassign.
func (uc *WorkflowUseCase) Reassign(ctx context.Context, projectID types.ProjectID, stageID types.StageID, actor types.ActorID, target string) (*model.Workflow, error) {
	if target == "" {
		return nil, goerr.Wrap(ErrCommentRequired, "reassignment target is required",
			goerr.V(ProjectIDKey, projectID),
			goerr.V(StageIDKey, stageID))
	}

	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		wf := tx.wf
		if wf.IsRejected() {
			return goerr.Wrap(ErrWorkflowRejected, "workflow is rejected", goerr.V(ProjectIDKey, projectID))
		}
		stage, _ := wf.StageByID(stageID)
		if stage == nil {
			return goerr.Wrap(ErrStageNotFound, "stage not found",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID))
		}
		if stage.Status != types.StageStatusEscalated {
			return goerr.Wrap(ErrInvalidStageState, "only an escalated stage can be reassigned",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(StageIDKey, stageID),
				goerr.V("status", stage.Status))
		}

		reviewers, err := uc.resolver.Resolve(ctx, model.ManualReviewRoleToken, &wf.Project)
		if err != nil {
			return err
		}
		if !reviewers.Contains(actor) {
			return goerr.Wrap(ErrNotAuthorized, "actor may not reassign stages",
				goerr.V(StageIDKey, stageID),
				goerr.V(ActorIDKey, actor))
		}

		assignee, err := uc.resolveTarget(ctx, target, &wf.Project)
		if err != nil {
			return err
		}
		if assignee.Kind == model.AssigneeKindUnknown {
			return goerr.Wrap(ErrAssigneeNotResolved, "reassignment target has no mapping",
				goerr.V(StageIDKey, stageID),
				goerr.V("target", target))
		}

		previous := stage.Assignee
		wf.Escalations = append(wf.Escalations, model.EscalationRecord{
			StageID:   stage.ID,
			StageKind: stage.Kind,
			At:        tx.now,
			From:      previous,
			Target:    &assignee,
			Reason:    fmt.Sprintf("reassigned by %s", actor),
		})
		uc.reassignStage(tx, stage, assignee)

		uc.notify(tx, event{
			typ:        types.NotificationTypeApprovalRequest,
			stage:      stage,
			recipients: assignee.Recipients(),
			title:      fmt.Sprintf("Approval requested: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q was reassigned to you.", stage.Kind.DisplayName(), wf.Project.Title),
			actions:    approvalActions(stage),
		})
		uc.notify(tx, event{
			typ:        types.NotificationTypeReassigned,
			stage:      stage,
			recipients: previous.Recipients(),
			title:      fmt.Sprintf("Reassigned: %s", wf.Project.Title),
			message:    fmt.Sprintf("%s of %q was reassigned to %s.", stage.Kind.DisplayName(), wf.Project.Title, assignee.Name),
			actions:    infoActions(),
		})

		logging.From(ctx).Info("stage reassigned",
			ProjectIDKey, projectID,
			StageIDKey, stageID,
			ActorIDKey, actor,
			"to", assignee.ID,
		)
		return nil
	})
}

// SelectMember adds a provisional member to the project's member selection.
// Only the proposer selects members.
func (uc *WorkflowUseCase) SelectMember(ctx context.Context, projectID types.ProjectID, actor, member types.ActorID) (*model.Workflow, error) {
	if member == "" {
		return nil, goerr.New("member ID is required", goerr.V(ProjectIDKey, projectID))
	}

	return uc.update(ctx, projectID, func(ctx context.Context, tx *transition) error {
		wf := tx.wf
		if actor != wf.Project.ProposerID {
			return goerr.Wrap(ErrNotAuthorized, "only the proposer selects members",
				goerr.V(ProjectIDKey, projectID),
				goerr.V(ActorIDKey, actor))
		}
		if wf.MemberSelection != nil && !wf.MemberSelection.IsActive() {
			return goerr.Wrap(ErrNoActiveSelection, "member selection is cancelled", goerr.V(ProjectIDKey, projectID))
		}
		if wf.IsRejected() {
			return goerr.Wrap(ErrWorkflowRejected, "workflow is rejected", goerr.V(ProjectIDKey, projectID))
		}

		started := uc.openSelection(tx)
		if started {
			uc.announceSelection(tx)
		}
		if containsActor(wf.MemberSelection.Provisional, member) {
			tx.unchanged = !started
			return nil
		}
		wf.MemberSelection.Provisional = append(wf.MemberSelection.Provisional, member)
		return nil
	})
}

// firable reloads the timer's stage and reports whether the timer still
// applies to it
func firable(wf *model.Workflow, stageID types.StageID) *model.Stage {
	if wf.IsRejected() {
		return nil
	}
	stage, _ := wf.StageByID(stageID)
	if stage == nil || stage.Status != types.StageStatusInProgress {
		return nil
	}
	return stage
}

func (uc *WorkflowUseCase) fire(ctx context.Context, projectID types.ProjectID, stageID types.StageID, kind types.TimerKind, fn func(ctx context.Context, tx *transition, stage *model.Stage) bool) error {
	unlock := uc.locks.Lock(string(projectID))
	defer unlock()

	logger := logging.From(ctx).With(ProjectIDKey, projectID, StageIDKey, stageID, "timer", kind)

	for attempt := 1; ; attempt++ {
		wf, err := uc.load(ctx, projectID)
		if err != nil {
			if errors.Is(err, ErrWorkflowNotFound) {
				logger.Debug("timer fired for a missing workflow")
				return nil
			}
			return err
		}

		stage := firable(wf, stageID)
		if stage == nil {
			logger.Debug("timer fired for a resolved stage")
			return nil
		}

		tx := uc.begin(wf)
		if !fn(ctx, tx, stage) {
			logger.Debug("timer is stale")
			return nil
		}

		err = uc.commit(ctx, tx)
		if !retryable(err, attempt) {
			return err
		}
		logger.Warn("workflow was saved concurrently, retrying", "attempt", attempt)
	}
}

// FireEscalation escalates the stage if it is still in progress and its
// escalation date is at
func (uc *WorkflowUseCase) FireEscalation(ctx context.Context, projectID types.ProjectID, stageID types.StageID, at time.Time) error {
	var escalateErr error
	err := uc.fire(ctx, projectID, stageID, types.TimerKindEscalation, func(ctx context.Context, tx *transition, stage *model.Stage) bool {
		if stage.EscalationAt == nil || !stage.EscalationAt.Equal(at) {
			return false
		}
		if err := uc.escalate(ctx, tx, stage, "escalation date passed"); err != nil {
			escalateErr = err
			return false
		}
		return true
	})
	if escalateErr != nil {
		return escalateErr
	}
	return err
}

// FireOverdue reminds the assignee once that the stage is past its due date
func (uc *WorkflowUseCase) FireOverdue(ctx context.Context, projectID types.ProjectID, stageID types.StageID, at time.Time) error {
	return uc.fire(ctx, projectID, stageID, types.TimerKindOverdue, func(ctx context.Context, tx *transition, stage *model.Stage) bool {
		if stage.DueAt == nil || !stage.DueAt.Equal(at) || stage.OverdueNotified {
			return false
		}

		stage.OverdueNotified = true

		var recipients []types.ActorID
		for _, id := range stage.Assignee.Recipients() {
			if !stage.HasApproved(id) {
				recipients = append(recipients, id)
			}
		}
		uc.notify(tx, event{
			typ:        types.NotificationTypeOverdue,
			stage:      stage,
			recipients: recipients,
			title:      fmt.Sprintf("Overdue: %s", tx.wf.Project.Title),
			message:    fmt.Sprintf("%s of %q is past its due date.", stage.Kind.DisplayName(), tx.wf.Project.Title),
			actions:    approvalActions(stage),
		})
		return true
	})
}
