package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/usecase"
)

func TestComputeUrgency(t *testing.T) {
	now := baseTime
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	testCases := []struct {
		name     string
		typ      types.NotificationType
		category types.Category
		dueAt    *time.Time
		expected types.Urgency
	}{
		{"escalation is always urgent", types.NotificationTypeEscalation, types.CategoryStrategic, at(30 * day), types.UrgencyUrgent},
		{"overdue is always urgent", types.NotificationTypeOverdue, types.CategoryOperational, nil, types.UrgencyUrgent},
		{"override is always urgent", types.NotificationTypeEmergencyOverride, "", nil, types.UrgencyUrgent},
		{"no due date", types.NotificationTypeApprovalRequest, types.CategoryOperational, nil, types.UrgencyNormal},
		{"operational 24h out is high", types.NotificationTypeApprovalRequest, types.CategoryOperational, at(24 * time.Hour), types.UrgencyHigh},
		{"operational 6h out is urgent", types.NotificationTypeApprovalRequest, types.CategoryOperational, at(6 * time.Hour), types.UrgencyUrgent},
		{"operational 7h out is high", types.NotificationTypeApprovalRequest, types.CategoryOperational, at(7 * time.Hour), types.UrgencyHigh},
		{"operational 25h out is normal", types.NotificationTypeApprovalRequest, types.CategoryOperational, at(25 * time.Hour), types.UrgencyNormal},
		{"communication 48h out is high", types.NotificationTypeApprovalRequest, types.CategoryCommunication, at(48 * time.Hour), types.UrgencyHigh},
		{"innovation 24h out is urgent", types.NotificationTypeApprovalRequest, types.CategoryInnovation, at(24 * time.Hour), types.UrgencyUrgent},
		{"strategic 100h out is high", types.NotificationTypeApprovalRequest, types.CategoryStrategic, at(100 * time.Hour), types.UrgencyHigh},
		{"strategic 200h out is normal", types.NotificationTypeApprovalRequest, types.CategoryStrategic, at(200 * time.Hour), types.UrgencyNormal},
		{"generic 1h out is urgent", types.NotificationTypeApprovalRequest, "", at(time.Hour), types.UrgencyUrgent},
		{"generic 2h out is high", types.NotificationTypeApprovalRequest, "", at(2 * time.Hour), types.UrgencyHigh},
		{"generic 24h out is normal", types.NotificationTypeApprovalRequest, "", at(24 * time.Hour), types.UrgencyNormal},
		{"generic past due is urgent", types.NotificationTypeApprovalRequest, "", at(-time.Hour), types.UrgencyUrgent},
		{"stage completed ignores the due date", types.NotificationTypeStageCompleted, types.CategoryOperational, at(time.Hour), types.UrgencyNormal},
		{"quorum progress ignores the due date", types.NotificationTypeQuorumProgress, "", at(-time.Hour), types.UrgencyNormal},
		{"reassigned ignores the due date", types.NotificationTypeReassigned, types.CategoryStrategic, at(time.Hour), types.UrgencyNormal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Value(t, usecase.ComputeUrgency(tc.typ, tc.category, tc.dueAt, now)).Equal(tc.expected)
		})
	}

	t.Run("operational 24h out goes to in-app and email", func(t *testing.T) {
		u := usecase.ComputeUrgency(types.NotificationTypeApprovalRequest, types.CategoryOperational, at(24*time.Hour), now)
		gt.Value(t, u.Channels()).Equal([]types.Channel{types.ChannelInApp, types.ChannelEmail})
	})
}

func TestNotificationUseCase_Act(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, *model.Workflow, *model.Notification) {
		env := newTestEnv(t)
		wf, err := env.uc.Workflow.Initialize(ctx, newProject("proj-1", types.ScopeTeam))
		gt.NoError(t, err).Required()

		n := findType(env.notificationsOf(t, "bob"), types.NotificationTypeApprovalRequest)
		gt.Value(t, n).NotNil().Required()
		return env, wf, n
	}

	t.Run("approve completes the stage", func(t *testing.T) {
		env, wf, n := setup(t)

		env.clock.Advance(time.Minute)
		acted, err := env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenApprove, "ok")
		gt.NoError(t, err).Required()
		gt.Bool(t, acted.Actioned).True()
		gt.Bool(t, acted.Read).True()
		gt.Value(t, acted.ActionTaken).Equal(types.ActionTokenApprove)
		gt.Value(t, acted.ActionComment).Equal("ok")

		stored, err := env.uc.Workflow.Get(ctx, "proj-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Stages[1].Status).Equal(types.StageStatusCompleted)
		gt.Value(t, stored.Stages[1].ID).Equal(wf.Stages[1].ID)

		again, err := env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenReject, "changed my mind")
		gt.NoError(t, err).Required()
		gt.Value(t, again.ActionTaken).Equal(types.ActionTokenApprove)

		stored, err = env.uc.Workflow.Get(ctx, "proj-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.RejectedAt).Nil()
	})

	t.Run("reject requires a comment", func(t *testing.T) {
		env, _, n := setup(t)

		_, err := env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenReject, "")
		gt.Error(t, err).Is(usecase.ErrCommentRequired)

		acted, err := env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenReject, "no budget")
		gt.NoError(t, err).Required()
		gt.Value(t, acted.ActionTaken).Equal(types.ActionTokenReject)

		stored, err := env.uc.Workflow.Get(ctx, "proj-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.RejectedAt).NotNil()
		gt.Value(t, stored.RejectionReason).Equal("no budget")
	})

	t.Run("view only marks read", func(t *testing.T) {
		env, _, n := setup(t)

		acted, err := env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenView, "")
		gt.NoError(t, err).Required()
		gt.Bool(t, acted.Read).True()
		gt.Bool(t, acted.Actioned).False()

		stored, err := env.uc.Workflow.Get(ctx, "proj-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Stages[1].Status).Equal(types.StageStatusInProgress)
	})

	t.Run("invalid requests", func(t *testing.T) {
		env, _, n := setup(t)

		_, err := env.uc.Notification.Act(ctx, "carol", n.ID, types.ActionTokenApprove, "")
		gt.Error(t, err).Is(usecase.ErrNotAuthorized)

		_, err = env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenVote, "")
		gt.Error(t, err).Is(usecase.ErrUnknownAction)

		_, err = env.uc.Notification.Act(ctx, "bob", "no-such-notification", types.ActionTokenApprove, "")
		gt.Error(t, err).Is(usecase.ErrNotificationNotFound)
	})

	t.Run("engine failure leaves the notification open", func(t *testing.T) {
		env, wf, n := setup(t)

		_, err := env.uc.Workflow.Complete(ctx, "proj-1", wf.Stages[1].ID, "bob", "")
		gt.NoError(t, err).Required()

		_, err = env.uc.Notification.Act(ctx, "bob", n.ID, types.ActionTokenApprove, "")
		gt.Error(t, err).Is(usecase.ErrInvalidStageState)

		stored, err := env.uc.Notification.Get(ctx, "bob", n.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, stored.Actioned).False()
	})
}

func TestNotificationUseCase_ActRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("vote", func(t *testing.T) {
		env := newTestEnv(t)
		wf, err := env.uc.Workflow.Initialize(ctx, newProject("proj-str", types.ScopeStrategic))
		gt.NoError(t, err).Required()

		for _, actor := range []types.ActorID{"gina", "hank"} {
			n := findType(env.notificationsOf(t, actor), types.NotificationTypeApprovalRequest)
			gt.Value(t, n).NotNil().Required()
			_, err := env.uc.Notification.Act(ctx, actor, n.ID, types.ActionTokenVote, "")
			gt.NoError(t, err).Required()
		}

		stored, err := env.uc.Workflow.Get(ctx, "proj-str")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Stages[1].Status).Equal(types.StageStatusCompleted)
		gt.Value(t, stored.Stages[2].ID).Equal(wf.Stages[2].ID)
		gt.Value(t, stored.Stages[2].Status).Equal(types.StageStatusInProgress)

		t.Run("override", func(t *testing.T) {
			n := findType(env.notificationsOf(t, "ivy"), types.NotificationTypeApprovalRequest)
			gt.Value(t, n).NotNil().Required()

			_, err := env.uc.Notification.Act(ctx, "ivy", n.ID, types.ActionTokenOverride, "")
			gt.Error(t, err).Is(usecase.ErrCommentRequired)

			_, err = env.uc.Notification.Act(ctx, "ivy", n.ID, types.ActionTokenOverride, "deadline")
			gt.NoError(t, err).Required()

			stored, err := env.uc.Workflow.Get(ctx, "proj-str")
			gt.NoError(t, err).Required()
			gt.Bool(t, stored.ApprovalCompleted).True()
		})
	})

	t.Run("reassign", func(t *testing.T) {
		env := newTestEnv(t)
		p := newProject("proj-9", types.ScopeTeam)
		p.Department = "d9"
		wf, err := env.uc.Workflow.Initialize(ctx, p)
		gt.NoError(t, err).Required()

		env.clock.Advance(3 * day)
		gt.NoError(t, env.uc.Workflow.FireEscalation(ctx, "proj-9", wf.Stages[1].ID, *wf.Stages[1].EscalationAt)).Required()

		n := findType(env.notificationsOf(t, "erin"), types.NotificationTypeEscalation)
		gt.Value(t, n).NotNil().Required()

		_, err = env.uc.Notification.Act(ctx, "erin", n.ID, types.ActionTokenReassign, "carol")
		gt.NoError(t, err).Required()

		stored, err := env.uc.Workflow.Get(ctx, "proj-9")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Stages[1].Status).Equal(types.StageStatusInProgress)
		gt.Value(t, stored.Stages[1].Assignee.ID).Equal("carol")
	})
}

func TestNotificationUseCase_Inbox(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.uc.Workflow.Initialize(ctx, newProject("proj-1", types.ScopeTeam))
	gt.NoError(t, err).Required()
	env.clock.Advance(time.Hour)
	_, err = env.uc.Workflow.Initialize(ctx, newProject("proj-2", types.ScopeTeam))
	gt.NoError(t, err).Required()

	list := env.notificationsOf(t, "bob")
	gt.Array(t, list).Length(2).Required()
	gt.Value(t, list[0].Metadata.ProjectID).Equal(types.ProjectID("proj-2"))

	count, err := env.uc.Notification.CountUnread(ctx, "bob")
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(2)

	t.Run("mark read is idempotent", func(t *testing.T) {
		n, err := env.uc.Notification.MarkRead(ctx, "bob", list[1].ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, n.Read).True()
		firstReadAt := *n.ReadAt

		env.clock.Advance(time.Minute)
		n, err = env.uc.Notification.MarkRead(ctx, "bob", list[1].ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, n.ReadAt.Equal(firstReadAt)).True()

		_, err = env.uc.Notification.MarkRead(ctx, "carol", list[1].ID)
		gt.Error(t, err).Is(usecase.ErrNotAuthorized)
	})

	t.Run("filters", func(t *testing.T) {
		unread, err := env.uc.Notification.List(ctx, "bob", model.NotificationFilter{UnreadOnly: true})
		gt.NoError(t, err).Required()
		gt.Array(t, unread).Length(1).Required()
		gt.Value(t, unread[0].ID).Equal(list[0].ID)

		byProject, err := env.uc.Notification.List(ctx, "bob", model.NotificationFilter{ProjectID: "proj-1"})
		gt.NoError(t, err).Required()
		gt.Array(t, byProject).Length(1)

		limited, err := env.uc.Notification.List(ctx, "bob", model.NotificationFilter{Limit: 1})
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(1)
	})

	t.Run("mark all read", func(t *testing.T) {
		marked, err := env.uc.Notification.MarkAllRead(ctx, "bob")
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(1)

		count, err := env.uc.Notification.CountUnread(ctx, "bob")
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)
	})

	t.Run("list by project", func(t *testing.T) {
		_, err := env.uc.Workflow.Complete(ctx, "proj-1", list[1].Metadata.StageID, "bob", "")
		gt.NoError(t, err).Required()

		byProject, err := env.uc.Notification.ListByProject(ctx, "proj-1")
		gt.NoError(t, err).Required()
		// approval request for bob, stage completed for alice, approval request for carol
		gt.Array(t, byProject).Length(3)
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	project := newProject("proj-1", types.ScopeTeam)

	t.Run("system token", func(t *testing.T) {
		a, err := usecase.NewResolver(nil).Resolve(ctx, model.RoleSystem, project)
		gt.NoError(t, err).Required()
		gt.Value(t, a.Kind).Equal(model.AssigneeKindSystem)
	})

	t.Run("no directory", func(t *testing.T) {
		a, err := usecase.NewResolver(nil).Resolve(ctx, model.RoleTeamLead, project)
		gt.NoError(t, err).Required()
		gt.Value(t, a.Kind).Equal(model.AssigneeKindUnknown)
	})

	t.Run("directory mapping", func(t *testing.T) {
		r := usecase.NewResolver(newTestDirectory(t))

		a, err := r.Resolve(ctx, model.RoleTeamLead, project)
		gt.NoError(t, err).Required()
		gt.Value(t, a.ID).Equal("bob")

		a, err = r.Resolve(ctx, "unmapped-role", project)
		gt.NoError(t, err).Required()
		gt.Value(t, a.Kind).Equal(model.AssigneeKindUnknown)

		_, err = r.Resolve(ctx, model.RoleLevelPrefix+"x", project)
		gt.Value(t, err).NotNil()
	})
}
