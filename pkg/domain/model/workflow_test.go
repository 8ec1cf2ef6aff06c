package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

func TestWorkflowStages(t *testing.T) {
	wf := &model.Workflow{
		Stages: []*model.Stage{
			{ID: "s0", Status: types.StageStatusCompleted},
			{ID: "s1", Status: types.StageStatusInProgress},
			{ID: "s2", Status: types.StageStatusPending},
		},
		CurrentStageIndex: 1,
	}

	gt.Value(t, wf.CurrentStage().ID).Equal(types.StageID("s1"))
	gt.Value(t, wf.InProgressCount()).Equal(1)

	s, idx := wf.StageByID("s2")
	gt.Value(t, s).NotNil()
	gt.Value(t, idx).Equal(2)

	s, idx = wf.StageByID("missing")
	gt.Value(t, s == nil).Equal(true)
	gt.Value(t, idx).Equal(-1)

	wf.CurrentStageIndex = 3
	gt.Value(t, wf.CurrentStage() == nil).Equal(true)
	gt.Bool(t, wf.IsRejected()).False()
}

func TestStageQuorum(t *testing.T) {
	t.Run("single approver", func(t *testing.T) {
		s := &model.Stage{}
		gt.Value(t, s.QuorumSize()).Equal(1)
		gt.Bool(t, s.QuorumReached()).False()
		s.Approvals = []types.ActorID{"bob"}
		gt.Bool(t, s.QuorumReached()).True()
	})

	t.Run("required approvers", func(t *testing.T) {
		s := &model.Stage{RequiredApprovers: []types.ActorID{"a", "b", "c"}}
		s.Approvals = []types.ActorID{"a", "b"}
		gt.Value(t, s.QuorumSize()).Equal(3)
		gt.Bool(t, s.QuorumReached()).False()
		gt.Bool(t, s.HasApproved("a")).True()
		gt.Bool(t, s.HasApproved("c")).False()
	})
}

func TestMemberSelectionIsActive(t *testing.T) {
	var none *model.MemberSelection
	gt.Bool(t, none.IsActive()).False()
	gt.Bool(t, (&model.MemberSelection{}).IsActive()).True()
}

func TestAssignee(t *testing.T) {
	members := []types.ActorID{"a", "b"}
	group := model.NewGroupAssignee("board", "Board", members)
	members[0] = "z"
	gt.Bool(t, group.Contains("a")).True()
	gt.Value(t, group.Recipients()).Equal([]types.ActorID{"a", "b"})

	gt.Array(t, model.SystemAssignee().Recipients()).Length(0)
	gt.Array(t, model.UnknownAssignee("board").Recipients()).Length(0)
	gt.Bool(t, model.Assignee{}.IsZero()).True()
	gt.Bool(t, model.NewIndividualAssignee("bob", "Bob").Contains("bob")).True()
}

func TestNotificationFilterMatch(t *testing.T) {
	n := &model.Notification{Type: types.NotificationTypeOverdue, Read: true}
	n.Metadata.ProjectID = "proj-1"

	gt.Bool(t, model.NotificationFilter{}.Match(n)).True()
	gt.Bool(t, model.NotificationFilter{UnreadOnly: true}.Match(n)).False()
	gt.Bool(t, model.NotificationFilter{Type: types.NotificationTypeEscalation}.Match(n)).False()
	gt.Bool(t, model.NotificationFilter{ProjectID: "proj-1"}.Match(n)).True()
	gt.Bool(t, model.NotificationFilter{ProjectID: "proj-2"}.Match(n)).False()
}
