package model

import (
	"time"

	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Workflow is one project's approval lifecycle. There is exactly one per
// project and it is never deleted.
type Workflow struct {
	ProjectID         types.ProjectID    `firestore:"project_id" json:"project_id"`
	Project           Project            `firestore:"project" json:"project"`
	Stages            []*Stage           `firestore:"stages" json:"stages"`
	CurrentStageIndex int                `firestore:"current_stage_index" json:"current_stage_index"`
	NotificationLogs  []NotificationLog  `firestore:"notification_logs" json:"notification_logs"`
	Escalations       []EscalationRecord `firestore:"escalations" json:"escalations"`
	MemberSelection   *MemberSelection   `firestore:"member_selection" json:"member_selection,omitempty"`

	ApprovalCompleted   bool       `firestore:"approval_completed" json:"approval_completed"`
	ApprovalCompletedAt *time.Time `firestore:"approval_completed_at" json:"approval_completed_at,omitempty"`

	RejectedAt      *time.Time    `firestore:"rejected_at" json:"rejected_at,omitempty"`
	RejectedBy      types.ActorID `firestore:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason string        `firestore:"rejection_reason" json:"rejection_reason,omitempty"`

	// Active is false once the workflow is approved or rejected. It is stored
	// so that active workflows can be scanned without decoding every stage.
	Active bool `firestore:"active" json:"active"`

	// Version is incremented on every save and guards concurrent writers
	Version int64 `firestore:"version" json:"version"`

	CreatedAt time.Time `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}

// Stage is one approval step of a workflow
type Stage struct {
	ID                types.StageID     `firestore:"id" json:"id"`
	Kind              types.StageKind   `firestore:"kind" json:"kind"`
	RoleToken         string            `firestore:"role_token" json:"role_token"`
	Assignee          Assignee          `firestore:"assignee" json:"assignee"`
	RequiredLevel     int               `firestore:"required_level" json:"required_level,omitempty"`
	Status            types.StageStatus `firestore:"status" json:"status"`
	AutoComplete      bool              `firestore:"auto_complete" json:"auto_complete"`
	MultiApprover     bool              `firestore:"multi_approver" json:"multi_approver"`
	EmergencyOverride bool              `firestore:"emergency_override" json:"emergency_override"`
	OverrideAuthority *Assignee         `firestore:"override_authority" json:"override_authority,omitempty"`

	CreatedAt    time.Time     `firestore:"created_at" json:"created_at"`
	StartedAt    *time.Time    `firestore:"started_at" json:"started_at,omitempty"`
	DueAt        *time.Time    `firestore:"due_at" json:"due_at,omitempty"`
	EscalationAt *time.Time    `firestore:"escalation_at" json:"escalation_at,omitempty"`
	CompletedAt  *time.Time    `firestore:"completed_at" json:"completed_at,omitempty"`
	CompletedBy  types.ActorID `firestore:"completed_by" json:"completed_by,omitempty"`
	Comment      string        `firestore:"comment" json:"comment,omitempty"`

	// OverdueNotified prevents a second overdue reminder for the same due date
	OverdueNotified bool `firestore:"overdue_notified" json:"overdue_notified"`

	Approvals         []types.ActorID `firestore:"approvals" json:"approvals,omitempty"`
	RequiredApprovers []types.ActorID `firestore:"required_approvers" json:"required_approvers,omitempty"`
}

// EscalationRecord is an append-only log entry of a stage escalation
type EscalationRecord struct {
	StageID        types.StageID   `firestore:"stage_id" json:"stage_id"`
	StageKind      types.StageKind `firestore:"stage_kind" json:"stage_kind"`
	At             time.Time       `firestore:"at" json:"at"`
	From           Assignee        `firestore:"from" json:"from"`
	Target         *Assignee       `firestore:"target" json:"target,omitempty"`
	Reason         string          `firestore:"reason" json:"reason"`
	AutoReassigned bool            `firestore:"auto_reassigned" json:"auto_reassigned"`
}

// NotificationLog records one dispatched notification on the workflow
type NotificationLog struct {
	NotificationID types.NotificationID   `firestore:"notification_id" json:"notification_id"`
	StageID        types.StageID          `firestore:"stage_id" json:"stage_id,omitempty"`
	RecipientID    types.ActorID          `firestore:"recipient_id" json:"recipient_id"`
	Type           types.NotificationType `firestore:"type" json:"type"`
	Urgency        types.Urgency          `firestore:"urgency" json:"urgency"`
	Channels       []types.Channel        `firestore:"channels" json:"channels"`
	At             time.Time              `firestore:"at" json:"at"`
}

// MemberSelection tracks the member selection that follows approval
type MemberSelection struct {
	StartedAt   time.Time       `firestore:"started_at" json:"started_at"`
	Provisional []types.ActorID `firestore:"provisional" json:"provisional"`
	CancelledAt *time.Time      `firestore:"cancelled_at" json:"cancelled_at,omitempty"`
}

// IsActive reports whether the selection is in progress
func (m *MemberSelection) IsActive() bool {
	return m != nil && m.CancelledAt == nil
}

// IsRejected reports whether the workflow has been rejected
func (w *Workflow) IsRejected() bool {
	return w.RejectedAt != nil
}

// CurrentStage returns the stage at CurrentStageIndex, or nil when the index
// is out of range
func (w *Workflow) CurrentStage() *Stage {
	if w.CurrentStageIndex < 0 || w.CurrentStageIndex >= len(w.Stages) {
		return nil
	}
	return w.Stages[w.CurrentStageIndex]
}

// StageByID returns the stage with id and its index, or nil and -1
func (w *Workflow) StageByID(id types.StageID) (*Stage, int) {
	for i, s := range w.Stages {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// InProgressCount returns the number of stages in IN_PROGRESS
func (w *Workflow) InProgressCount() int {
	n := 0
	for _, s := range w.Stages {
		if s.Status == types.StageStatusInProgress {
			n++
		}
	}
	return n
}

// HasApproved reports whether actor already voted on the stage
func (s *Stage) HasApproved(actor types.ActorID) bool {
	for _, a := range s.Approvals {
		if a == actor {
			return true
		}
	}
	return false
}

// QuorumSize returns the number of distinct approvals needed to complete a
// multi-approver stage
func (s *Stage) QuorumSize() int {
	if len(s.RequiredApprovers) == 0 {
		return 1
	}
	return len(s.RequiredApprovers)
}

// QuorumReached reports whether the approvals meet the quorum
func (s *Stage) QuorumReached() bool {
	return len(s.Approvals) >= s.QuorumSize()
}
