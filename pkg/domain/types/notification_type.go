package types

import "fmt"

// NotificationType tags what an actionable notification is about
type NotificationType string

const (
	NotificationTypeApprovalRequest          NotificationType = "approval_request"
	NotificationTypeStageCompleted           NotificationType = "stage_completed"
	NotificationTypeWorkflowApproved         NotificationType = "workflow_approved"
	NotificationTypeWorkflowRejected         NotificationType = "workflow_rejected"
	NotificationTypeEscalation               NotificationType = "escalation"
	NotificationTypeOverdue                  NotificationType = "overdue"
	NotificationTypeEmergencyOverride        NotificationType = "emergency_override"
	NotificationTypeQuorumProgress           NotificationType = "quorum_progress"
	NotificationTypeMemberSelectionStarted   NotificationType = "member_selection_started"
	NotificationTypeMemberSelectionCancelled NotificationType = "member_selection_cancelled"
	NotificationTypeReassigned               NotificationType = "reassigned"
)

// AllNotificationTypes returns all notification types
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationTypeApprovalRequest,
		NotificationTypeStageCompleted,
		NotificationTypeWorkflowApproved,
		NotificationTypeWorkflowRejected,
		NotificationTypeEscalation,
		NotificationTypeOverdue,
		NotificationTypeEmergencyOverride,
		NotificationTypeQuorumProgress,
		NotificationTypeMemberSelectionStarted,
		NotificationTypeMemberSelectionCancelled,
		NotificationTypeReassigned,
	}
}

// IsValid checks if the notification type is valid
func (t NotificationType) IsValid() bool {
	for _, nt := range AllNotificationTypes() {
		if t == nt {
			return true
		}
	}
	return false
}

// FixedUrgency returns the urgency forced by the type regardless of the
// deadline. ok is false when the urgency depends on the deadline.
func (t NotificationType) FixedUrgency() (Urgency, bool) {
	switch t {
	case NotificationTypeEmergencyOverride,
		NotificationTypeEscalation,
		NotificationTypeOverdue:
		return UrgencyUrgent, true
	default:
		return "", false
	}
}

// TracksDeadline reports whether the notification concerns a stage deadline
// that is still open for the recipient
func (t NotificationType) TracksDeadline() bool {
	switch t {
	case NotificationTypeApprovalRequest,
		NotificationTypeEscalation,
		NotificationTypeOverdue:
		return true
	default:
		return false
	}
}

func (t NotificationType) String() string {
	return string(t)
}

// ParseNotificationType parses a string into a NotificationType
func ParseNotificationType(s string) (NotificationType, error) {
	t := NotificationType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid notification type: %s", s)
	}
	return t, nil
}

// ActionKind is the visual weight of a notification action
type ActionKind string

const (
	ActionKindPrimary   ActionKind = "primary"
	ActionKindSecondary ActionKind = "secondary"
	ActionKindDanger    ActionKind = "danger"
)

// ActionToken names what executing a notification action does
type ActionToken string

const (
	ActionTokenApprove  ActionToken = "approve"
	ActionTokenReject   ActionToken = "reject"
	ActionTokenVote     ActionToken = "vote"
	ActionTokenOverride ActionToken = "override"
	ActionTokenReassign ActionToken = "reassign"
	ActionTokenView     ActionToken = "view"
)

func (t ActionToken) String() string {
	return string(t)
}
