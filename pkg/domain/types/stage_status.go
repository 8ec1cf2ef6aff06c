package types

import "fmt"

// StageStatus represents the lifecycle state of a workflow stage
type StageStatus string

const (
	StageStatusPending    StageStatus = "PENDING"
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusCompleted  StageStatus = "COMPLETED"
	StageStatusRejected   StageStatus = "REJECTED"
	StageStatusEscalated  StageStatus = "ESCALATED"
)

// AllStageStatuses returns all valid stage statuses
func AllStageStatuses() []StageStatus {
	return []StageStatus{
		StageStatusPending,
		StageStatusInProgress,
		StageStatusCompleted,
		StageStatusRejected,
		StageStatusEscalated,
	}
}

// IsValid checks if the stage status is valid
func (s StageStatus) IsValid() bool {
	switch s {
	case StageStatusPending,
		StageStatusInProgress,
		StageStatusCompleted,
		StageStatusRejected,
		StageStatusEscalated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can leave this status
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusRejected
}

// CanTransitionTo reports whether moving from s to next is allowed.
// ESCALATED returns to IN_PROGRESS only through reassignment.
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	switch s {
	case StageStatusPending:
		return next == StageStatusInProgress
	case StageStatusInProgress:
		return next == StageStatusCompleted ||
			next == StageStatusRejected ||
			next == StageStatusEscalated
	case StageStatusEscalated:
		return next == StageStatusInProgress
	default:
		return false
	}
}

// String returns the string representation of the stage status
func (s StageStatus) String() string {
	return string(s)
}

// ParseStageStatus parses a string into a StageStatus
func ParseStageStatus(s string) (StageStatus, error) {
	status := StageStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid stage status: %s", s)
	}
	return status, nil
}
