package types

// TimerKind distinguishes the deferred tasks armed for an in-progress stage
type TimerKind string

const (
	// TimerKindOverdue sends a reminder when the due date passes
	TimerKindOverdue TimerKind = "overdue"
	// TimerKindEscalation escalates the stage when the escalation date passes
	TimerKindEscalation TimerKind = "escalation"
)

func (k TimerKind) String() string {
	return string(k)
}
