package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Scheduler runs one-shot deferred tasks keyed by (project, stage, kind).
// Arming an existing key replaces the previous task.
type Scheduler interface {
	Arm(projectID types.ProjectID, stageID types.StageID, kind types.TimerKind, at time.Time)
	Cancel(projectID types.ProjectID, stageID types.StageID)
	CancelWorkflow(projectID types.ProjectID)
}

// TimerHandler is called back when a deferred task fires. at is the time the
// task was armed for; handlers ignore firings whose stage moved on since.
type TimerHandler interface {
	FireOverdue(ctx context.Context, projectID types.ProjectID, stageID types.StageID, at time.Time) error
	FireEscalation(ctx context.Context, projectID types.ProjectID, stageID types.StageID, at time.Time) error
}
