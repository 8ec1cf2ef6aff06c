package memory

import (
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = interfaces.ErrNotFound

// ErrConflict is returned when a write is based on a stale workflow
var ErrConflict = interfaces.ErrConflict

// Memory keeps workflows and notifications in process memory
type Memory struct {
	workflow     *workflowRepository
	notification *notificationRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		workflow:     newWorkflowRepository(),
		notification: newNotificationRepository(),
	}
}

func (m *Memory) Workflow() interfaces.WorkflowRepository {
	return m.workflow
}

func (m *Memory) Notification() interfaces.NotificationRepository {
	return m.notification
}

func (m *Memory) Close() error {
	return nil
}
