package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrStageNotFound        = errors.New("stage not found")
	ErrNotificationNotFound = errors.New("notification not found")

	// Conflict errors
	ErrWorkflowExists    = errors.New("workflow already exists for the project")
	ErrInvalidStageState = errors.New("stage is not in a state that allows the operation")
	ErrWorkflowRejected  = errors.New("workflow is rejected")
	ErrNoActiveSelection = errors.New("member selection is not active")

	// Access control errors
	ErrNotAuthorized             = errors.New("actor is not authorized for the stage")
	ErrSpecialCategoryRestricted = errors.New("special category is restricted to the governing department")

	// Request errors
	ErrInvalidProject      = errors.New("invalid project")
	ErrCommentRequired     = errors.New("comment is required")
	ErrNotOverrideStage    = errors.New("stage does not allow emergency override")
	ErrNotMultiApprover    = errors.New("stage is not a multi-approver stage")
	ErrMultiApproverStage  = errors.New("multi-approver stage is completed by votes")
	ErrUnknownAction       = errors.New("notification has no such action")
	ErrAssigneeNotResolved = errors.New("reassignment target could not be resolved")
)

// Context keys for error values
const (
	ProjectIDKey      = "project_id"
	StageIDKey        = "stage_id"
	ActorIDKey        = "actor_id"
	NotificationIDKey = "notification_id"
)
