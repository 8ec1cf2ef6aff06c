package types

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ProjectID identifies a project and, one-to-one, its workflow
type ProjectID string

// Validate checks the project ID format
func (id ProjectID) Validate() error {
	if id == "" {
		return goerr.New("project ID cannot be empty")
	}
	if !idPattern.MatchString(string(id)) {
		return goerr.New("project ID must be lowercase alphanumeric with hyphens", goerr.V("id", id))
	}
	return nil
}

func (id ProjectID) String() string {
	return string(id)
}

// ActorID identifies a person or system account
type ActorID string

// ActorIDMultipleApprovers is the synthetic actor recorded when a stage is
// completed by reaching quorum
const ActorIDMultipleApprovers ActorID = "multiple-approvers"

// ActorIDSystem is the automated actor that completes auto-complete stages
// and performs escalations
const ActorIDSystem ActorID = "system"

func (id ActorID) String() string {
	return string(id)
}

// StageID identifies a stage
type StageID string

// NewStageID returns a new random StageID
func NewStageID() StageID {
	return StageID(uuid.NewString())
}

func (id StageID) String() string {
	return string(id)
}

// NotificationID identifies an actionable notification
type NotificationID string

// NewNotificationID returns a new random NotificationID
func NewNotificationID() NotificationID {
	return NotificationID(uuid.NewString())
}

func (id NotificationID) String() string {
	return string(id)
}
