package interfaces

import "github.com/m-mizutani/goerr/v2"

// ErrNotFound is wrapped by every repository backend when a record does not
// exist
var ErrNotFound = goerr.New("not found")

// ErrConflict is wrapped when a write is based on a stale copy of a record
var ErrConflict = goerr.New("conflict")

// Repository defines the interface for data persistence
type Repository interface {
	Workflow() WorkflowRepository
	Notification() NotificationRepository

	Close() error
}
