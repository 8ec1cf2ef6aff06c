package interfaces

import (
	"context"

	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Transport delivers a rendered notification on one channel
type Transport interface {
	Channel() types.Channel
	Send(ctx context.Context, address string, n *model.Notification) error
}

// Archiver keeps a snapshot of a workflow that reached a terminal state
type Archiver interface {
	Archive(ctx context.Context, wf *model.Workflow) error
}
