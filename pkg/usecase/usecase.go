package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/async"
	"github.com/secmon-lab/ringi/pkg/utils/keylock"
)

type UseCases struct {
	repo interfaces.Repository

	directory           interfaces.Directory
	transports          map[types.Channel]interfaces.Transport
	archiver            interfaces.Archiver
	scheduler           interfaces.Scheduler
	governingDepartment string
	clock               func() time.Time
	syncDelivery        bool
	tasks               *async.Group

	Workflow     *WorkflowUseCase
	Notification *NotificationUseCase
}

type Option func(*UseCases)

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(uc *UseCases) {
		uc.clock = clock
	}
}

// WithDirectory sets the actor directory used to resolve role tokens and
// contact addresses
func WithDirectory(dir interfaces.Directory) Option {
	return func(uc *UseCases) {
		uc.directory = dir
	}
}

// WithTransports registers delivery transports. A later transport for the
// same channel replaces an earlier one.
func WithTransports(transports ...interfaces.Transport) Option {
	return func(uc *UseCases) {
		for _, t := range transports {
			uc.transports[t.Channel()] = t
		}
	}
}

// WithArchiver stores a snapshot of every workflow that is approved or
// rejected
func WithArchiver(archiver interfaces.Archiver) Option {
	return func(uc *UseCases) {
		uc.archiver = archiver
	}
}

// WithScheduler arms overdue and escalation tasks for in-progress stages
func WithScheduler(scheduler interfaces.Scheduler) Option {
	return func(uc *UseCases) {
		uc.scheduler = scheduler
	}
}

// WithGoverningDepartment sets the department whose members may propose
// special category projects
func WithGoverningDepartment(department string) Option {
	return func(uc *UseCases) {
		uc.governingDepartment = department
	}
}

// WithSyncDelivery delivers notifications and archives snapshots before the
// operation returns instead of in the background
func WithSyncDelivery() Option {
	return func(uc *UseCases) {
		uc.syncDelivery = true
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:       repo,
		transports: make(map[types.Channel]interfaces.Transport),
		clock:      time.Now,
		tasks:      &async.Group{},
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Notification = &NotificationUseCase{
		repo:         repo,
		directory:    uc.directory,
		transports:   uc.transports,
		clock:        uc.clock,
		syncDelivery: uc.syncDelivery,
		tasks:        uc.tasks,
	}
	uc.Workflow = &WorkflowUseCase{
		repo:                repo,
		resolver:            NewResolver(uc.directory),
		directory:           uc.directory,
		notifier:            uc.Notification,
		archiver:            uc.archiver,
		scheduler:           uc.scheduler,
		governingDepartment: uc.governingDepartment,
		clock:               uc.clock,
		syncDelivery:        uc.syncDelivery,
		tasks:               uc.tasks,
		locks:               keylock.New(),
	}
	uc.Notification.engine = uc.Workflow

	return uc
}

// Wait blocks until background deliveries and archive uploads have finished
// or ctx is done
func (uc *UseCases) Wait(ctx context.Context) error {
	return uc.tasks.Wait(ctx)
}
