package worker

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/errutil"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// EscalationScheduler arms one-shot overdue and escalation timers for
// in-progress stages and hands them to a TimerHandler when they fire.
// Fire-at times live on the stored stages, so Start re-creates every timer
// from the repository and a periodic rescan picks up anything missed.
//
// Several instances may share one database. Each arms its own timers, and a
// firing that loses the race is replayed or ignored by the handler, since
// workflow saves are version checked.
type EscalationScheduler struct {
	repo     interfaces.Repository
	interval time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	handler interfaces.TimerHandler
	timers  map[timerKey]*timerEntry
	started bool
	stopped bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ interfaces.Scheduler = (*EscalationScheduler)(nil)

type timerKey struct {
	projectID types.ProjectID
	stageID   types.StageID
	kind      types.TimerKind
}

type timerEntry struct {
	at    time.Time
	timer *time.Timer
}

type Option func(*EscalationScheduler)

// WithRescanInterval sets how often active workflows are rescanned. Zero
// disables the rescan; timers are then only re-created on Start.
func WithRescanInterval(d time.Duration) Option {
	return func(s *EscalationScheduler) {
		s.interval = d
	}
}

// WithClock replaces time.Now when computing timer delays
func WithClock(clock func() time.Time) Option {
	return func(s *EscalationScheduler) {
		s.clock = clock
	}
}

// DefaultRescanInterval is used unless WithRescanInterval is given
const DefaultRescanInterval = 10 * time.Minute

// NewEscalationScheduler creates a scheduler. A timer that fires before
// Start is dropped; Start re-creates it from the repository.
func NewEscalationScheduler(repo interfaces.Repository, opts ...Option) *EscalationScheduler {
	s := &EscalationScheduler{
		repo:     repo,
		interval: DefaultRescanInterval,
		clock:    time.Now,
		ctx:      context.Background(),
		timers:   make(map[timerKey]*timerEntry),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sets the handler and re-creates timers in the background
// - Initial rearm and periodic rescan both run in a background goroutine
// - Does not block server startup
func (s *EscalationScheduler) Start(ctx context.Context, handler interfaces.TimerHandler) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return goerr.New("escalation scheduler is already started")
	}
	s.started = true
	s.ctx = ctx
	s.handler = handler
	s.mu.Unlock()

	logging.Default().Info("Escalation scheduler starting",
		"rescan_interval", s.interval.String())

	go s.run(ctx)
	return nil
}

// Stop stops every pending timer and waits for the rescan loop to end.
// Timers armed after Stop are ignored.
func (s *EscalationScheduler) Stop() {
	s.stopOnce.Do(func() {
		logging.Default().Info("Escalation scheduler stopping")

		s.mu.Lock()
		s.stopped = true
		for key, e := range s.timers {
			e.timer.Stop()
			delete(s.timers, key)
		}
		started := s.started
		s.mu.Unlock()

		close(s.stopCh)
		if started {
			<-s.doneCh
		}
		logging.Default().Info("Escalation scheduler stopped")
	})
}

func (s *EscalationScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	if n, err := s.Rearm(ctx); err != nil {
		errutil.Handle(ctx, err, "initial timer rearm failed (will retry next interval)")
	} else {
		logging.Default().Info("Escalation timers rearmed", "count", n)
	}

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if _, err := s.Rearm(ctx); err != nil {
				errutil.Handle(ctx, err, "timer rescan failed (will retry next interval)")
			}

		case <-s.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Escalation scheduler context cancelled")
			return
		}
	}
}

// Rearm arms the timers of every in-progress stage of the active workflows
// and returns how many were armed
func (s *EscalationScheduler) Rearm(ctx context.Context) (int, error) {
	workflows, err := s.repo.Workflow().ListActive(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list active workflows")
	}

	armed := 0
	for _, wf := range workflows {
		if wf.IsRejected() {
			continue
		}
		for _, stage := range wf.Stages {
			if stage.Status != types.StageStatusInProgress {
				continue
			}
			if stage.DueAt != nil && !stage.OverdueNotified {
				s.Arm(wf.ProjectID, stage.ID, types.TimerKindOverdue, *stage.DueAt)
				armed++
			}
			if stage.EscalationAt != nil {
				s.Arm(wf.ProjectID, stage.ID, types.TimerKindEscalation, *stage.EscalationAt)
				armed++
			}
		}
	}
	return armed, nil
}

// Arm schedules a timer, replacing the one with the same key. A fire-at in
// the past fires immediately.
func (s *EscalationScheduler) Arm(projectID types.ProjectID, stageID types.StageID, kind types.TimerKind, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	key := timerKey{projectID: projectID, stageID: stageID, kind: kind}
	if e, ok := s.timers[key]; ok {
		if e.at.Equal(at) {
			return
		}
		e.timer.Stop()
	}

	delay := at.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}

	e := &timerEntry{at: at}
	e.timer = time.AfterFunc(delay, func() { s.fire(key, e) })
	s.timers[key] = e
}

// Cancel stops both timers of a stage
func (s *EscalationScheduler) Cancel(projectID types.ProjectID, stageID types.StageID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range []types.TimerKind{types.TimerKindOverdue, types.TimerKindEscalation} {
		key := timerKey{projectID: projectID, stageID: stageID, kind: kind}
		if e, ok := s.timers[key]; ok {
			e.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// CancelWorkflow stops every timer of a project
func (s *EscalationScheduler) CancelWorkflow(projectID types.ProjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.timers {
		if key.projectID == projectID {
			e.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// Pending returns the number of armed timers
func (s *EscalationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *EscalationScheduler) fire(key timerKey, e *timerEntry) {
	s.mu.Lock()
	if s.timers[key] != e {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	ctx, handler := s.ctx, s.handler
	s.mu.Unlock()

	logger := logging.From(ctx).With(
		"project_id", key.projectID,
		"stage_id", key.stageID,
		"timer", key.kind,
	)
	if handler == nil {
		logger.Warn("timer fired before the scheduler was started")
		return
	}

	var err error
	switch key.kind {
	case types.TimerKindOverdue:
		err = handler.FireOverdue(ctx, key.projectID, key.stageID, e.at)
	case types.TimerKindEscalation:
		err = handler.FireEscalation(ctx, key.projectID, key.stageID, e.at)
	default:
		err = goerr.New("unknown timer kind")
	}
	if err != nil {
		errutil.Handle(ctx, goerr.Wrap(err, "timer handler failed",
			goerr.V("project_id", key.projectID),
			goerr.V("stage_id", key.stageID),
			goerr.V("timer", key.kind)), "deferred stage task failed")
		return
	}
	logger.Debug("timer fired")
}
