package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/async"
	"github.com/secmon-lab/ringi/pkg/utils/errutil"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// NotificationUseCase renders workflow events into actionable notifications,
// delivers them and serves the recipients' inboxes
type NotificationUseCase struct {
	repo         interfaces.Repository
	directory    interfaces.Directory
	transports   map[types.Channel]interfaces.Transport
	clock        func() time.Time
	syncDelivery bool
	tasks        *async.Group

	engine *WorkflowUseCase
}

// Generic thresholds for projects without a category
const (
	genericUrgentWithin = 2 * time.Hour
	genericHighWithin   = 24 * time.Hour
)

// ComputeUrgency derives the urgency of a notification. Escalations,
// overdue reminders and emergency overrides are always urgent. Informational
// types are normal. Otherwise the time left until dueAt is compared with the
// category thresholds, both inclusive, or with the generic thresholds when
// the category is unknown. Without a due date the urgency is normal.
func ComputeUrgency(typ types.NotificationType, category types.Category, dueAt *time.Time, now time.Time) types.Urgency {
	if u, ok := typ.FixedUrgency(); ok {
		return u
	}
	if dueAt == nil || !typ.TracksDeadline() {
		return types.UrgencyNormal
	}

	remaining := dueAt.Sub(now)
	if urgent, high, ok := category.UrgencyThresholds(); ok {
		switch {
		case remaining <= urgent:
			return types.UrgencyUrgent
		case remaining <= high:
			return types.UrgencyHigh
		default:
			return types.UrgencyNormal
		}
	}

	switch {
	case remaining < genericUrgentWithin:
		return types.UrgencyUrgent
	case remaining < genericHighWithin:
		return types.UrgencyHigh
	default:
		return types.UrgencyNormal
	}
}

// event is a workflow occurrence some actors must hear about
type event struct {
	typ        types.NotificationType
	stage      *model.Stage
	recipients []types.ActorID
	title      string
	message    string
	actions    []model.NotificationAction
}

func viewAction() model.NotificationAction {
	return model.NotificationAction{Label: "View", Kind: types.ActionKindSecondary, Token: types.ActionTokenView}
}

func rejectAction() model.NotificationAction {
	return model.NotificationAction{Label: "Reject", Kind: types.ActionKindDanger, Token: types.ActionTokenReject, RequiresComment: true}
}

// approvalActions are offered to whoever must decide the stage
func approvalActions(stage *model.Stage) []model.NotificationAction {
	if stage.MultiApprover {
		return []model.NotificationAction{
			{Label: "Vote", Kind: types.ActionKindPrimary, Token: types.ActionTokenVote},
			rejectAction(),
		}
	}
	return []model.NotificationAction{
		{Label: "Approve", Kind: types.ActionKindPrimary, Token: types.ActionTokenApprove},
		rejectAction(),
		viewAction(),
	}
}

func overrideActions() []model.NotificationAction {
	return []model.NotificationAction{
		{Label: "Override", Kind: types.ActionKindDanger, Token: types.ActionTokenOverride, RequiresComment: true},
		viewAction(),
	}
}

func reassignActions() []model.NotificationAction {
	return []model.NotificationAction{
		{Label: "Reassign", Kind: types.ActionKindPrimary, Token: types.ActionTokenReassign, RequiresComment: true},
		viewAction(),
	}
}

func infoActions() []model.NotificationAction {
	return []model.NotificationAction{viewAction()}
}

// prepare renders ev into one notification per distinct recipient and
// appends them to the workflow's notification log
func (uc *NotificationUseCase) prepare(wf *model.Workflow, ev event, now time.Time) []*model.Notification {
	var dueAt *time.Time
	meta := model.NotificationMetadata{
		ProjectID:    wf.ProjectID,
		ProjectTitle: wf.Project.Title,
	}
	if ev.stage != nil {
		if ev.typ.TracksDeadline() {
			dueAt = ev.stage.DueAt
		}
		meta.StageID = ev.stage.ID
		meta.StageKind = ev.stage.Kind
	}

	urgency := ComputeUrgency(ev.typ, wf.Project.Category, dueAt, now)
	channels := urgency.Channels()

	seen := make(map[types.ActorID]bool, len(ev.recipients))
	var result []*model.Notification
	for _, recipient := range ev.recipients {
		if recipient == "" || recipient == types.ActorIDSystem || seen[recipient] {
			continue
		}
		seen[recipient] = true

		n := &model.Notification{
			ID:          types.NewNotificationID(),
			RecipientID: recipient,
			Type:        ev.typ,
			Title:       ev.title,
			Message:     ev.message,
			CreatedAt:   now,
			DueAt:       dueAt,
			Actions:     append([]model.NotificationAction(nil), ev.actions...),
			Metadata:    meta,
			Category:    wf.Project.Category,
			Urgency:     urgency,
			Channels:    append([]types.Channel(nil), channels...),
			Deliveries:  []model.Delivery{},
		}
		result = append(result, n)

		wf.NotificationLogs = append(wf.NotificationLogs, model.NotificationLog{
			NotificationID: n.ID,
			StageID:        meta.StageID,
			RecipientID:    recipient,
			Type:           ev.typ,
			Urgency:        urgency,
			Channels:       append([]types.Channel(nil), channels...),
			At:             now,
		})
	}

	return result
}

// publish stores the notifications and delivers them. It runs after the
// workflow that produced them is saved, so failures are reported and never
// returned.
func (uc *NotificationUseCase) publish(ctx context.Context, notifications []*model.Notification) {
	for _, n := range notifications {
		if err := uc.repo.Notification().Create(ctx, n); err != nil {
			errutil.Handle(ctx, goerr.Wrap(err, "failed to store notification",
				goerr.V(NotificationIDKey, n.ID),
				goerr.V(ProjectIDKey, n.Metadata.ProjectID)), "notification is lost")
			continue
		}

		n := n
		if uc.syncDelivery {
			uc.deliver(ctx, n)
			continue
		}
		uc.tasks.Dispatch(ctx, func(ctx context.Context) error {
			uc.deliver(ctx, n)
			return nil
		})
	}
}

// deliver attempts every selected channel in parallel and records each
// outcome on the notification
func (uc *NotificationUseCase) deliver(ctx context.Context, n *model.Notification) {
	actor := &model.Actor{ID: n.RecipientID}
	if uc.directory != nil {
		found, err := uc.directory.Actor(ctx, n.RecipientID)
		if err != nil {
			logging.From(ctx).Warn("recipient is not in the directory, only in-app delivery is possible",
				"recipient_id", n.RecipientID,
				"error", err,
			)
		} else {
			actor = found
		}
	}

	deliveries := make([]model.Delivery, len(n.Channels))
	var eg errgroup.Group
	for i, ch := range n.Channels {
		eg.Go(func() error {
			deliveries[i] = uc.deliverOne(ctx, actor, ch, n)
			return nil
		})
	}
	_ = eg.Wait()

	for _, d := range deliveries {
		if err := uc.repo.Notification().AppendDelivery(ctx, n.ID, d); err != nil {
			errutil.Handle(ctx, goerr.Wrap(err, "failed to record delivery",
				goerr.V(NotificationIDKey, n.ID),
				goerr.V("channel", d.Channel)), "delivery outcome is lost")
		}
	}
}

func (uc *NotificationUseCase) deliverOne(ctx context.Context, actor *model.Actor, ch types.Channel, n *model.Notification) model.Delivery {
	d := model.Delivery{Channel: ch}

	transport, ok := uc.transports[ch]
	if !ok {
		d.Status = types.DeliveryStatusSkipped
		d.Error = "no transport configured"
		d.At = uc.clock()
		return d
	}

	address := actor.Address(ch)
	if address == "" {
		d.Status = types.DeliveryStatusSkipped
		d.Error = "recipient has no address for the channel"
		d.At = uc.clock()
		return d
	}

	if err := transport.Send(ctx, address, n); err != nil {
		errutil.Handle(ctx, goerr.Wrap(err, "notification delivery failed",
			goerr.V(NotificationIDKey, n.ID),
			goerr.V("channel", ch),
			goerr.V("recipient_id", n.RecipientID)), "delivery failed")
		d.Status = types.DeliveryStatusFailed
		d.Error = err.Error()
		d.At = uc.clock()
		return d
	}

	d.Status = types.DeliveryStatusSent
	d.At = uc.clock()
	return d
}

// get loads a notification owned by actor
func (uc *NotificationUseCase) get(ctx context.Context, actor types.ActorID, id types.NotificationID) (*model.Notification, error) {
	n, err := uc.repo.Notification().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrNotificationNotFound, "notification not found", goerr.V(NotificationIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get notification", goerr.V(NotificationIDKey, id))
	}
	if n.RecipientID != actor {
		return nil, goerr.Wrap(ErrNotAuthorized, "notification belongs to another recipient",
			goerr.V(NotificationIDKey, id),
			goerr.V(ActorIDKey, actor))
	}
	return n, nil
}

// Get returns one of the actor's notifications
func (uc *NotificationUseCase) Get(ctx context.Context, actor types.ActorID, id types.NotificationID) (*model.Notification, error) {
	return uc.get(ctx, actor, id)
}

// List returns the actor's notifications, newest first
func (uc *NotificationUseCase) List(ctx context.Context, actor types.ActorID, filter model.NotificationFilter) ([]*model.Notification, error) {
	list, err := uc.repo.Notification().ListByRecipient(ctx, actor, filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notifications", goerr.V(ActorIDKey, actor))
	}
	return list, nil
}

// ListByProject returns every notification sent for a project
func (uc *NotificationUseCase) ListByProject(ctx context.Context, projectID types.ProjectID) ([]*model.Notification, error) {
	list, err := uc.repo.Notification().ListByProject(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list project notifications", goerr.V(ProjectIDKey, projectID))
	}
	return list, nil
}

// CountUnread returns the number of the actor's unread notifications
func (uc *NotificationUseCase) CountUnread(ctx context.Context, actor types.ActorID) (int, error) {
	count, err := uc.repo.Notification().CountUnread(ctx, actor)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count unread notifications", goerr.V(ActorIDKey, actor))
	}
	return count, nil
}

// MarkRead marks the notification read. Marking a read notification again
// changes nothing.
func (uc *NotificationUseCase) MarkRead(ctx context.Context, actor types.ActorID, id types.NotificationID) (*model.Notification, error) {
	n, err := uc.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}

	now := uc.clock()
	n.Read = true
	n.ReadAt = &now
	if err := uc.repo.Notification().Update(ctx, n); err != nil {
		return nil, goerr.Wrap(err, "failed to mark notification read", goerr.V(NotificationIDKey, id))
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the actor read
func (uc *NotificationUseCase) MarkAllRead(ctx context.Context, actor types.ActorID) (int, error) {
	count, err := uc.repo.Notification().MarkAllRead(ctx, actor, uc.clock())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to mark all notifications read", goerr.V(ActorIDKey, actor))
	}
	return count, nil
}

// Act executes one of the notification's actions on behalf of its
// recipient and marks the notification actioned. A notification that was
// already actioned is returned unchanged. View only marks it read.
func (uc *NotificationUseCase) Act(ctx context.Context, actor types.ActorID, id types.NotificationID, token types.ActionToken, comment string) (*model.Notification, error) {
	n, err := uc.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if n.Actioned {
		return n, nil
	}

	action := n.FindAction(token)
	if action == nil {
		return nil, goerr.Wrap(ErrUnknownAction, "action is not offered by the notification",
			goerr.V(NotificationIDKey, id),
			goerr.V("token", token))
	}
	if action.RequiresComment && comment == "" {
		return nil, goerr.Wrap(ErrCommentRequired, "action requires a comment",
			goerr.V(NotificationIDKey, id),
			goerr.V("token", token))
	}

	if token == types.ActionTokenView {
		return uc.MarkRead(ctx, actor, id)
	}

	projectID := n.Metadata.ProjectID
	stageID := n.Metadata.StageID

	switch token {
	case types.ActionTokenApprove:
		_, err = uc.engine.Complete(ctx, projectID, stageID, actor, comment)
	case types.ActionTokenReject:
		_, err = uc.engine.Reject(ctx, projectID, stageID, actor, comment)
	case types.ActionTokenVote:
		_, err = uc.engine.Approve(ctx, projectID, stageID, actor, comment)
	case types.ActionTokenOverride:
		_, err = uc.engine.Override(ctx, projectID, stageID, actor, comment)
	case types.ActionTokenReassign:
		_, err = uc.engine.Reassign(ctx, projectID, stageID, actor, comment)
	default:
		err = goerr.Wrap(ErrUnknownAction, "action token is not executable", goerr.V("token", token))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to execute notification action",
			goerr.V(NotificationIDKey, id),
			goerr.V("token", token))
	}

	now := uc.clock()
	n.Actioned = true
	n.ActionedAt = &now
	n.ActionTaken = token
	n.ActionComment = comment
	if !n.Read {
		n.Read = true
		n.ReadAt = &now
	}
	if err := uc.repo.Notification().Update(ctx, n); err != nil {
		return nil, goerr.Wrap(err, "failed to mark notification actioned", goerr.V(NotificationIDKey, id))
	}

	return n, nil
}
