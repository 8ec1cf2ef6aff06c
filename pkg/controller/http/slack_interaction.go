package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	"github.com/secmon-lab/ringi/pkg/service/transport"
	"github.com/secmon-lab/ringi/pkg/usecase"
	"github.com/secmon-lab/ringi/pkg/utils/errutil"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	goslack "github.com/slack-go/slack"
)

// NotificationActor executes notification actions
type NotificationActor interface {
	Act(ctx context.Context, actor types.ActorID, id types.NotificationID, token types.ActionToken, comment string) (*model.Notification, error)
}

// SlackActorLookup maps a Slack user to a directory actor
type SlackActorLookup interface {
	ActorBySlackID(ctx context.Context, slackID string) (*model.Actor, error)
}

// SlackInteractionHandler handles the buttons of chat notifications
type SlackInteractionHandler struct {
	notifications NotificationActor
	actors        SlackActorLookup
	slack         slack.Service
	baseURL       string
}

// NewSlackInteractionHandler creates a new Slack interaction handler.
// svc updates the clicked message and may be nil.
func NewSlackInteractionHandler(notifications NotificationActor, actors SlackActorLookup, svc slack.Service, baseURL string) *SlackInteractionHandler {
	return &SlackInteractionHandler{
		notifications: notifications,
		actors:        actors,
		slack:         svc,
		baseURL:       baseURL,
	}
}

// ServeHTTP handles Slack interaction webhook requests
func (h *SlackInteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Slack sends interaction payloads as application/x-www-form-urlencoded
	// with a "payload" field containing JSON
	payload := r.FormValue("payload")
	if payload == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("missing payload field in interaction request"), http.StatusBadRequest)
		return
	}

	var callback goslack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse interaction payload"), http.StatusBadRequest)
		return
	}

	// Only handle block_actions (button clicks)
	if callback.Type != goslack.InteractionTypeBlockActions {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		token, ok := transport.ParseSlackActionID(action.ActionID)
		if !ok {
			continue
		}
		h.handleAction(ctx, &callback, token, types.NotificationID(action.Value))
	}

	w.WriteHeader(http.StatusOK)
}

func (h *SlackInteractionHandler) handleAction(ctx context.Context, callback *goslack.InteractionCallback, token types.ActionToken, id types.NotificationID) {
	logger := logging.From(ctx).With(
		"slack_user_id", callback.User.ID,
		"notification_id", id,
		"action", token,
	)

	actor, err := h.actors.ActorBySlackID(ctx, callback.User.ID)
	if err != nil {
		logger.Warn("Slack user is not a known actor", "error", err)
		h.reply(ctx, callback, "Your Slack account is not linked to an approver.")
		return
	}

	n, err := h.notifications.Act(ctx, actor.ID, id, token, "")
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			errutil.Handle(ctx, err, "failed to handle Slack interaction")
		} else {
			logger.Info("Slack interaction refused", "error", err)
		}
		h.reply(ctx, callback, replyText(err))
		return
	}

	if h.slack == nil || callback.Container.ChannelID == "" || callback.Container.MessageTs == "" {
		return
	}
	blocks := transport.NotificationBlocks(n, h.baseURL)
	if err := h.slack.UpdateMessage(ctx, callback.Container.ChannelID, callback.Container.MessageTs, blocks, n.Title); err != nil {
		errutil.Handle(ctx, goerr.Wrap(err, "failed to update Slack message",
			goerr.V("notification_id", id)), "actioned notification is not reflected in Slack")
	}
}

// replyText explains a refused action to the clicking user
func replyText(err error) string {
	switch {
	case errors.Is(err, usecase.ErrCommentRequired):
		return "This action needs a comment. Open the notification in the inbox to add one."
	case errors.Is(err, usecase.ErrNotAuthorized):
		return "You are not allowed to take this action."
	case errors.Is(err, usecase.ErrNotificationNotFound):
		return "This notification no longer exists."
	case errors.Is(err, usecase.ErrInvalidStageState), errors.Is(err, usecase.ErrWorkflowRejected):
		return "This stage is no longer waiting for you."
	default:
		return "The action could not be completed. Please try again from the inbox."
	}
}

// reply posts an ephemeral message through the interaction's response URL
func (h *SlackInteractionHandler) reply(ctx context.Context, callback *goslack.InteractionCallback, text string) {
	if callback.ResponseURL == "" {
		return
	}
	msg := &goslack.WebhookMessage{
		Text:            text,
		ResponseType:    "ephemeral",
		ReplaceOriginal: false,
	}
	if err := goslack.PostWebhookContext(ctx, callback.ResponseURL, msg); err != nil {
		logging.From(ctx).Warn("failed to reply to Slack interaction", "error", err)
	}
}
