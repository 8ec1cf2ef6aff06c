package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/usecase"
	"github.com/secmon-lab/ringi/pkg/utils/errutil"
)

// Stage operations accepted by POST /api/projects/{projectID}/stages/{stageID}/{operation}
const (
	OperationApprove  = "approve"
	OperationReject   = "reject"
	OperationVote     = "vote"
	OperationOverride = "override"
	OperationReassign = "reassign"
)

var errBadRequest = errors.New("bad request")

// statusOf maps use case errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, usecase.ErrInvalidProject),
		errors.Is(err, usecase.ErrCommentRequired),
		errors.Is(err, usecase.ErrNotOverrideStage),
		errors.Is(err, usecase.ErrNotMultiApprover),
		errors.Is(err, usecase.ErrMultiApproverStage),
		errors.Is(err, usecase.ErrUnknownAction),
		errors.Is(err, usecase.ErrAssigneeNotResolved):
		return http.StatusBadRequest

	case errors.Is(err, usecase.ErrNotAuthorized),
		errors.Is(err, usecase.ErrSpecialCategoryRestricted):
		return http.StatusForbidden

	case errors.Is(err, usecase.ErrWorkflowNotFound),
		errors.Is(err, usecase.ErrStageNotFound),
		errors.Is(err, usecase.ErrNotificationNotFound):
		return http.StatusNotFound

	case errors.Is(err, usecase.ErrWorkflowExists),
		errors.Is(err, usecase.ErrInvalidStageState),
		errors.Is(err, usecase.ErrWorkflowRejected),
		errors.Is(err, usecase.ErrNoActiveSelection):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// unchanged.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return goerr.Wrap(errBadRequest, "failed to read request body", goerr.V("error", err.Error()))
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return goerr.Wrap(errBadRequest, "invalid JSON body", goerr.V("error", err.Error()))
	}
	return nil
}

// initializeHandler builds the workflow of the posted project. The acting
// actor is the proposer.
func (s *Server) initializeHandler(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())

	var project model.Project
	if err := decodeBody(r, &project); err != nil {
		handleError(w, r, err)
		return
	}
	if project.ProposerID == "" {
		project.ProposerID = actor
	}
	if project.ProposerID != actor {
		handleError(w, r, goerr.Wrap(usecase.ErrNotAuthorized, "only the proposer initializes a workflow",
			goerr.V(usecase.ProjectIDKey, project.ID),
			goerr.V(usecase.ActorIDKey, actor)))
		return
	}

	wf, err := s.uc.Workflow.Initialize(r.Context(), &project)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, wf)
}

func (s *Server) workflowHandler(w http.ResponseWriter, r *http.Request) {
	projectID := types.ProjectID(chi.URLParam(r, "projectID"))

	wf, err := s.uc.Workflow.Get(r.Context(), projectID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

type stageRequest struct {
	Comment string `json:"comment"`
	Target  string `json:"target"`
}

func (s *Server) stageHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromContext(ctx)
	projectID := types.ProjectID(chi.URLParam(r, "projectID"))
	stageID := types.StageID(chi.URLParam(r, "stageID"))
	operation := chi.URLParam(r, "operation")

	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	var (
		wf  *model.Workflow
		err error
	)
	switch operation {
	case OperationApprove:
		wf, err = s.uc.Workflow.Complete(ctx, projectID, stageID, actor, req.Comment)
	case OperationReject:
		wf, err = s.uc.Workflow.Reject(ctx, projectID, stageID, actor, req.Comment)
	case OperationVote:
		wf, err = s.uc.Workflow.Approve(ctx, projectID, stageID, actor, req.Comment)
	case OperationOverride:
		wf, err = s.uc.Workflow.Override(ctx, projectID, stageID, actor, req.Comment)
	case OperationReassign:
		wf, err = s.uc.Workflow.Reassign(ctx, projectID, stageID, actor, req.Target)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

type selectMemberRequest struct {
	MemberID types.ActorID `json:"member_id"`
}

func (s *Server) selectMemberHandler(w http.ResponseWriter, r *http.Request) {
	projectID := types.ProjectID(chi.URLParam(r, "projectID"))

	var req selectMemberRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.MemberID == "" {
		handleError(w, r, goerr.Wrap(errBadRequest, "member_id is required"))
		return
	}

	wf, err := s.uc.Workflow.SelectMember(r.Context(), projectID, actorFromContext(r.Context()), req.MemberID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

type notificationListResponse struct {
	Notifications []*model.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// parseFilter reads ?unread=true&type=...&project=...&limit=N
func parseFilter(r *http.Request) (model.NotificationFilter, error) {
	q := r.URL.Query()
	filter := model.NotificationFilter{
		Type:      types.NotificationType(q.Get("type")),
		ProjectID: types.ProjectID(q.Get("project")),
	}

	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return filter, goerr.Wrap(errBadRequest, "invalid unread parameter", goerr.V("unread", v))
		}
		filter.UnreadOnly = unread
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, goerr.Wrap(errBadRequest, "invalid limit parameter", goerr.V("limit", v))
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromContext(ctx)

	filter, err := parseFilter(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	list, err := s.uc.Notification.List(ctx, actor, filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	unread, err := s.uc.Notification.CountUnread(ctx, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}

	if list == nil {
		list = []*model.Notification{}
	}
	writeJSON(w, r, http.StatusOK, notificationListResponse{Notifications: list, Unread: unread})
}

func (s *Server) getNotificationHandler(w http.ResponseWriter, r *http.Request) {
	id := types.NotificationID(chi.URLParam(r, "notificationID"))

	n, err := s.uc.Notification.Get(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	id := types.NotificationID(chi.URLParam(r, "notificationID"))

	n, err := s.uc.Notification.MarkRead(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

func (s *Server) markAllReadHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.uc.Notification.MarkAllRead(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"marked": count})
}

type actRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) actHandler(w http.ResponseWriter, r *http.Request) {
	id := types.NotificationID(chi.URLParam(r, "notificationID"))
	token := types.ActionToken(chi.URLParam(r, "token"))

	var req actRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	n, err := s.uc.Notification.Act(r.Context(), actorFromContext(r.Context()), id, token, req.Comment)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}
