package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/usecase"
)

func TestErrors_ErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		usecase.ErrWorkflowNotFound,
		usecase.ErrStageNotFound,
		usecase.ErrNotificationNotFound,
		usecase.ErrWorkflowExists,
		usecase.ErrInvalidStageState,
		usecase.ErrWorkflowRejected,
		usecase.ErrNoActiveSelection,
		usecase.ErrNotAuthorized,
		usecase.ErrSpecialCategoryRestricted,
		usecase.ErrInvalidProject,
		usecase.ErrCommentRequired,
		usecase.ErrNotOverrideStage,
		usecase.ErrNotMultiApprover,
		usecase.ErrMultiApproverStage,
		usecase.ErrUnknownAction,
		usecase.ErrAssigneeNotResolved,
	}

	for i, a := range sentinels {
		gt.Value(t, a).NotNil()
		for j, b := range sentinels {
			if i != j {
				gt.Bool(t, errors.Is(a, b)).False()
			}
		}
	}
}
