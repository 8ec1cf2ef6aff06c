package types

import "fmt"

// StageKind identifies what a stage is for. The set is closed; every table
// keyed by StageKind must cover AllStageKinds.
type StageKind string

const (
	StageKindSubmission               StageKind = "SUBMISSION"
	StageKindLeadReview               StageKind = "LEAD_REVIEW"
	StageKindSectionChiefApproval     StageKind = "SECTION_CHIEF_APPROVAL"
	StageKindDepartmentHeadApproval   StageKind = "DEPARTMENT_HEAD_APPROVAL"
	StageKindFacilityDirectorApproval StageKind = "FACILITY_DIRECTOR_APPROVAL"
	StageKindExecutiveCommittee       StageKind = "EXECUTIVE_COMMITTEE"
	StageKindBoardResolution          StageKind = "BOARD_RESOLUTION"
	StageKindGovernanceReview         StageKind = "GOVERNANCE_REVIEW"
	StageKindLegalReview              StageKind = "LEGAL_REVIEW"
	StageKindBudgetReview             StageKind = "BUDGET_REVIEW"
	StageKindFinalApproval            StageKind = "FINAL_APPROVAL"
)

// AllStageKinds returns all stage kinds
func AllStageKinds() []StageKind {
	return []StageKind{
		StageKindSubmission,
		StageKindLeadReview,
		StageKindSectionChiefApproval,
		StageKindDepartmentHeadApproval,
		StageKindFacilityDirectorApproval,
		StageKindExecutiveCommittee,
		StageKindBoardResolution,
		StageKindGovernanceReview,
		StageKindLegalReview,
		StageKindBudgetReview,
		StageKindFinalApproval,
	}
}

// IsValid checks if the stage kind is valid
func (k StageKind) IsValid() bool {
	for _, kind := range AllStageKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// IsApprovalCompleted reports whether completing a stage of this kind marks
// the workflow as approved
func (k StageKind) IsApprovalCompleted() bool {
	return k == StageKindFinalApproval
}

// DisplayName returns a human readable label used in notifications
func (k StageKind) DisplayName() string {
	switch k {
	case StageKindSubmission:
		return "Submission"
	case StageKindLeadReview:
		return "Team lead review"
	case StageKindSectionChiefApproval:
		return "Section chief approval"
	case StageKindDepartmentHeadApproval:
		return "Department head approval"
	case StageKindFacilityDirectorApproval:
		return "Facility director approval"
	case StageKindExecutiveCommittee:
		return "Executive committee"
	case StageKindBoardResolution:
		return "Board resolution"
	case StageKindGovernanceReview:
		return "Governance review"
	case StageKindLegalReview:
		return "Legal review"
	case StageKindBudgetReview:
		return "Budget review"
	case StageKindFinalApproval:
		return "Final approval"
	default:
		return string(k)
	}
}

func (k StageKind) String() string {
	return string(k)
}

// ParseStageKind parses a string into a StageKind
func ParseStageKind(s string) (StageKind, error) {
	kind := StageKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid stage kind: %s", s)
	}
	return kind, nil
}
