package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Role tokens understood by the directory. A token of the form "level:N"
// resolves to every actor of level N in the project's facility.
const (
	RoleSystem             = "system"
	RoleTeamLead           = "team-lead"
	RoleSectionChief       = "section-chief"
	RoleDepartmentHead     = "department-head"
	RoleFacilityDirector   = "facility-director"
	RoleExecutiveCommittee = "executive-committee"
	RoleBoard              = "board"
	RoleChairperson        = "chairperson"
	RoleGovernanceOffice   = "governance-office"
	RoleLegalOffice        = "legal-office"
	RoleFinanceOffice      = "finance-office"
	RoleSecretariat        = "secretariat"
	RoleLevelPrefix        = "level:"
)

// ErrTemplateNotFound is returned when no template matches a project
var ErrTemplateNotFound = goerr.New("workflow template not found")

// StageTemplate declares one stage of a workflow template
type StageTemplate struct {
	Kind              types.StageKind
	RoleToken         string
	AutoComplete      bool
	RequiredLevel     int
	MultiApprover     bool
	EmergencyOverride bool
	// OverrideRoleToken resolves to the emergency override authority. It is
	// only read when EmergencyOverride is set.
	OverrideRoleToken string
}

// WorkflowTemplate is the ordered stage list for a scope or special category
type WorkflowTemplate struct {
	Key    string
	Name   string
	Stages []StageTemplate
}

var submission = StageTemplate{Kind: types.StageKindSubmission, RoleToken: RoleSystem, AutoComplete: true}

var scopeTemplates = map[types.Scope]WorkflowTemplate{
	types.ScopeTeam: {
		Key:  string(types.ScopeTeam),
		Name: "Team project",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindLeadReview, RoleToken: RoleTeamLead},
			{Kind: types.StageKindSectionChiefApproval, RoleToken: RoleSectionChief},
			{Kind: types.StageKindDepartmentHeadApproval, RoleToken: RoleDepartmentHead},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSecretariat},
		},
	},
	types.ScopeDepartment: {
		Key:  string(types.ScopeDepartment),
		Name: "Department project",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindSectionChiefApproval, RoleToken: RoleSectionChief},
			{Kind: types.StageKindDepartmentHeadApproval, RoleToken: RoleDepartmentHead, RequiredLevel: 3},
			{Kind: types.StageKindFacilityDirectorApproval, RoleToken: RoleFacilityDirector},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSecretariat},
		},
	},
	types.ScopeFacility: {
		Key:  string(types.ScopeFacility),
		Name: "Facility project",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindDepartmentHeadApproval, RoleToken: RoleDepartmentHead},
			{Kind: types.StageKindFacilityDirectorApproval, RoleToken: RoleFacilityDirector, RequiredLevel: 4},
			{Kind: types.StageKindExecutiveCommittee, RoleToken: RoleExecutiveCommittee, MultiApprover: true},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleLevelPrefix + "4"},
		},
	},
	types.ScopeOrganization: {
		Key:  string(types.ScopeOrganization),
		Name: "Organization-wide project",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindFacilityDirectorApproval, RoleToken: RoleFacilityDirector},
			{Kind: types.StageKindExecutiveCommittee, RoleToken: RoleExecutiveCommittee, MultiApprover: true, RequiredLevel: 5},
			{Kind: types.StageKindBoardResolution, RoleToken: RoleBoard, MultiApprover: true, EmergencyOverride: true, OverrideRoleToken: RoleChairperson},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSystem, AutoComplete: true},
		},
	},
	types.ScopeStrategic: {
		Key:  string(types.ScopeStrategic),
		Name: "Strategic project",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindExecutiveCommittee, RoleToken: RoleExecutiveCommittee, MultiApprover: true},
			{Kind: types.StageKindBoardResolution, RoleToken: RoleBoard, MultiApprover: true, EmergencyOverride: true, OverrideRoleToken: RoleChairperson, RequiredLevel: 6},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSystem, AutoComplete: true},
		},
	},
}

var specialTemplates = map[types.SpecialCategory]WorkflowTemplate{
	types.SpecialCategoryPersonnelPolicy: {
		Key:  string(types.SpecialCategoryPersonnelPolicy),
		Name: "Personnel policy",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindGovernanceReview, RoleToken: RoleGovernanceOffice},
			{Kind: types.StageKindLegalReview, RoleToken: RoleLegalOffice},
			{Kind: types.StageKindExecutiveCommittee, RoleToken: RoleExecutiveCommittee, MultiApprover: true, EmergencyOverride: true, OverrideRoleToken: RoleChairperson},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSecretariat},
		},
	},
	types.SpecialCategoryCompliance: {
		Key:  string(types.SpecialCategoryCompliance),
		Name: "Compliance",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindLegalReview, RoleToken: RoleLegalOffice},
			{Kind: types.StageKindGovernanceReview, RoleToken: RoleGovernanceOffice, EmergencyOverride: true, OverrideRoleToken: RoleChairperson},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSecretariat},
		},
	},
	types.SpecialCategoryBudgetRevision: {
		Key:  string(types.SpecialCategoryBudgetRevision),
		Name: "Budget revision",
		Stages: []StageTemplate{
			submission,
			{Kind: types.StageKindBudgetReview, RoleToken: RoleFinanceOffice},
			{Kind: types.StageKindGovernanceReview, RoleToken: RoleGovernanceOffice},
			{Kind: types.StageKindExecutiveCommittee, RoleToken: RoleExecutiveCommittee, MultiApprover: true, EmergencyOverride: true, OverrideRoleToken: RoleChairperson},
			{Kind: types.StageKindFinalApproval, RoleToken: RoleSecretariat},
		},
	},
}

// TemplateFor returns the template for the project. A special category takes
// precedence over the scope.
func TemplateFor(p *Project) (*WorkflowTemplate, error) {
	if p.IsSpecial() {
		t, ok := specialTemplates[p.SpecialCategory]
		if !ok {
			return nil, goerr.Wrap(ErrTemplateNotFound, "no template for special category",
				goerr.V("special_category", p.SpecialCategory))
		}
		return cloneTemplate(t), nil
	}

	t, ok := scopeTemplates[p.Scope]
	if !ok {
		return nil, goerr.Wrap(ErrTemplateNotFound, "no template for scope", goerr.V("scope", p.Scope))
	}
	return cloneTemplate(t), nil
}

// Templates returns every template, scopes first in tier order, then special
// categories
func Templates() []*WorkflowTemplate {
	result := make([]*WorkflowTemplate, 0, len(scopeTemplates)+len(specialTemplates))
	for _, scope := range types.AllScopes() {
		if t, ok := scopeTemplates[scope]; ok {
			result = append(result, cloneTemplate(t))
		}
	}
	for _, sc := range types.AllSpecialCategories() {
		if t, ok := specialTemplates[sc]; ok {
			result = append(result, cloneTemplate(t))
		}
	}
	return result
}

func cloneTemplate(t WorkflowTemplate) *WorkflowTemplate {
	stages := make([]StageTemplate, len(t.Stages))
	copy(stages, t.Stages)
	return &WorkflowTemplate{Key: t.Key, Name: t.Name, Stages: stages}
}

// StageDuration is the base deadline of a stage kind in days. Zero means no
// deadline.
type StageDuration struct {
	DueDays        int
	EscalationDays int
}

// DurationOf returns the base deadlines for kind
func DurationOf(kind types.StageKind) StageDuration {
	switch kind {
	case types.StageKindSubmission:
		return StageDuration{}
	case types.StageKindLeadReview:
		return StageDuration{DueDays: 2, EscalationDays: 3}
	case types.StageKindSectionChiefApproval:
		return StageDuration{DueDays: 3, EscalationDays: 5}
	case types.StageKindDepartmentHeadApproval:
		return StageDuration{DueDays: 3, EscalationDays: 5}
	case types.StageKindFacilityDirectorApproval:
		return StageDuration{DueDays: 5, EscalationDays: 7}
	case types.StageKindExecutiveCommittee:
		return StageDuration{DueDays: 7, EscalationDays: 10}
	case types.StageKindBoardResolution:
		return StageDuration{DueDays: 14}
	case types.StageKindGovernanceReview,
		types.StageKindLegalReview,
		types.StageKindBudgetReview:
		return StageDuration{DueDays: 5, EscalationDays: 7}
	case types.StageKindFinalApproval:
		return StageDuration{DueDays: 2, EscalationDays: 3}
	default:
		return StageDuration{}
	}
}

// Deadlines after an automatic or manual reassignment
const (
	ReassignDueDays        = 3
	ReassignEscalationDays = 5
)

// EscalationTarget is where a stalled stage goes. An empty RoleToken means
// manual review without automatic reassignment.
type EscalationTarget struct {
	RoleToken string
}

// AutoReassign reports whether the target reassigns the stage automatically
func (t EscalationTarget) AutoReassign() bool {
	return t.RoleToken != ""
}

// EscalationTargetOf returns the escalation target for kind
func EscalationTargetOf(kind types.StageKind) EscalationTarget {
	switch kind {
	case types.StageKindLeadReview:
		return EscalationTarget{RoleToken: RoleSectionChief}
	case types.StageKindSectionChiefApproval:
		return EscalationTarget{RoleToken: RoleDepartmentHead}
	case types.StageKindDepartmentHeadApproval:
		return EscalationTarget{RoleToken: RoleFacilityDirector}
	case types.StageKindFacilityDirectorApproval:
		return EscalationTarget{RoleToken: RoleExecutiveCommittee}
	case types.StageKindLegalReview,
		types.StageKindBudgetReview:
		return EscalationTarget{RoleToken: RoleGovernanceOffice}
	default:
		return EscalationTarget{}
	}
}

// ManualReviewRoleToken is notified when an escalation cannot be reassigned
// automatically
const ManualReviewRoleToken = RoleSecretariat
