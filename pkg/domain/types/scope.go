package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// Scope is the organizational breadth of a project
type Scope string

const (
	ScopeTeam         Scope = "team"
	ScopeDepartment   Scope = "department"
	ScopeFacility     Scope = "facility"
	ScopeOrganization Scope = "organization"
	ScopeStrategic    Scope = "strategic"
)

// AllScopes returns scopes ordered from narrowest to widest
func AllScopes() []Scope {
	return []Scope{
		ScopeTeam,
		ScopeDepartment,
		ScopeFacility,
		ScopeOrganization,
		ScopeStrategic,
	}
}

// Tier returns the ordinal of the scope, 1 for team up to 5 for strategic.
// Unknown scopes return 0.
func (s Scope) Tier() int {
	for i, scope := range AllScopes() {
		if s == scope {
			return i + 1
		}
	}
	return 0
}

// Validate checks if the scope is known
func (s Scope) Validate() error {
	if s.Tier() == 0 {
		return goerr.New("invalid scope", goerr.V("scope", s))
	}
	return nil
}

func (s Scope) String() string {
	return string(s)
}

// SpecialCategory is a fixed project category reserved for the governing
// department. A project with a special category uses its own template
// regardless of scope.
type SpecialCategory string

const (
	SpecialCategoryNone            SpecialCategory = ""
	SpecialCategoryPersonnelPolicy SpecialCategory = "personnel-policy"
	SpecialCategoryCompliance      SpecialCategory = "compliance"
	SpecialCategoryBudgetRevision  SpecialCategory = "budget-revision"
)

// AllSpecialCategories returns all special categories
func AllSpecialCategories() []SpecialCategory {
	return []SpecialCategory{
		SpecialCategoryPersonnelPolicy,
		SpecialCategoryCompliance,
		SpecialCategoryBudgetRevision,
	}
}

// Validate checks if the special category is empty or known
func (c SpecialCategory) Validate() error {
	if c == SpecialCategoryNone {
		return nil
	}
	for _, sc := range AllSpecialCategories() {
		if c == sc {
			return nil
		}
	}
	return goerr.New("invalid special category", goerr.V("special_category", c))
}

func (c SpecialCategory) String() string {
	return string(c)
}
