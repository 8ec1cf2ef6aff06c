package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/types"
)

// Project is the snapshot of project data a workflow needs. The project
// record itself lives outside the engine.
type Project struct {
	ID              types.ProjectID       `firestore:"id" json:"id"`
	Title           string                `firestore:"title" json:"title"`
	Scope           types.Scope           `firestore:"scope" json:"scope"`
	SpecialCategory types.SpecialCategory `firestore:"special_category" json:"special_category,omitempty"`
	Category        types.Category        `firestore:"category" json:"category"`
	ProposerID      types.ActorID         `firestore:"proposer_id" json:"proposer_id"`
	Facility        string                `firestore:"facility" json:"facility"`
	Department      string                `firestore:"department" json:"department"`
	Team            string                `firestore:"team" json:"team"`
}

// Validate checks the project data required to build a workflow
func (p *Project) Validate() error {
	if err := p.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project ID")
	}
	if p.Title == "" {
		return goerr.New("project title is required", goerr.V("project_id", p.ID))
	}
	if err := p.Scope.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project scope", goerr.V("project_id", p.ID))
	}
	if err := p.SpecialCategory.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project special category", goerr.V("project_id", p.ID))
	}
	if err := p.Category.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project category", goerr.V("project_id", p.ID))
	}
	if p.ProposerID == "" {
		return goerr.New("project proposer is required", goerr.V("project_id", p.ID))
	}
	return nil
}

// IsSpecial reports whether the project uses a governing-department template
func (p *Project) IsSpecial() bool {
	return p.SpecialCategory != types.SpecialCategoryNone
}
