package directory

import (
	"context"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

var (
	ErrActorNotFound   = goerr.New("actor not found")
	ErrDuplicateActor  = goerr.New("duplicate actor ID")
	ErrDuplicateGroup  = goerr.New("duplicate group token")
	ErrUnknownMember   = goerr.New("group member is not a known actor")
	ErrInvalidRoleSpec = goerr.New("invalid role token")
)

// Directory is a static organization chart loaded from configuration. Actors
// are matched to contextual roles by their team, department or facility.
type Directory struct {
	actors map[types.ActorID]*model.Actor
	order  []types.ActorID
	groups map[string]*model.Group

	slack slack.Service
}

var _ interfaces.Directory = &Directory{}

type Option func(*Directory)

// WithSlack fills missing chat IDs and phone numbers from the Slack profile
// matching the actor's email
func WithSlack(svc slack.Service) Option {
	return func(d *Directory) {
		d.slack = svc
	}
}

// New builds a directory. Group members must be known actors.
func New(actors []model.Actor, groups []model.Group, opts ...Option) (*Directory, error) {
	d := &Directory{
		actors: make(map[types.ActorID]*model.Actor, len(actors)),
		order:  make([]types.ActorID, 0, len(actors)),
		groups: make(map[string]*model.Group, len(groups)),
	}

	for i := range actors {
		a := actors[i]
		if err := a.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid actor")
		}
		if _, exists := d.actors[a.ID]; exists {
			return nil, goerr.Wrap(ErrDuplicateActor, "actor defined twice", goerr.V("id", a.ID))
		}
		d.actors[a.ID] = &a
		d.order = append(d.order, a.ID)
	}

	for i := range groups {
		g := groups[i]
		if err := g.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid group")
		}
		if _, exists := d.groups[g.Token]; exists {
			return nil, goerr.Wrap(ErrDuplicateGroup, "group defined twice", goerr.V("token", g.Token))
		}
		for _, m := range g.Members {
			if _, ok := d.actors[m]; !ok {
				return nil, goerr.Wrap(ErrUnknownMember, "unknown group member",
					goerr.V("token", g.Token), goerr.V("member", m))
			}
		}
		d.groups[g.Token] = &g
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Actor returns a copy of the actor. With Slack configured, a missing chat
// ID or phone number is looked up by email; lookup failures are logged and
// leave the fields empty.
func (d *Directory) Actor(ctx context.Context, id types.ActorID) (*model.Actor, error) {
	a, ok := d.actors[id]
	if !ok {
		return nil, goerr.Wrap(ErrActorNotFound, "actor is not in the directory", goerr.V("id", id))
	}

	copied := *a
	copied.Roles = append([]string(nil), a.Roles...)

	if d.slack != nil && copied.Email != "" && (copied.SlackID == "" || copied.Phone == "") {
		user, err := d.slack.LookupUserByEmail(ctx, copied.Email)
		if err != nil {
			logging.From(ctx).Warn("failed to enrich actor from Slack", "actor_id", id, "error", err)
		} else if user != nil {
			if copied.SlackID == "" {
				copied.SlackID = user.ID
			}
			if copied.Phone == "" {
				copied.Phone = user.Phone
			}
		}
	}

	return &copied, nil
}

// Resolve maps roleToken to an assignee in the context of project.
//
//   - "system" resolves to the system account
//   - "level:N" resolves to every level N actor of the project's facility
//   - a configured group token resolves to that group
//   - team-lead, section-chief, department-head and facility-director
//     resolve to the actors holding the role in the project's team,
//     department or facility
//   - any other token resolves to every actor holding it as a role
func (d *Directory) Resolve(ctx context.Context, roleToken string, project *model.Project) (model.Assignee, bool, error) {
	if roleToken == model.RoleSystem {
		return model.SystemAssignee(), true, nil
	}

	if strings.HasPrefix(roleToken, model.RoleLevelPrefix) {
		level, err := strconv.Atoi(strings.TrimPrefix(roleToken, model.RoleLevelPrefix))
		if err != nil {
			return model.Assignee{}, false, goerr.Wrap(ErrInvalidRoleSpec, "level token must end with a number",
				goerr.V("role_token", roleToken))
		}
		return d.assigneeOf(roleToken, "Level "+strconv.Itoa(level), d.match(func(a *model.Actor) bool {
			return a.Level == level && a.Facility == project.Facility
		}))
	}

	if g, ok := d.groups[roleToken]; ok {
		name := g.Name
		if name == "" {
			name = g.Token
		}
		return model.NewGroupAssignee(g.Token, name, g.Members), true, nil
	}

	var scoped func(a *model.Actor) bool
	switch roleToken {
	case model.RoleTeamLead:
		scoped = func(a *model.Actor) bool { return a.Team == project.Team }
	case model.RoleSectionChief, model.RoleDepartmentHead:
		scoped = func(a *model.Actor) bool { return a.Department == project.Department }
	case model.RoleFacilityDirector:
		scoped = func(a *model.Actor) bool { return a.Facility == project.Facility }
	default:
		scoped = func(a *model.Actor) bool { return true }
	}

	return d.assigneeOf(roleToken, roleToken, d.match(func(a *model.Actor) bool {
		return a.HasRole(roleToken) && scoped(a)
	}))
}

// InDepartment reports whether the actor belongs to department. Unknown
// actors belong to no department.
func (d *Directory) InDepartment(ctx context.Context, id types.ActorID, department string) (bool, error) {
	a, ok := d.actors[id]
	if !ok {
		return false, nil
	}
	return a.Department == department, nil
}

// ActorBySlackID returns the actor whose chat ID is slackID. With Slack
// configured, actors without a chat ID are matched by the email address of
// the Slack user.
func (d *Directory) ActorBySlackID(ctx context.Context, slackID string) (*model.Actor, error) {
	if slackID == "" {
		return nil, goerr.Wrap(ErrActorNotFound, "Slack ID is empty")
	}

	for _, id := range d.order {
		if d.actors[id].SlackID == slackID {
			return d.Actor(ctx, id)
		}
	}

	if d.slack != nil {
		user, err := d.slack.GetUserInfo(ctx, slackID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to look up Slack user", goerr.V("slack_id", slackID))
		}
		if user != nil && user.Email != "" {
			for _, id := range d.order {
				if a := d.actors[id]; a.SlackID == "" && strings.EqualFold(a.Email, user.Email) {
					actor, err := d.Actor(ctx, id)
					if err != nil {
						return nil, err
					}
					actor.SlackID = slackID
					return actor, nil
				}
			}
		}
	}

	return nil, goerr.Wrap(ErrActorNotFound, "no actor has the Slack ID", goerr.V("slack_id", slackID))
}

// Actors returns every actor in configuration order
func (d *Directory) Actors() []*model.Actor {
	result := make([]*model.Actor, 0, len(d.order))
	for _, id := range d.order {
		result = append(result, d.actors[id])
	}
	return result
}

func (d *Directory) match(pred func(a *model.Actor) bool) []*model.Actor {
	var matched []*model.Actor
	for _, id := range d.order {
		if a := d.actors[id]; pred(a) {
			matched = append(matched, a)
		}
	}
	return matched
}

func (d *Directory) assigneeOf(token, name string, matched []*model.Actor) (model.Assignee, bool, error) {
	switch len(matched) {
	case 0:
		return model.Assignee{}, false, nil
	case 1:
		return model.NewIndividualAssignee(matched[0].ID, matched[0].Name), true, nil
	default:
		members := make([]types.ActorID, len(matched))
		for i, a := range matched {
			members[i] = a.ID
		}
		return model.NewGroupAssignee(token, name, members), true, nil
	}
}
