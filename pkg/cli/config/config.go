package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/directory"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Organization is the organization chart and engine settings read from the
// TOML configuration file
type Organization struct {
	GoverningDepartment string        `toml:"governing_department"`
	Actors              []model.Actor `toml:"actor"`
	Groups              []model.Group `toml:"group"`
}

// Validate checks the organization. Group membership and role tokens are
// checked again when the directory is built.
func (o *Organization) Validate() error {
	actorIDs := make(map[types.ActorID]bool, len(o.Actors))
	departments := make(map[string]bool)
	for i, a := range o.Actors {
		if err := a.Validate(); err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid actor",
				goerr.V(ActorIndexKey, i),
				goerr.V("reason", err.Error()))
		}
		if actorIDs[a.ID] {
			return goerr.Wrap(ErrDuplicateActorID, "actor defined twice", goerr.V(ActorIDKey, a.ID))
		}
		actorIDs[a.ID] = true
		departments[a.Department] = true
	}

	groupTokens := make(map[string]bool, len(o.Groups))
	for _, g := range o.Groups {
		if err := g.Validate(); err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid group",
				goerr.V(GroupTokenKey, g.Token),
				goerr.V("reason", err.Error()))
		}
		if groupTokens[g.Token] {
			return goerr.Wrap(ErrDuplicateGroup, "group defined twice", goerr.V(GroupTokenKey, g.Token))
		}
		groupTokens[g.Token] = true
	}

	if o.GoverningDepartment != "" && !departments[o.GoverningDepartment] {
		return goerr.Wrap(ErrUnknownDepartment, "no actor belongs to the governing department",
			goerr.V("department", o.GoverningDepartment))
	}

	return nil
}

// Directory builds the organization directory
func (o *Organization) Directory(opts ...directory.Option) (*directory.Directory, error) {
	dir, err := directory.New(o.Actors, o.Groups, opts...)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to build directory", goerr.V("reason", err.Error()))
	}
	return dir, nil
}

// LoadOrganization loads the organization from a TOML file
func LoadOrganization(path string) (*Organization, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var org Organization
	if err := toml.Unmarshal(data, &org); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path),
			goerr.V("reason", err.Error()))
	}

	if err := org.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &org, nil
}

// AppConfig holds the CLI flag for the organization file
type AppConfig struct {
	path string
}

func (x *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Organization config file (TOML)",
			Sources:     cli.EnvVars("RINGI_CONFIG"),
			Destination: &x.path,
		},
	}
}

// Configure loads the organization file. Without a file the organization is
// empty and every role resolves to a placeholder.
func (x *AppConfig) Configure() (*Organization, error) {
	if x.path == "" {
		logging.Default().Warn("No organization config given, all stages will be assigned to placeholders")
		return &Organization{}, nil
	}

	org, err := LoadOrganization(x.path)
	if err != nil {
		return nil, err
	}

	logging.Default().Info("Organization loaded",
		"path", x.path,
		"actors", len(org.Actors),
		"groups", len(org.Groups),
		"governing_department", org.GoverningDepartment,
	)
	return org, nil
}
