package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound    = goerr.New("configuration file not found")
	ErrInvalidConfig     = goerr.New("invalid configuration")
	ErrDuplicateActorID  = goerr.New("duplicate actor ID")
	ErrDuplicateGroup    = goerr.New("duplicate group token")
	ErrUnknownDepartment = goerr.New("governing department has no actor")
	ErrIncompleteSMTP    = goerr.New("SMTP relay and sender must be set together")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	ActorIDKey    = "actor_id"
	GroupTokenKey = "group_token"
	ActorIndexKey = "actor_index"
)
