package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/service/archive"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Archive holds CLI flags for the workflow snapshot bucket
type Archive struct {
	bucket string
	prefix string
}

func (x *Archive) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for snapshots of finished workflows",
			Category:    "Archive",
			Destination: &x.bucket,
			Sources:     cli.EnvVars("RINGI_ARCHIVE_BUCKET"),
		},
		&cli.StringFlag{
			Name:        "archive-prefix",
			Usage:       "Object name prefix in the archive bucket",
			Category:    "Archive",
			Destination: &x.prefix,
			Sources:     cli.EnvVars("RINGI_ARCHIVE_PREFIX"),
		},
	}
}

// Configure creates the archive. It returns nil when no bucket is set.
// The caller is responsible for calling Close() on the returned archive.
func (x *Archive) Configure(ctx context.Context) (*archive.Archive, error) {
	if x.bucket == "" {
		return nil, nil
	}

	a, err := archive.New(ctx, x.bucket, archive.WithPrefix(x.prefix))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure archive")
	}
	logging.Default().Info("Workflow archive enabled", "bucket", x.bucket, "prefix", x.prefix)
	return a, nil
}
