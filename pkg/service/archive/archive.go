package archive

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
)

// Archive writes snapshots of finished workflows to a Cloud Storage bucket
// as JSON, one object per snapshot
type Archive struct {
	client    *storage.Client
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

var _ interfaces.Archiver = &Archive{}

type Option func(*Archive)

// WithPrefix stores objects under prefix
func WithPrefix(prefix string) Option {
	return func(a *Archive) {
		a.prefix = prefix
	}
}

// New creates an archive with Application Default Credentials
func New(ctx context.Context, bucket string, opts ...Option) (*Archive, error) {
	if bucket == "" {
		return nil, goerr.New("archive bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	a := &Archive{
		client: client,
		bucket: bucket,
	}
	a.newWriter = func(ctx context.Context, object string) io.WriteCloser {
		w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		return w
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ObjectName returns where the snapshot of wf taken at at is stored
func (a *Archive) ObjectName(wf *model.Workflow, at time.Time) string {
	return path.Join(a.prefix, "workflows", string(wf.ProjectID), at.UTC().Format("20060102T150405.000000000Z")+".json")
}

// Archive uploads the workflow snapshot. The object is only committed when
// the whole body was written.
func (a *Archive) Archive(ctx context.Context, wf *model.Workflow) error {
	object := a.ObjectName(wf, wf.UpdatedAt)

	// Cancelling the writer's context aborts the upload
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := a.newWriter(ctx, object)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(wf); err != nil {
		cancel()
		return goerr.Wrap(err, "failed to encode workflow snapshot", goerr.V("object", object))
	}

	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to upload workflow snapshot",
			goerr.V("bucket", a.bucket),
			goerr.V("object", object))
	}
	return nil
}

func (a *Archive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
