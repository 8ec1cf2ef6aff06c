package archive_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/archive"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func newTestWorkflow() *model.Workflow {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	return &model.Workflow{
		ProjectID: "p-1",
		Project: model.Project{
			ID:    "p-1",
			Title: "Ward renovation",
			Scope: types.ScopeTeam,
		},
		Stages: []*model.Stage{
			{ID: "s-1", Kind: types.StageKindSubmission, Status: types.StageStatusCompleted},
		},
		ApprovalCompleted: true,
		CreatedAt:         at.Add(-time.Hour),
		UpdatedAt:         at,
	}
}

func TestArchive(t *testing.T) {
	ctx := context.Background()

	var gotObject string
	buf := &bufferCloser{}
	a := archive.NewForTest("audit", func(ctx context.Context, object string) io.WriteCloser {
		gotObject = object
		return buf
	})

	wf := newTestWorkflow()
	gt.NoError(t, a.Archive(ctx, wf)).Required()

	gt.Value(t, gotObject).Equal("audit/workflows/p-1/20260301T123000.000000000Z.json")
	gt.Bool(t, buf.closed).True()

	var decoded model.Workflow
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &decoded)).Required()
	gt.Value(t, decoded.ProjectID).Equal(types.ProjectID("p-1"))
	gt.Bool(t, decoded.ApprovalCompleted).True()
	gt.Array(t, decoded.Stages).Length(1)
}

func TestArchiveIntegration(t *testing.T) {
	bucket := os.Getenv("TEST_ARCHIVE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_ARCHIVE_BUCKET not set")
	}

	ctx := context.Background()
	a, err := archive.New(ctx, bucket, archive.WithPrefix("test"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, a.Close())
	})

	wf := newTestWorkflow()
	wf.UpdatedAt = time.Now()
	gt.NoError(t, a.Archive(ctx, wf))
}
