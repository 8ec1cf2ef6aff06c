package archive

import (
	"context"
	"io"
)

// NewForTest creates an archive writing through newWriter instead of
// Cloud Storage
func NewForTest(prefix string, newWriter func(ctx context.Context, object string) io.WriteCloser) *Archive {
	return &Archive{
		bucket:    "test-bucket",
		prefix:    prefix,
		newWriter: newWriter,
	}
}
