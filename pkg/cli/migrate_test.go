package cli

import (
	"testing"

	"github.com/m-mizutani/gt"
)

func TestGetIndexConfig(t *testing.T) {
	t.Run("default collection names", func(t *testing.T) {
		cfg := getIndexConfig("")
		gt.Array(t, cfg.Collections).Length(1).Required()
		gt.Value(t, cfg.Collections[0].Name).Equal("notifications")
		gt.Array(t, cfg.Collections[0].Indexes).Length(3)
	})

	t.Run("prefixed collection names", func(t *testing.T) {
		cfg := getIndexConfig("staging")
		gt.Value(t, cfg.Collections[0].Name).Equal("staging_notifications")
	})
}
