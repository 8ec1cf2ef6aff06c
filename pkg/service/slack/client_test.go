package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	goslack "github.com/slack-go/slack"
)

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates service when token is provided", func(t *testing.T) {
		svc, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func newFakeSlackAPI(t *testing.T, lookups *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}

	mux.HandleFunc("/users.lookupByEmail", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(lookups, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if r.Form.Get("email") != "bob@example.com" {
			writeJSON(w, map[string]any{"ok": false, "error": "users_not_found"})
			return
		}
		writeJSON(w, map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":        "U0BOB",
				"name":      "bob",
				"real_name": "Bob Builder",
				"profile":   map[string]any{"email": "bob@example.com", "phone": "+810000"},
			},
		})
	})
	mux.HandleFunc("/conversations.open", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "channel": map[string]any{"id": "D0BOB"}})
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		writeJSON(w, map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "1700000000.000100"})
	})
	mux.HandleFunc("/chat.update", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "channel": "D0BOB", "ts": "1700000000.000100", "text": "updated"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupUserByEmail(t *testing.T) {
	var lookups int32
	srv := newFakeSlackAPI(t, &lookups)

	svc, err := slack.New("test-token", slack.WithAPIURL(srv.URL+"/"), slack.TestWithCacheTTL(time.Minute))
	gt.NoError(t, err).Required()
	ctx := context.Background()

	t.Run("resolves and caches a known user", func(t *testing.T) {
		user, err := svc.LookupUserByEmail(ctx, "bob@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, user).NotNil().Required()
		gt.Value(t, user.ID).Equal("U0BOB")
		gt.Value(t, user.Phone).Equal("+810000")

		before := atomic.LoadInt32(&lookups)
		again, err := svc.LookupUserByEmail(ctx, "BOB@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, again.ID).Equal("U0BOB")
		gt.Value(t, atomic.LoadInt32(&lookups)).Equal(before)
	})

	t.Run("unknown address is not an error", func(t *testing.T) {
		user, err := svc.LookupUserByEmail(ctx, "nobody@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, user).Nil()
	})
}

func TestPostDirectMessage(t *testing.T) {
	var lookups int32
	srv := newFakeSlackAPI(t, &lookups)

	svc, err := slack.New("test-token", slack.WithAPIURL(srv.URL+"/"))
	gt.NoError(t, err).Required()
	ctx := context.Background()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "hello", false, false), nil, nil),
	}
	channelID, ts, err := svc.PostDirectMessage(ctx, "U0BOB", blocks, "hello")
	gt.NoError(t, err).Required()
	gt.Value(t, channelID).Equal("D0BOB")
	gt.Value(t, ts).Equal("1700000000.000100")

	gt.NoError(t, svc.UpdateMessage(ctx, channelID, ts, blocks, "updated"))
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	if token == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN is not set")
	}
	userID := os.Getenv("TEST_SLACK_USER_ID")
	if userID == "" {
		t.Skip("TEST_SLACK_USER_ID is not set")
	}

	ctx := context.Background()

	svc, err := slack.New(token)
	gt.NoError(t, err).Required()

	user, err := svc.GetUserInfo(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, user.ID).Equal(userID)

	t.Run("LookupUserByEmail finds the same user", func(t *testing.T) {
		if user.Email == "" {
			t.Skip("user has no email address")
		}
		found, err := svc.LookupUserByEmail(ctx, user.Email)
		gt.NoError(t, err).Required()
		gt.Value(t, found).NotNil().Required()
		gt.Value(t, found.ID).Equal(userID)
	})
}
