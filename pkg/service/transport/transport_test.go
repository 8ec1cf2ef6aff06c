package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/slack"
	"github.com/secmon-lab/ringi/pkg/service/transport"
	goslack "github.com/slack-go/slack"
)

func newTestNotification() *model.Notification {
	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &model.Notification{
		ID:          "n-1",
		RecipientID: "bob",
		Type:        types.NotificationTypeApprovalRequest,
		Title:       "Approval requested",
		Message:     "Ward renovation needs your review",
		CreatedAt:   due.Add(-48 * time.Hour),
		DueAt:       &due,
		Actions: []model.NotificationAction{
			{Label: "Approve", Kind: types.ActionKindPrimary, Token: types.ActionTokenApprove},
			{Label: "Reject", Kind: types.ActionKindDanger, Token: types.ActionTokenReject, RequiresComment: true},
			{Label: "View", Kind: types.ActionKindSecondary, Token: types.ActionTokenView},
		},
		Metadata: model.NotificationMetadata{
			ProjectID:    "p-1",
			ProjectTitle: "Ward renovation",
			StageKind:    types.StageKindLeadReview,
		},
		Urgency: types.UrgencyUrgent,
	}
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	hub := transport.NewHub()
	gt.Value(t, hub.Channel()).Equal(types.ChannelInApp)

	t.Run("delivers to every stream of the recipient", func(t *testing.T) {
		ch1, cancel1 := hub.Subscribe("bob")
		defer cancel1()
		ch2, cancel2 := hub.Subscribe("bob")
		defer cancel2()
		other, cancelOther := hub.Subscribe("carol")
		defer cancelOther()

		n := newTestNotification()
		gt.NoError(t, hub.Send(ctx, "bob", n))

		gt.Value(t, (<-ch1).ID).Equal(n.ID)
		gt.Value(t, (<-ch2).ID).Equal(n.ID)
		select {
		case <-other:
			t.Fatal("carol must not receive bob's notification")
		default:
		}
	})

	t.Run("send without subscribers succeeds", func(t *testing.T) {
		gt.NoError(t, hub.Send(ctx, "nobody", newTestNotification()))
	})

	t.Run("unsubscribe closes the stream", func(t *testing.T) {
		ch, cancel := hub.Subscribe("dave")
		gt.Value(t, hub.Subscribers("dave")).Equal(1)
		cancel()
		cancel()
		_, open := <-ch
		gt.Bool(t, open).False()
		gt.Value(t, hub.Subscribers("dave")).Equal(0)
	})

	t.Run("full stream drops instead of blocking", func(t *testing.T) {
		_, cancel := hub.Subscribe("erin")
		defer cancel()
		for i := 0; i < transport.DefaultSubscriberBuffer+5; i++ {
			gt.NoError(t, hub.Send(ctx, "erin", newTestNotification()))
		}
	})
}

func TestEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("requires address and sender", func(t *testing.T) {
		_, err := transport.NewEmail("", "ringi@example.com")
		gt.Error(t, err)
		_, err = transport.NewEmail("smtp.example.com:25", "")
		gt.Error(t, err)
	})

	t.Run("sends a plain text message", func(t *testing.T) {
		e, err := transport.NewEmail("smtp.example.com:25", "ringi@example.com",
			transport.WithEmailBaseURL("https://ringi.example.com/"))
		gt.NoError(t, err).Required()

		var gotTo []string
		var gotMsg string
		e.SetSendMail(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gt.Value(t, addr).Equal("smtp.example.com:25")
			gt.Value(t, from).Equal("ringi@example.com")
			gotTo = to
			gotMsg = string(msg)
			return nil
		})

		gt.NoError(t, e.Send(ctx, "bob@example.com", newTestNotification())).Required()
		gt.Array(t, gotTo).Length(1)
		gt.Value(t, gotTo[0]).Equal("bob@example.com")
		gt.Bool(t, strings.Contains(gotMsg, "Subject: [URGENT] Approval requested")).True()
		gt.Bool(t, strings.Contains(gotMsg, "Open: https://ringi.example.com/api/notifications/n-1\r\n")).True()
		gt.Bool(t, strings.Contains(gotMsg, "Actions: Approve")).True()
		gt.Bool(t, strings.Contains(gotMsg, "?action=")).False()
	})

	t.Run("relay failure is returned", func(t *testing.T) {
		e, err := transport.NewEmail("smtp.example.com:25", "ringi@example.com")
		gt.NoError(t, err).Required()
		e.SetSendMail(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			return errors.New("connection refused")
		})
		gt.Error(t, e.Send(ctx, "bob@example.com", newTestNotification()))
	})
}

func TestSMS(t *testing.T) {
	ctx := context.Background()

	t.Run("posts to the gateway", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.Value(t, r.Header.Get("Authorization")).Equal("Bearer secret")
			gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		s, err := transport.NewSMS(srv.URL, "secret")
		gt.NoError(t, err).Required()
		gt.NoError(t, s.Send(ctx, "+810000", newTestNotification())).Required()
		gt.Value(t, got["to"]).Equal("+810000")
		gt.Bool(t, strings.HasPrefix(got["body"], "Approval requested - Ward renovation")).True()
	})

	t.Run("gateway error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		s, err := transport.NewSMS(srv.URL, "")
		gt.NoError(t, err).Required()
		gt.Error(t, s.Send(ctx, "+810000", newTestNotification()))
	})

	t.Run("long bodies are cut", func(t *testing.T) {
		n := newTestNotification()
		n.Message = strings.Repeat("あ", 500)
		body := transport.SMSBody(n)
		gt.Value(t, len([]rune(body))).Equal(300)
	})
}

type mockSlackService struct {
	postedUserID string
	postedBlocks []goslack.Block
	postErr      error
}

func (m *mockSlackService) GetUserInfo(ctx context.Context, userID string) (*slack.User, error) {
	return nil, nil
}

func (m *mockSlackService) LookupUserByEmail(ctx context.Context, email string) (*slack.User, error) {
	return nil, nil
}

func (m *mockSlackService) PostDirectMessage(ctx context.Context, userID string, blocks []goslack.Block, text string) (string, string, error) {
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.postedUserID = userID
	m.postedBlocks = blocks
	return "D1", "1.0", nil
}

func (m *mockSlackService) UpdateMessage(ctx context.Context, channelID string, timestamp string, blocks []goslack.Block, text string) error {
	return nil
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("posts a DM with action buttons", func(t *testing.T) {
		svc := &mockSlackService{}
		c := transport.NewChat(svc)
		gt.Value(t, c.Channel()).Equal(types.ChannelChat)

		gt.NoError(t, c.Send(ctx, "U0BOB", newTestNotification())).Required()
		gt.Value(t, svc.postedUserID).Equal("U0BOB")

		var actionBlock *goslack.ActionBlock
		for _, b := range svc.postedBlocks {
			if ab, ok := b.(*goslack.ActionBlock); ok {
				actionBlock = ab
			}
		}
		gt.Value(t, actionBlock).NotNil().Required()
		// View has no button
		gt.Array(t, actionBlock.Elements.ElementSet).Length(2).Required()

		btn := actionBlock.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
		gt.Value(t, btn.ActionID).Equal("ringi_approve")
		gt.Value(t, btn.Value).Equal("n-1")
		gt.Value(t, btn.Style).Equal(goslack.StylePrimary)
	})

	t.Run("links to the notification", func(t *testing.T) {
		gt.Value(t, transport.NotificationURL("https://ringi.example.com/", "n-1")).
			Equal("https://ringi.example.com/api/notifications/n-1")

		var found bool
		for _, b := range transport.NotificationBlocks(newTestNotification(), "https://ringi.example.com") {
			cb, ok := b.(*goslack.ContextBlock)
			if !ok {
				continue
			}
			for _, el := range cb.ContextElements.Elements {
				if txt, ok := el.(*goslack.TextBlockObject); ok &&
					strings.Contains(txt.Text, "<https://ringi.example.com/api/notifications/n-1|Open>") {
					found = true
				}
			}
		}
		gt.Bool(t, found).True()
	})

	t.Run("actioned notification has no buttons", func(t *testing.T) {
		n := newTestNotification()
		n.Actioned = true
		n.ActionTaken = types.ActionTokenApprove
		for _, b := range transport.NotificationBlocks(n, "") {
			_, isAction := b.(*goslack.ActionBlock)
			gt.Bool(t, isAction).False()
		}
	})

	t.Run("post failure is returned", func(t *testing.T) {
		c := transport.NewChat(&mockSlackService{postErr: errors.New("channel_not_found")})
		gt.Error(t, c.Send(ctx, "U0BOB", newTestNotification()))
	})
}

func TestParseSlackActionID(t *testing.T) {
	token, ok := transport.ParseSlackActionID(transport.SlackActionID(types.ActionTokenVote))
	gt.Bool(t, ok).True()
	gt.Value(t, token).Equal(types.ActionTokenVote)

	_, ok = transport.ParseSlackActionID("hc_assign")
	gt.Bool(t, ok).False()

	_, ok = transport.ParseSlackActionID(transport.SlackActionIDPrefix)
	gt.Bool(t, ok).False()
}

func TestTruncateToMaxBytes(t *testing.T) {
	gt.Value(t, transport.TruncateToMaxBytes("hello", 10)).Equal("hello")
	gt.Value(t, transport.TruncateToMaxBytes("hello", 3)).Equal("hel")
	// "あ" is three bytes
	gt.Value(t, transport.TruncateToMaxBytes("ああ", 4)).Equal("あ")
}
