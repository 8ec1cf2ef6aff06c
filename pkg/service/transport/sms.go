package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/domain/interfaces"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/safe"
)

// maxSMSRunes keeps a message within one concatenated SMS segment pair
const maxSMSRunes = 300

// SMS delivers notifications through an HTTP SMS gateway that accepts
// {"to": ..., "body": ...} as JSON
type SMS struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ interfaces.Transport = &SMS{}

type SMSOption func(*SMS)

// WithSMSHTTPClient replaces the HTTP client
func WithSMSHTTPClient(client *http.Client) SMSOption {
	return func(s *SMS) {
		s.client = client
	}
}

// NewSMS creates an SMS transport. token is sent as a bearer token when set.
func NewSMS(endpoint, token string, opts ...SMSOption) (*SMS, error) {
	if endpoint == "" {
		return nil, goerr.New("SMS gateway endpoint is required")
	}

	s := &SMS{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SMS) Channel() types.Channel {
	return types.ChannelSMS
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *SMS) Send(ctx context.Context, address string, n *model.Notification) error {
	body, err := json.Marshal(smsRequest{To: address, Body: smsBody(n)})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal SMS request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to create SMS request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call SMS gateway", goerr.V("notification_id", n.ID))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return goerr.New("SMS gateway returned an error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(detail)),
			goerr.V("notification_id", n.ID))
	}
	return nil
}

func smsBody(n *model.Notification) string {
	text := n.Title
	if n.Metadata.ProjectTitle != "" {
		text += " - " + n.Metadata.ProjectTitle
	}
	if n.Message != "" {
		text += ": " + n.Message
	}

	if utf8.RuneCountInString(text) <= maxSMSRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxSMSRunes-1]) + "…"
}
