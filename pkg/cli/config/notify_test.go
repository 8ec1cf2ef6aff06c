package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/cli/config"
	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/service/transport"
)

func channelsOf(t *testing.T, n *config.Notify) []types.Channel {
	t.Helper()
	transports, err := n.Configure(transport.NewHub(), nil)
	gt.NoError(t, err).Required()
	channels := make([]types.Channel, 0, len(transports))
	for _, tr := range transports {
		channels = append(channels, tr.Channel())
	}
	return channels
}

func TestNotify(t *testing.T) {
	t.Run("in-app only by default", func(t *testing.T) {
		channels := channelsOf(t, config.NewNotifyForTest("", "", "", ""))
		gt.Value(t, channels).Equal([]types.Channel{types.ChannelInApp})
	})

	t.Run("email and SMS", func(t *testing.T) {
		n := config.NewNotifyForTest("https://ringi.example.com", "localhost:25", "ringi@example.com", "https://sms.example.com/send")
		channels := channelsOf(t, n)
		gt.Value(t, channels).Equal([]types.Channel{types.ChannelInApp, types.ChannelEmail, types.ChannelSMS})
	})

	t.Run("incomplete SMTP settings", func(t *testing.T) {
		n := config.NewNotifyForTest("", "localhost:25", "", "")
		_, err := n.Configure(transport.NewHub(), nil)
		gt.Error(t, err).Is(config.ErrIncompleteSMTP)
	})
}
