package types

// Channel is a notification delivery channel
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
)

// AllChannels returns all channels
func AllChannels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelChat, ChannelSMS}
}

func (c Channel) String() string {
	return string(c)
}

// DeliveryStatus is the outcome of one channel delivery attempt
type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)
