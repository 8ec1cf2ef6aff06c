package types

// Urgency is the attention level of a notification
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Rank orders urgencies, normal being the lowest
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 3
	case UrgencyHigh:
		return 2
	case UrgencyNormal:
		return 1
	default:
		return 0
	}
}

// Channels returns the delivery channels selected for this urgency
func (u Urgency) Channels() []Channel {
	switch u {
	case UrgencyUrgent:
		return []Channel{ChannelInApp, ChannelEmail, ChannelChat, ChannelSMS}
	case UrgencyHigh:
		return []Channel{ChannelInApp, ChannelEmail}
	default:
		return []Channel{ChannelInApp}
	}
}

func (u Urgency) String() string {
	return string(u)
}
