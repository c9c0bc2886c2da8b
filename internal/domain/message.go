package domain

import "time"

// Channel is where a generated message is posted
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelSocial Channel = "social"
	ChannelChat   Channel = "chat"
)

// GeneratedMessage is a rendered announcement for one channel
type GeneratedMessage struct {
	Channel Channel `json:"channel"`
	Subject string  `json:"subject,omitempty"` // email only
	Text    string  `json:"text"`
	HTML    string  `json:"html,omitempty"` // email only
}

// MessageSet holds the three variants for one run date
type MessageSet struct {
	RunDate time.Time        `json:"run_date"`
	Email   GeneratedMessage `json:"email"`
	Social  GeneratedMessage `json:"social"`
	Chat    GeneratedMessage `json:"chat"`
}
