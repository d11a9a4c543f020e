package models

import (
	"errors"
	"time"
)

// Channel is the transport used for a send.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
)

// Validate checks the channel is one of the supported transports.
func (c Channel) Validate() error {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat:
		return nil
	default:
		return ErrInvalidChannel
	}
}

// RenderedContent is the output of template rendering for one lead.
type RenderedContent struct {
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// DeliveryReceipt is returned by a channel transport after a successful send.
type DeliveryReceipt struct {
	ProviderID string    `json:"provider_id"`
	SentAt     time.Time `json:"sent_at"`
}

// CommunicationRecord is the audit row written after a successful send.
// Recording is best-effort: a failed write never invalidates a sent message.
type CommunicationRecord struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	CampaignID  string          `json:"campaign_id"`
	LeadID      string          `json:"lead_id"`
	TemplateID  string          `json:"template_id"`
	Channel     Channel         `json:"channel"`
	Content     RenderedContent `json:"content"`
	SentAt      time.Time       `json:"sent_at"`
}

var (
	// ErrInvalidChannel is returned for an unsupported channel name
	ErrInvalidChannel = errors.New("invalid channel")
)
