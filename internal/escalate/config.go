// CLAUDE:SUMMARY Escalation policy model — ordered levels with delay, channels and per-channel targets.
package escalate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Known notification channels.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
	ChannelPush    = "push"
)

// Level is one ordered step of an alert's notification policy.
type Level struct {
	DelayMinutes int            `json:"delay_minutes"`
	Channels     []string       `json:"channels"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	WebhookURL   string         `json:"webhook_url,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	// Manual marks a level as user-triggered only; the automatic scanner
	// skips it.
	Manual bool `json:"manual,omitempty"`
}

// Target returns the channel-specific recipient for this level.
func (l *Level) Target(channel string) string {
	switch strings.ToLower(channel) {
	case ChannelEmail:
		return l.Email
	case ChannelSMS:
		return l.Phone
	case ChannelWebhook, ChannelPush:
		return l.WebhookURL
	default:
		return ""
	}
}

// Config is an alert rule's ordered escalation policy.
type Config struct {
	Levels []Level `json:"levels"`
}

// ParseConfig decodes the escalation policy stored on a rule. An empty
// string means no escalation.
func ParseConfig(escalationJSON string) (*Config, error) {
	if strings.TrimSpace(escalationJSON) == "" {
		return &Config{}, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(escalationJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse escalation config: %w", err)
	}
	return &cfg, nil
}
