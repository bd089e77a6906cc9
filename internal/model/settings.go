package model

import (
	"strings"
	"time"
)

type ProviderSettings struct {
	Token         string    `json:"token"`
	PhoneNumber   string    `json:"phoneNumber"`
	Enabled       bool      `json:"isEnabled"`
	Notifications []string  `json:"notifications"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Configured reports whether both the provider token and the originating
// phone number are set.
func (s ProviderSettings) Configured() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.PhoneNumber) != ""
}
