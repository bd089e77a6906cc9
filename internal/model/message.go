package model

import "time"

type Status string

const (
	// sent messages
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Failed    Status = "failed"

	// received messages
	Unread Status = "unread"
	Read   Status = "read"
)

type Direction string

const (
	Inbound  Direction = "received"
	Outbound Direction = "sent"
)

// Message is a sent or received record owned by a single user.
// Timestamp is the provider-reported time when one was available, CreatedAt is
// always the server insertion time.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Direction Direction `json:"direction"`
	Address   string    `json:"address"`
	Body      string    `json:"body"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// InboundRecord is one provider message after normalization.
type InboundRecord struct {
	Sender  string
	Body    string
	Time    time.Time
	HasTime bool
}

type OutboundRecord struct {
	Recipient string
	Body      string
	Status    Status
}
