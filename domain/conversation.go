package domain

import "time"

// Conversation is the viewer-relative summary of the exchange with one
// counterpart. It is materialized on each aggregator refresh and only
// patched in place by targeted real-time updates.
type Conversation struct {
	ConversationID string
	Other          EntityRef
	OtherName      string
	OtherImage     string
	LastMessage    string
	LastMessageAt  time.Time
	LastSenderID   string
	Unread         int
}
