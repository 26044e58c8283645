// Package event defines the raw change-feed events consumed by the
// real-time synchronizer. Events mirror freshly inserted message rows;
// they carry no display identity, which is resolved on receipt.
package event

import (
	"time"

	"gigspot/domain"
)

// MessageInserted is emitted by the change feed for every new message
// row. Delivery is at-least-once and ordered per feed filter only.
type MessageInserted struct {
	MessageID string
	Sender    domain.EntityRef
	Recipient domain.EntityRef
	Content   string
	Type      domain.MessageType
	CreatedAt time.Time
}

// Participants returns the ids whose feed filters this event matches.
func (e MessageInserted) Participants() []string {
	if e.Sender.ID == e.Recipient.ID {
		return []string{e.Sender.ID}
	}
	return []string{e.Sender.ID, e.Recipient.ID}
}
