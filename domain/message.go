// Package domain contains core concepts of the messaging system.
// This file defines Message values and related rules.
// Messages are immutable once persisted.
package domain

import "time"

type MessageType string

const (
	MessageText MessageType = "text"
)

// DeliveryStatus is the local lifecycle of a message. Only StatusSent
// ever comes back from the store; pending and failed exist purely for
// the optimistic render of an outgoing message.
type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusPending DeliveryStatus = "pending"
	StatusFailed  DeliveryStatus = "failed"
)

// MaxContentLength is the single hard limit on a message body.
const MaxContentLength = 5000

// Message is one entry of a conversation, viewer-relative.
// Own is derived locally by comparing the sender id to the viewer id;
// it is never sent by the remote side.
type Message struct {
	ID          string
	Sender      EntityRef
	SenderName  string
	SenderImage string
	Recipient   EntityRef
	Content     string
	Type        MessageType
	Read        bool
	CreatedAt   time.Time
	Own         bool
	Status      DeliveryStatus
}

// WithOwnership returns a copy with Own derived from the viewer's id.
func (m Message) WithOwnership(viewer EntityRef) Message {
	m.Own = m.Sender.ID == viewer.ID
	return m
}

// ConversationKey returns the unordered pair key of the conversation
// this message belongs to.
func (m Message) ConversationKey() string {
	return PairKey(m.Sender.ID, m.Recipient.ID)
}
