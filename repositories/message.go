//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"gigspot/domain"
	"gigspot/domain/event"
)

// Publisher is notified after a message row has been committed. The
// change-feed broker satisfies it; a nil publisher disables push.
type Publisher interface {
	Publish(e event.MessageInserted)
}

// MessageRepository persists message rows and conversation summary rows
// in BadgerDB. Summary rows are maintained transactionally at write
// time so that the grouped conversation query is a single prefix scan
// instead of a reduction over the full message set.
type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	feed     Publisher
	pageSize *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, feed Publisher, pageSize *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, feed: feed, pageSize: pageSize}
}

// messageRow is the JSON shape of one persisted message.
type messageRow struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	SenderType    string `json:"sender_type"`
	RecipientID   string `json:"recipient_id"`
	RecipientType string `json:"recipient_type"`
	Content       string `json:"content"`
	Type          string `json:"type"`
	Read          bool   `json:"read"`
	At            int64  `json:"at"` // unix nanoseconds, UTC
}

// conversationRow is the per-owner summary of one counterpart.
type conversationRow struct {
	CounterpartID   string `json:"counterpart_id"`
	CounterpartType string `json:"counterpart_type"`
	LastMessage     string `json:"last_message"`
	LastSenderID    string `json:"last_sender_id"`
	LastAt          int64  `json:"last_at"`
	Unread          int    `json:"unread"`
}

// messageKey formats the row key so that a plain forward prefix scan
// yields chronological order:
//  1. the 19-digit zero padding keeps lexicographical order equal to
//     time order;
//  2. the uuid suffix disambiguates two rows in the same nanosecond.
func messageKey(pair string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", pair, at.UnixNano(), id))
}

func conversationKey(ownerID, counterpartID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:%s", ownerID, counterpartID))
}

// Append persists the message under a store-assigned id and timestamp,
// updates both participants' summary rows in the same transaction, and
// publishes the insert event once committed.
func (m *MessageRepository) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	canonical := msg
	canonical.ID = uuid.NewString()
	canonical.CreatedAt = time.Now().UTC()
	canonical.Read = false
	canonical.Status = domain.StatusSent

	row := fromMessage(canonical)
	data, err := json.Marshal(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal message row: %w", err)
	}

	pair := canonical.ConversationKey()
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(pair, canonical.CreatedAt, canonical.ID), data); err != nil {
			return err
		}
		// Sender side: last message moves, unread untouched.
		if err := m.bumpSummary(txn, canonical.Sender.ID, canonical.Recipient, canonical, false); err != nil {
			return err
		}
		// Recipient side: last message moves and one more unread.
		return m.bumpSummary(txn, canonical.Recipient.ID, canonical.Sender, canonical, true)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}

	if m.feed != nil {
		m.feed.Publish(event.MessageInserted{
			MessageID: canonical.ID,
			Sender:    canonical.Sender,
			Recipient: canonical.Recipient,
			Content:   canonical.Content,
			Type:      canonical.Type,
			CreatedAt: canonical.CreatedAt,
		})
	}
	return canonical, nil
}

// bumpSummary rewrites the owner's summary row for the counterpart.
// Last-message fields only move forward in time, so a late concurrent
// writer cannot regress a newer summary.
func (m *MessageRepository) bumpSummary(txn *badger.Txn, ownerID string, counterpart domain.EntityRef, msg domain.Message, incrementUnread bool) error {
	key := conversationKey(ownerID, counterpart.ID)
	row := conversationRow{
		CounterpartID:   counterpart.ID,
		CounterpartType: string(counterpart.Type),
	}

	item, err := txn.Get(key)
	switch err {
	case nil:
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return err
		}
	case badger.ErrKeyNotFound:
		// First message of this pair, fresh row.
	default:
		return err
	}

	if msg.CreatedAt.UnixNano() >= row.LastAt {
		row.LastMessage = msg.Content
		row.LastSenderID = msg.Sender.ID
		row.LastAt = msg.CreatedAt.UnixNano()
	}
	if incrementUnread {
		row.Unread++
	}

	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// History returns the full conversation ascending by time. There is no
// bound on the number of rows; callers that care should use HistoryPage.
func (m *MessageRepository) History(ctx context.Context, viewer, counterpart domain.EntityRef) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []messageRow
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.PairKey(viewer.ID, counterpart.ID)))
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row messageRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history scan: %w", err)
	}
	return lo.Map(rows, func(row messageRow, _ int) domain.Message {
		return toMessage(row)
	}), nil
}

// HistoryPage walks the conversation backwards from the cursor (nil
// means newest) and returns one page in ascending order, plus the
// cursor of the next older page. The cursor is the key suffix of the
// oldest row returned, as in a keyset pagination.
func (m *MessageRepository) HistoryPage(ctx context.Context, viewer, counterpart domain.EntityRef, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	prefixStr := fmt.Sprintf("msg:%s:", domain.PairKey(viewer.ID, counterpart.ID))
	prefix := []byte(prefixStr)

	var rows []messageRow
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.pageSize != nil && len(rows) == *m.pageSize {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			var row messageRow
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("history page scan: %w", err)
	}

	// Collected newest-first, the page itself is served ascending.
	lo.Reverse(rows)
	messages := lo.Map(rows, func(row messageRow, _ int) domain.Message {
		return toMessage(row)
	})
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// Summaries returns one summary per counterpart of the viewer, straight
// from the maintained summary rows. A single prefix scan; no message
// rows are touched.
func (m *MessageRepository) Summaries(ctx context.Context, viewer domain.EntityRef) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []conversationRow
	prefix := []byte(fmt.Sprintf("conv:%s:", viewer.ID))
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row conversationRow
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("summary scan: %w", err)
	}
	return lo.Map(rows, func(row conversationRow, _ int) domain.Conversation {
		return domain.Conversation{
			ConversationID: domain.PairKey(viewer.ID, row.CounterpartID),
			Other: domain.EntityRef{
				ID:   row.CounterpartID,
				Type: domain.EntityType(row.CounterpartType),
			},
			LastMessage:   row.LastMessage,
			LastMessageAt: time.Unix(0, row.LastAt).UTC(),
			LastSenderID:  row.LastSenderID,
			Unread:        row.Unread,
		}
	}), nil
}

// MarkRead flips every unread message from counterpart to viewer and
// zeroes the viewer's unread counter for that counterpart. Calling it
// again is a no-op.
func (m *MessageRepository) MarkRead(ctx context.Context, viewer, counterpart domain.EntityRef) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var flipped int
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.PairKey(viewer.ID, counterpart.ID)))
	err := m.db.Update(func(txn *badger.Txn) error {
		flipped = 0
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var row messageRow
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return err
			}
			if row.Read || row.RecipientID != viewer.ID {
				continue
			}
			row.Read = true
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := txn.Set(item.KeyCopy(nil), data); err != nil {
				return err
			}
			flipped++
		}

		// Reset the summary counter even when no message row changed,
		// so a counter that drifted converges back to the truth.
		key := conversationKey(viewer.ID, counterpart.ID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var row conversationRow
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return err
		}
		if row.Unread == 0 {
			return nil
		}
		row.Unread = 0
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if flipped > 0 {
		m.log.Debug("Messages marked read", "viewer", viewer.ID, "counterpart", counterpart.ID, "count", flipped)
	}
	return flipped, nil
}

func fromMessage(msg domain.Message) messageRow {
	return messageRow{
		ID:            msg.ID,
		SenderID:      msg.Sender.ID,
		SenderType:    string(msg.Sender.Type),
		RecipientID:   msg.Recipient.ID,
		RecipientType: string(msg.Recipient.Type),
		Content:       msg.Content,
		Type:          string(msg.Type),
		Read:          msg.Read,
		At:            msg.CreatedAt.UnixNano(),
	}
}

func toMessage(row messageRow) domain.Message {
	return domain.Message{
		ID:        row.ID,
		Sender:    domain.EntityRef{ID: row.SenderID, Type: domain.EntityType(row.SenderType)},
		Recipient: domain.EntityRef{ID: row.RecipientID, Type: domain.EntityType(row.RecipientType)},
		Content:   row.Content,
		Type:      domain.MessageType(row.Type),
		Read:      row.Read,
		CreatedAt: time.Unix(0, row.At).UTC(),
		Status:    domain.StatusSent,
	}
}
