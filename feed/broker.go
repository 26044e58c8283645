// Package feed implements the in-process change feed: a
// subscribe/unsubscribe publish mechanism keyed by a participant
// filter, delivering insert events for new message rows with
// at-least-once semantics. Ordering holds per filter only.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/domain/event"
	"gigspot/errors"
)

// Broker fans newly inserted message events out to every subscription
// whose participant filter matches. Each subscription drains its own
// buffered channel in a dedicated goroutine, so one slow consumer
// delays its own delivery without losing events or blocking others.
//
// Broker is safe for concurrent use by multiple goroutines.
type Broker struct {
	mu     sync.RWMutex
	log    *slog.Logger
	buffer int
	closed bool
	subs   map[string]map[*subscription]struct{} // participant id -> subscriptions
}

func NewBroker(log *slog.Logger, buffer int) *Broker {
	return &Broker{
		log:    log,
		buffer: buffer,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

type subscription struct {
	broker      *Broker
	participant string
	events      chan event.MessageInserted
	done        chan struct{}
	once        sync.Once
}

// Subscribe registers a filter on the participant's id and starts the
// delivery goroutine. The subscription lives until Unsubscribe or until
// the given context is canceled.
func (b *Broker) Subscribe(ctx context.Context, participant domain.EntityRef, fn func(event.MessageInserted)) (contract.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if participant.ID == "" {
		return nil, errors.ErrProfileNotFound
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.ErrFeedClosed
	}
	sub := &subscription{
		broker:      b,
		participant: participant.ID,
		events:      make(chan event.MessageInserted, b.buffer),
		done:        make(chan struct{}),
	}
	if _, ok := b.subs[participant.ID]; !ok {
		b.subs[participant.ID] = make(map[*subscription]struct{})
	}
	b.subs[participant.ID][sub] = struct{}{}
	b.mu.Unlock()

	go sub.deliver(ctx, fn)
	return sub, nil
}

// Publish hands the event to every matching subscription. The send
// blocks once a subscription's buffer is full; the feed trades latency
// for the at-least-once contract instead of dropping.
func (b *Broker) Publish(e event.MessageInserted) {
	b.mu.RLock()
	var targets []*subscription
	for _, id := range e.Participants() {
		for sub := range b.subs[id] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- e:
		case <-sub.done:
			// Unsubscribed between snapshot and send.
		}
	}
}

// Close tears down every subscription. Further Subscribe calls fail
// with ErrFeedClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.done) })
	}
}

func (s *subscription) deliver(ctx context.Context, fn func(event.MessageInserted)) {
	for {
		select {
		case e := <-s.events:
			fn(e)
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Unsubscribe()
			return
		}
	}
}

// Unsubscribe removes the filter and stops delivery. Safe to call more
// than once; only the first call has an effect.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if set, ok := b.subs[s.participant]; ok {
			delete(set, s)
			// No empty sets left behind over time.
			if len(set) == 0 {
				delete(b.subs, s.participant)
			}
		}
		b.mu.Unlock()
		close(s.done)
	})
	return nil
}
