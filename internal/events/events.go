package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Type string

const (
	TypeTransactionCreated Type = "transaction.created"
	TypeStockChanged       Type = "stock.changed"
	TypePaymentUpdated     Type = "payment.updated"
)

// Event is the envelope every consumer sees, regardless of transport.
type Event struct {
	Type      Type            `json:"type"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func BranchTopic(branchID string) string { return "branch." + branchID }
func OwnerTopic(ownerID string) string   { return "owner." + ownerID }

type Publisher interface {
	Publish(ctx context.Context, topic string, eventType Type, payload any) error
}

// Broker is the in-process publisher. Subscribe channels are unbounded in the
// sense that a slow consumer drops events rather than blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
}

type subscription struct {
	topic  string
	types  map[Type]struct{}
	ch     chan Event
	broker *Broker
}

const subscriberBuffer = 64

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*subscription)}
}

func (b *Broker) Publish(_ context.Context, topic string, eventType Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	evt := Event{
		Type:      eventType,
		Topic:     topic,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, sub := range b.subs[topic] {
		if len(sub.types) > 0 {
			if _, ok := sub.types[eventType]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			// Consumer is not keeping up; drop instead of stalling checkout.
		}
	}
	return nil
}

// Subscribe returns a stream of events for the topic, filtered to the given
// types (all types when none are given). Cancel stops delivery and closes the
// channel.
func (b *Broker) Subscribe(topic string, types ...Type) (<-chan Event, func()) {
	sub := &subscription{
		topic:  topic,
		ch:     make(chan Event, subscriberBuffer),
		broker: b,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() { once.Do(func() { b.unsubscribe(sub) }) }
	return sub.ch, cancel
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Close shuts down all streams. Publish becomes a no-op afterwards.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*subscription)
	return nil
}
