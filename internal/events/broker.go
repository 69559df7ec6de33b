// Package events fans session events out to connected clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before new events are dropped for it.
const subscriberBuffer = 16

// Subscription delivers the events of one session until closed.
type Subscription struct {
	ch    chan model.SessionEvent
	close func() error
	once  sync.Once
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan model.SessionEvent { return s.ch }

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.close() })
	return err
}

// RedisBroker publishes events on a per-session Redis channel so any server
// process can forward them to the client's stream.
type RedisBroker struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisBroker creates a RedisBroker.
func NewRedisBroker(rdb *redis.Client, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log.With().Str("component", "event_broker").Logger()}
}

func (b *RedisBroker) Publish(ctx context.Context, key model.SessionKey, ev model.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	channel := config.CacheKey.SessionEventsChannel(key.SurveyType, key.UserCode)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", key, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, key model.SessionKey) (*Subscription, error) {
	channel := config.CacheKey.SessionEventsChannel(key.SurveyType, key.UserCode)
	pubsub := b.rdb.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no event published right
	// after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan model.SessionEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev model.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed event")
				continue
			}
			select {
			case out <- ev:
			default:
				b.log.Warn().Str("channel", channel).Msg("Subscriber lagging, event dropped")
			}
		}
	}()
	return &Subscription{ch: out, close: pubsub.Close}, nil
}

// MemoryBroker delivers events within one process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[model.SessionKey]map[chan model.SessionEvent]struct{}
}

// NewMemoryBroker creates an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[model.SessionKey]map[chan model.SessionEvent]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, key model.SessionKey, ev model.SessionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[key] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, key model.SessionKey) (*Subscription, error) {
	ch := make(chan model.SessionEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan model.SessionEvent]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()

	return &Subscription{ch: ch, close: func() error {
		b.mu.Lock()
		delete(b.subs[key], ch)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
		b.mu.Unlock()
		close(ch)
		return nil
	}}, nil
}
