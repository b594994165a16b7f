package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"

	"github.com/corpcraft/gatekeeper/internal/clock"
	"github.com/corpcraft/gatekeeper/internal/idgen"
	"github.com/corpcraft/gatekeeper/service/messaging"
	qfs "github.com/corpcraft/gatekeeper/service/messaging/fs"
	qmem "github.com/corpcraft/gatekeeper/service/messaging/memory"
)

// Envelope wraps a published payload with its topic and a delivery identity.
// The ID is assigned once per Publish and shared by every subscriber's copy,
// so consumers can deduplicate redeliveries caused by at-least-once queues.
type Envelope[T any] struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
	Data      T         `json:"data"`
}

// Subscription is one consumer's view of the bus: a private queue fed with
// every envelope whose topic matches one of the subscribed patterns.
type Subscription[T any] struct {
	name   string
	topics []string
	queue  messaging.Queue[Envelope[T]]
}

// Name returns the subscriber name given at Subscribe time.
func (s *Subscription[T]) Name() string { return s.name }

// Consume blocks until an envelope is delivered or ctx is cancelled.
func (s *Subscription[T]) Consume(ctx context.Context) (messaging.Message[Envelope[T]], error) {
	return s.queue.Consume(ctx)
}

// Matches reports whether the subscription receives the given topic. A
// pattern ending in ".*" matches every topic sharing the prefix, e.g.
// "approval.*" matches "approval.decided".
func (s *Subscription[T]) Matches(topic string) bool {
	for _, pattern := range s.topics {
		if pattern == topic {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, ".*"); ok && strings.HasPrefix(topic, prefix+".") {
			return true
		}
	}
	return false
}

// Service is a topic-based publish/subscribe fan-out. Each subscriber owns a
// dedicated queue; Publish copies the envelope into every matching queue.
type Service[T any] struct {
	queueVendor messaging.Vendor
	fsBaseURL   string
	memConfig   qmem.Config

	mu   sync.RWMutex
	subs []*Subscription[T]
}

// Option customises a bus Service.
type Option[T any] func(*Service[T])

// WithMemoryConfig overrides the configuration of per-subscriber memory
// queues.
func WithMemoryConfig[T any](config qmem.Config) Option[T] {
	return func(s *Service[T]) { s.memConfig = config }
}

// WithFSBaseURL sets the afs location under which per-subscriber fs queues
// are created. Required for the fs vendor.
func WithFSBaseURL[T any](baseURL string) Option[T] {
	return func(s *Service[T]) { s.fsBaseURL = baseURL }
}

// New creates a bus backed by the given queue vendor.
func New[T any](queueVendor messaging.Vendor, options ...Option[T]) (*Service[T], error) {
	ret := &Service[T]{
		queueVendor: queueVendor,
		memConfig:   qmem.DefaultConfig(),
	}
	for _, option := range options {
		option(ret)
	}
	switch queueVendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if ret.fsBaseURL == "" {
			return nil, fmt.Errorf("fs queue vendor requires a base URL")
		}
	default:
		return nil, fmt.Errorf("unsupported queue vendor: %s", queueVendor)
	}
	return ret, nil
}

// Subscribe registers a named consumer for the given topic patterns and
// returns its subscription.
func (s *Service[T]) Subscribe(name string, topics ...string) (*Subscription[T], error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("subscriber %s: at least one topic is required", name)
	}
	queue, err := s.newQueue(name)
	if err != nil {
		return nil, err
	}
	sub := &Subscription[T]{name: name, topics: topics, queue: queue}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

// Publish delivers the payload to every subscription matching the topic.
func (s *Service[T]) Publish(ctx context.Context, topic string, data *T) error {
	env := Envelope[T]{
		ID:        idgen.New(),
		Topic:     topic,
		CreatedAt: clock.Now(),
		Data:      *data,
	}
	s.mu.RLock()
	subs := make([]*Subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Matches(topic) {
			continue
		}
		if err := sub.queue.Publish(ctx, &env); err != nil {
			return fmt.Errorf("failed to deliver %s to %s: %w", topic, sub.name, err)
		}
	}
	return nil
}

func (s *Service[T]) newQueue(name string) (messaging.Queue[Envelope[T]], error) {
	switch s.queueVendor {
	case messaging.VendorFS:
		return qfs.NewQueue[Envelope[T]](afs.New(), qfs.DefaultConfig(s.fsBaseURL+"/"+name))
	default:
		return qmem.NewQueue[Envelope[T]](s.memConfig), nil
	}
}
