package monitor

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	pq "github.com/Workiva/go-datastructures/queue"

	"github.com/corpcraft/gatekeeper/internal/clock"
	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/bus"
	"github.com/corpcraft/gatekeeper/service/metrics"
)

// Actor is the identity the monitor stamps on expiry transitions and audit
// entries.
const Actor = "sla-monitor"

// entry is one scheduled deadline. Entries order by deadline, then id for a
// stable total order.
type entry struct {
	deadline time.Time
	id       string
}

// Compare implements queue.Item; the priority queue surfaces the earliest
// deadline first.
func (e *entry) Compare(other pq.Item) int {
	o := other.(*entry)
	switch {
	case e.deadline.Before(o.deadline):
		return -1
	case e.deadline.After(o.deadline):
		return 1
	}
	return strings.Compare(e.id, o.id)
}

// Service enforces that no pending approval outlives its deadline unnoticed.
// It keeps a deadline-ordered min-priority queue and a single scheduling loop
// that sleeps until the current minimum, never polling the full pending set.
type Service struct {
	engine   approval.Engine
	events   *bus.Service[approval.Event]
	metrics  *metrics.Metrics
	schedule *pq.PriorityQueue
	wake     chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// Option customises the monitor.
type Option func(*Service)

// WithMetrics attaches Prometheus collectors to the monitor.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates an SLA monitor over the given engine and event bus.
func New(engine approval.Engine, events *bus.Service[approval.Event], options ...Option) *Service {
	ret := &Service{
		engine:   engine,
		events:   events,
		schedule: pq.NewPriorityQueue(64, false),
		wake:     make(chan struct{}, 1),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Start seeds the schedule from the engine's pending set, subscribes to
// approval.requested and launches the scheduling loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sla-monitor already started")
	}

	// Records created before the monitor came up still get a deadline.
	pending, err := s.engine.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if err := s.schedule.Put(&entry{deadline: rec.Deadline, id: rec.ID}); err != nil {
			return err
		}
	}

	sub, err := s.events.Subscribe(Actor, approval.TopicApprovalRequested)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.intake(runCtx, sub)
	go s.run(runCtx)
	return nil
}

// Shutdown stops the scheduling loop and waits for it to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// intake inserts newly requested approvals into the schedule and wakes the
// loop so it can re-evaluate the minimum deadline.
func (s *Service) intake(ctx context.Context, sub *bus.Subscription[approval.Event]) {
	defer s.wg.Done()
	for {
		msg, err := sub.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		rec := msg.T().Data.Record
		if rec == nil {
			_ = msg.Ack()
			continue
		}
		if err := s.schedule.Put(&entry{deadline: rec.Deadline, id: rec.ID}); err != nil {
			_ = msg.Nack(err)
			continue
		}
		_ = msg.Ack()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// run is the scheduling loop: wait until the earliest deadline, pop due
// entries and expire them. Resolved records surface as tombstones discovered
// lazily at pop time.
func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		head := s.schedule.Peek()
		if head == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		next := head.(*entry)
		if delay := next.deadline.Sub(clock.Now()); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				// An earlier deadline may have arrived; recompute the minimum.
				timer.Stop()
				continue
			case <-timer.C:
				continue
			}
		}
		items, err := s.schedule.Get(1)
		if err != nil || len(items) == 0 {
			return
		}
		s.expire(ctx, items[0].(*entry).id)
	}
}

// expire transitions one due record to EXPIRED. Expiry is a normal outcome;
// any fault here is contained so one bad record cannot stall the queue.
func (s *Service) expire(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("sla-monitor: recovered while expiring %s: %v", id, r)
		}
	}()
	_, err := s.engine.ForceTerminal(ctx, id, approval.StatusExpired, Actor, "deadline exceeded")
	switch {
	case err == nil:
		s.metrics.RecordSLABreach()
	case errors.Is(err, approval.ErrAlreadyDecided), errors.Is(err, approval.ErrNotFound):
		// Tombstone: the record resolved before its deadline.
	default:
		log.Printf("sla-monitor: failed to expire %s: %v", id, err)
	}
}
