package audit

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/bus"
)

// SubscriberName identifies the log's bus subscription.
const SubscriberName = "audit-log"

// Service consumes every approval lifecycle event and appends one immutable
// entry per event. Sequence assignment is the subsystem's single
// serialization point: one appender goroutine owns the counter, so Seq is
// strictly increasing and gap-free even under concurrent publishing.
type Service struct {
	store  Store
	events *bus.Service[approval.Event]

	// seen deduplicates deliveries by envelope id; the bus is at-least-once.
	seen cmap.ConcurrentMap[string, struct{}]
	seq  uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an audit log over the given store and event bus.
func New(store Store, events *bus.Service[approval.Event]) *Service {
	return &Service{
		store:  store,
		events: events,
		seen:   cmap.New[struct{}](),
	}
}

// Start restores the sequence counter from the store and begins consuming
// lifecycle events.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("audit log already started")
	}

	// A durable store may already hold entries from a previous run.
	existing, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	for _, entry := range existing {
		if entry.Seq > s.seq {
			s.seq = entry.Seq
		}
	}

	sub, err := s.events.Subscribe(SubscriberName,
		approval.TopicApprovalRequested,
		approval.TopicApprovalDecided,
		approval.TopicApprovalExpired,
		approval.TopicApprovalOverridden,
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.consume(runCtx, sub)
	return nil
}

// Shutdown stops the appender. Appends are synchronous relative to their
// triggering event, so there is no buffered backlog to flush.
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

func (s *Service) consume(ctx context.Context, sub *bus.Subscription[approval.Event]) {
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
		env := msg.T()
		if !s.seen.SetIfAbsent(env.ID, struct{}{}) {
			// Duplicate delivery of an already appended event.
			_ = msg.Ack()
			continue
		}
		entry := entryFrom(env)
		entry.Seq = s.seq + 1
		if err := s.store.Append(ctx, entry); err != nil {
			// Seq not consumed, dedup mark released: redelivery retries.
			s.seen.Remove(env.ID)
			log.Printf("audit-log: failed to append entry for %s: %v", env.ID, err)
			_ = msg.Nack(err)
			continue
		}
		s.seq++
		_ = msg.Ack()
	}
}

func entryFrom(env *bus.Envelope[approval.Event]) *Entry {
	event := &env.Data
	entry := &Entry{
		Timestamp:             env.CreatedAt,
		EventKind:             env.Topic,
		Actor:                 event.Actor,
		Detail:                event.Detail,
		RequiresPostHocReview: event.RequiresPostHocReview,
	}
	if rec := event.Record; rec != nil {
		entry.ApprovalID = rec.ID
		entry.TaskID = rec.TaskID
		entry.Status = rec.Status
		if latency, ok := rec.DecisionLatency(); ok {
			entry.DecisionLatency = latency
		}
	}
	return entry
}

// List returns entries in Seq order. A non-empty taskID filters to that task.
// Returned entries are copies; mutating them does not touch the log.
func (s *Service) List(ctx context.Context, taskID string) ([]*Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if taskID != "" && entry.TaskID != taskID {
			continue
		}
		ret = append(ret, entry.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Seq < ret[j].Seq })
	return ret, nil
}

// Stats recomputes aggregate statistics from the full entry set.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Stats{TotalEntries: len(entries), ByDecider: make(map[string]int)}
	var latencies []time.Duration
	for _, entry := range entries {
		switch entry.EventKind {
		case approval.TopicApprovalDecided:
			ret.Decided++
			ret.ByDecider[entry.Actor]++
			if entry.Status == approval.StatusApproved {
				ret.Approved++
			} else {
				ret.Rejected++
			}
			latencies = append(latencies, entry.DecisionLatency)
		case approval.TopicApprovalExpired:
			ret.Expired++
		case approval.TopicApprovalOverridden:
			ret.Overridden++
		}
		if entry.RequiresPostHocReview {
			ret.PendingReview++
		}
	}
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var total time.Duration
		for _, l := range latencies {
			total += l
		}
		ret.MeanDecisionLatency = total / time.Duration(len(latencies))
		idx := (len(latencies)*95 + 99) / 100
		if idx > 0 {
			idx--
		}
		ret.P95DecisionLatency = latencies[idx]
	}
	return ret, nil
}
