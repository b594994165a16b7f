package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/corpcraft/gatekeeper/internal/clock"
	"github.com/corpcraft/gatekeeper/internal/idgen"
	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/bus"
	"github.com/corpcraft/gatekeeper/service/metrics"
	"github.com/corpcraft/gatekeeper/tracing"
)

// record pairs the approval data with its own transition lock so that
// first-caller-wins is arbitrated per id, never via an engine-wide lock.
type record struct {
	mu   sync.Mutex
	data approval.Record
}

type service struct {
	policies *policy.Store
	roles    approval.RoleResolver
	events   *bus.Service[approval.Event]
	records  cmap.ConcurrentMap[string, *record]
	metrics  *metrics.Metrics
}

// Option customises the engine.
type Option func(*service)

// WithMetrics attaches Prometheus collectors to the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) { s.metrics = m }
}

// New creates the in-memory approval engine. A nil roles resolver denies
// every decision.
func New(policies *policy.Store, roles approval.RoleResolver, events *bus.Service[approval.Event], options ...Option) approval.Engine {
	ret := &service{
		policies: policies,
		roles:    roles,
		events:   events,
		records:  cmap.New[*record](),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *service) OnActionRequested(ctx context.Context, request *approval.ActionRequest) (ret *approval.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.OnActionRequested", "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	if request == nil || request.ActionType == "" {
		return nil, fmt.Errorf("invalid action request")
	}
	span.WithAttributes(map[string]string{"action.type": request.ActionType})

	pol, err := s.policies.Lookup(request.ActionType)
	if err != nil {
		// Ungoverned action type: no record, the gap is surfaced to the caller.
		return nil, err
	}

	now := clock.Now()
	rec := &record{data: approval.Record{
		ID:           idgen.New(),
		TaskID:       request.TaskID,
		ActionType:   request.ActionType,
		RequestedBy:  request.RequestedBy,
		RequiredRole: pol.RequiredRole,
		CreatedAt:    now,
		Deadline:     now.Add(pol.SLA),
		Status:       approval.StatusPending,
	}}
	s.records.Set(rec.data.ID, rec)
	s.metrics.RecordPending(1)

	ret = rec.data.Clone()
	event := &approval.Event{Record: ret, Actor: request.RequestedBy}
	if err = s.events.Publish(ctx, approval.TopicApprovalRequested, event); err != nil {
		return ret, fmt.Errorf("failed to publish approval request %s: %w", ret.ID, err)
	}
	return ret, nil
}

func (s *service) Decide(ctx context.Context, id string, decision approval.Decision, decidedBy, reason string) (ret *approval.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Decide", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"approval.id": id, "decision": string(decision)})

	status, ok := decision.Status()
	if !ok {
		return nil, fmt.Errorf("invalid decision %q", decision)
	}
	rec, found := s.records.Get(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, id)
	}

	rec.mu.Lock()
	if rec.data.Status.Terminal() {
		current := rec.data.Status
		rec.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", approval.ErrAlreadyDecided, id, current)
	}
	if s.roles == nil || !s.roles.HasRole(decidedBy, rec.data.RequiredRole) {
		required := rec.data.RequiredRole
		rec.mu.Unlock()
		log.Printf("[security] decision on %s denied: %s does not hold role %s", id, decidedBy, required)
		return nil, fmt.Errorf("%w: %s requires role %s", approval.ErrUnauthorized, id, required)
	}
	now := clock.Now()
	rec.data.Status = status
	rec.data.DecidedBy = decidedBy
	rec.data.DecidedAt = &now
	rec.data.Reason = reason
	ret = rec.data.Clone()
	rec.mu.Unlock()

	s.metrics.RecordPending(-1)
	s.metrics.RecordTerminal(string(status))
	if latency, ok := ret.DecisionLatency(); ok {
		s.metrics.RecordDecisionLatency(latency)
	}

	event := &approval.Event{Record: ret, Actor: decidedBy, Detail: reason}
	if err = s.events.Publish(ctx, approval.TopicApprovalDecided, event); err != nil {
		return ret, fmt.Errorf("failed to publish decision for %s: %w", id, err)
	}
	return ret, nil
}

func (s *service) Lookup(_ context.Context, id string) (*approval.Record, error) {
	rec, found := s.records.Get(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.data.Clone(), nil
}

func (s *service) ListPending(_ context.Context) ([]*approval.Record, error) {
	ret := make([]*approval.Record, 0)
	for tuple := range s.records.IterBuffered() {
		rec := tuple.Val
		rec.mu.Lock()
		if rec.data.Status == approval.StatusPending {
			ret = append(ret, rec.data.Clone())
		}
		rec.mu.Unlock()
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret, nil
}

func (s *service) ForceTerminal(ctx context.Context, id string, status approval.Status, actor, detail string) (ret *approval.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.ForceTerminal", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"approval.id": id, "status": string(status)})

	if !status.Terminal() {
		return nil, fmt.Errorf("cannot force non-terminal status %s", status)
	}
	rec, found := s.records.Get(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, id)
	}

	rec.mu.Lock()
	if rec.data.Status.Terminal() {
		current := rec.data.Status
		rec.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", approval.ErrAlreadyDecided, id, current)
	}
	now := clock.Now()
	rec.data.Status = status
	rec.data.DecidedBy = actor
	rec.data.DecidedAt = &now
	rec.data.Reason = detail
	ret = rec.data.Clone()
	rec.mu.Unlock()

	s.metrics.RecordPending(-1)
	s.metrics.RecordTerminal(string(status))

	event := &approval.Event{
		Record:                ret,
		Actor:                 actor,
		Detail:                detail,
		RequiresPostHocReview: status == approval.StatusOverridden,
	}
	if err = s.events.Publish(ctx, topicFor(status), event); err != nil {
		return ret, fmt.Errorf("failed to publish %s for %s: %w", status, id, err)
	}
	return ret, nil
}

func topicFor(status approval.Status) string {
	switch status {
	case approval.StatusExpired:
		return approval.TopicApprovalExpired
	case approval.StatusOverridden:
		return approval.TopicApprovalOverridden
	default:
		return approval.TopicApprovalDecided
	}
}

var _ approval.Engine = (*service)(nil)
