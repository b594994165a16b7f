package emp

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/metrics"
	"github.com/corpcraft/gatekeeper/tracing"
)

// ErrOverrideNotPermitted is returned when the record's policy forbids
// emergency bypass.
var ErrOverrideNotPermitted = errors.New("emp: override not permitted by policy")

// Authority answers whether an actor may exercise emergency powers.
type Authority interface {
	HasEmergencyAuthority(actor string) bool
}

// StaticAuthority is an Authority backed by a fixed actor set.
type StaticAuthority map[string]struct{}

// NewStaticAuthority builds an Authority from a list of actor names.
func NewStaticAuthority(actors ...string) StaticAuthority {
	ret := make(StaticAuthority, len(actors))
	for _, actor := range actors {
		ret[actor] = struct{}{}
	}
	return ret
}

// HasEmergencyAuthority reports whether the actor is in the set.
func (a StaticAuthority) HasEmergencyAuthority(actor string) bool {
	_, ok := a[actor]
	return ok
}

// Service applies emergency overrides: an authorised actor bypasses the
// normal approval immediately, and the resulting event is flagged for
// mandatory post-hoc review.
type Service struct {
	engine    approval.Engine
	policies  *policy.Store
	authority Authority
	metrics   *metrics.Metrics
}

// Option customises the handler.
type Option func(*Service)

// WithMetrics attaches Prometheus collectors to the handler.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates an emergency override handler. A nil authority denies everyone.
func New(engine approval.Engine, policies *policy.Store, authority Authority, options ...Option) *Service {
	ret := &Service{engine: engine, policies: policies, authority: authority}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Override force-terminates a pending approval. It fails with
// ErrOverrideNotPermitted when the policy forbids bypass,
// approval.ErrUnauthorized when the actor lacks emergency authority, and
// approval.ErrNotFound / approval.ErrAlreadyDecided as the engine does. All
// failures leave the record untouched.
func (s *Service) Override(ctx context.Context, id, actor, justification string) (ret *approval.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "emp.Override", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"approval.id": id, "actor": actor})

	rec, err := s.engine.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	pol, err := s.policies.Lookup(rec.ActionType)
	if err != nil {
		return nil, err
	}
	if !pol.AllowEmergencyOverride {
		return nil, fmt.Errorf("%w: %s", ErrOverrideNotPermitted, rec.ActionType)
	}
	if s.authority == nil || !s.authority.HasEmergencyAuthority(actor) {
		log.Printf("[security] emergency override of %s denied: %s lacks authority", id, actor)
		return nil, fmt.Errorf("%w: %s lacks emergency authority", approval.ErrUnauthorized, actor)
	}

	ret, err = s.engine.ForceTerminal(ctx, id, approval.StatusOverridden, actor, justification)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOverride()
	return ret, nil
}
