package gatekeeper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/viant/afs"

	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	engmem "github.com/corpcraft/gatekeeper/service/approval/memory"
	"github.com/corpcraft/gatekeeper/service/audit"
	auditfs "github.com/corpcraft/gatekeeper/service/audit/fs"
	auditmem "github.com/corpcraft/gatekeeper/service/audit/memory"
	"github.com/corpcraft/gatekeeper/service/bus"
	"github.com/corpcraft/gatekeeper/service/emp"
	"github.com/corpcraft/gatekeeper/service/messaging"
	"github.com/corpcraft/gatekeeper/service/metrics"
	"github.com/corpcraft/gatekeeper/service/monitor"
)

// Service is the façade wiring the approval engine, SLA monitor, emergency
// override handler and audit log around a shared event bus. Components only
// communicate through the bus and the engine's snapshot API.
type Service struct {
	config     *Config
	policies   *policy.Store
	roles      approval.RoleResolver
	authority  emp.Authority
	auditStore audit.Store
	metrics    *metrics.Metrics

	events  *bus.Service[approval.Event]
	engine  approval.Engine
	monitor *monitor.Service
	emp     *emp.Service
	audit   *audit.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the subsystem from configuration and options. Nothing runs
// until Start.
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureBaseSetup(); err != nil {
		return nil, err
	}

	var engineOptions []engmem.Option
	var monitorOptions []monitor.Option
	var empOptions []emp.Option
	if s.metrics != nil {
		engineOptions = append(engineOptions, engmem.WithMetrics(s.metrics))
		monitorOptions = append(monitorOptions, monitor.WithMetrics(s.metrics))
		empOptions = append(empOptions, emp.WithMetrics(s.metrics))
	}
	s.engine = engmem.New(s.policies, s.roles, s.events, engineOptions...)
	s.monitor = monitor.New(s.engine, s.events, monitorOptions...)
	s.emp = emp.New(s.engine, s.policies, s.authority, empOptions...)
	s.audit = audit.New(s.auditStore, s.events)
	return s, nil
}

func (s *Service) ensureBaseSetup() error {
	if s.policies == nil {
		policies, err := policy.NewStore(s.config.Policies...)
		if err != nil {
			return err
		}
		s.policies = policies
	}
	if s.roles == nil {
		s.roles = approval.StaticRoles(s.config.Roles)
	}
	if s.authority == nil {
		s.authority = emp.NewStaticAuthority(s.config.EmergencyActors...)
	}
	if s.metrics == nil && s.config.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	if s.events == nil {
		var busOptions []bus.Option[approval.Event]
		if s.config.Queue.Vendor == messaging.VendorFS {
			busOptions = append(busOptions, bus.WithFSBaseURL[approval.Event](s.config.Queue.BaseURL))
		}
		events, err := bus.New[approval.Event](s.config.Queue.Vendor, busOptions...)
		if err != nil {
			return err
		}
		s.events = events
	}
	if s.auditStore == nil {
		switch s.config.Audit.Backend {
		case "fs":
			store, err := auditfs.New(afs.New(), s.config.Audit.BaseURL)
			if err != nil {
				return err
			}
			s.auditStore = store
		default:
			s.auditStore = auditmem.New()
		}
	}
	return nil
}

// Start brings the subsystem up: the audit log and SLA monitor subscribe
// first so no lifecycle event is missed, then the inbound action intake
// begins.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("gatekeeper already started")
	}
	if err := s.audit.Start(ctx); err != nil {
		return err
	}
	if err := s.monitor.Start(ctx); err != nil {
		s.audit.Shutdown()
		return err
	}
	sub, err := s.events.Subscribe("approval-engine", approval.TopicActionRequested)
	if err != nil {
		s.monitor.Shutdown()
		s.audit.Shutdown()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.intake(runCtx, sub)
	return nil
}

// Shutdown stops the intake, the SLA monitor's wait loop and the audit
// appender. Audit appends are synchronous, so nothing is left to flush.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.monitor.Shutdown()
		s.audit.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// intake consumes inbound action.requested events and feeds the engine.
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
		request := msg.T().Data.Request
		if request == nil {
			_ = msg.Ack()
			continue
		}
		if _, err := s.engine.OnActionRequested(ctx, request); err != nil {
			if errors.Is(err, policy.ErrUnknownActionType) {
				// Ungoverned action: pass through without a record.
				log.Printf("gatekeeper: no policy for %s, action passes ungated", request.ActionType)
				_ = msg.Ack()
				continue
			}
			_ = msg.Nack(err)
			continue
		}
		_ = msg.Ack()
	}
}

// SubmitAction synchronously routes an action through policy. It returns the
// PENDING record when the action is gated, or policy.ErrUnknownActionType
// (and no record) when no policy governs the action type.
func (s *Service) SubmitAction(ctx context.Context, request *approval.ActionRequest) (*approval.Record, error) {
	return s.engine.OnActionRequested(ctx, request)
}

// GetPendingApprovals returns snapshots of all pending records, oldest first.
func (s *Service) GetPendingApprovals(ctx context.Context) ([]*approval.Record, error) {
	return s.engine.ListPending(ctx)
}

// Decide applies a human verdict on a pending approval.
func (s *Service) Decide(ctx context.Context, id string, decision approval.Decision, decidedBy, reason string) error {
	_, err := s.engine.Decide(ctx, id, decision, decidedBy, reason)
	return err
}

// Override applies an emergency bypass on a pending approval.
func (s *Service) Override(ctx context.Context, id, actor, justification string) error {
	_, err := s.emp.Override(ctx, id, actor, justification)
	return err
}

// GetAuditLog returns audit entries in sequence order, optionally filtered
// by task id ("" for all).
func (s *Service) GetAuditLog(ctx context.Context, taskID string) ([]*audit.Entry, error) {
	return s.audit.List(ctx, taskID)
}

// GetApprovalStats recomputes aggregate statistics from the audit log.
func (s *Service) GetApprovalStats(ctx context.Context) (*audit.Stats, error) {
	return s.audit.Stats(ctx)
}

// Events exposes the bus so external actors can publish action.requested and
// subscribe to approval lifecycle topics.
func (s *Service) Events() *bus.Service[approval.Event] {
	return s.events
}

// Metrics returns the Prometheus collectors, or nil when instrumentation is
// disabled.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}
