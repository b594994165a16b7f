package monitor

import (
	"context"
	"testing"
	"time"

	pq "github.com/Workiva/go-datastructures/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	engmem "github.com/corpcraft/gatekeeper/service/approval/memory"
	"github.com/corpcraft/gatekeeper/service/bus"
	"github.com/corpcraft/gatekeeper/service/messaging"
)

func newFixture(t *testing.T, sla time.Duration) (approval.Engine, *Service, *bus.Service[approval.Event]) {
	t.Helper()
	policies, err := policy.NewStore(
		&policy.Policy{ActionType: "deploy.prod", RequiredRole: "lead", SLA: sla, AllowEmergencyOverride: true},
	)
	require.NoError(t, err)
	events, err := bus.New[approval.Event](messaging.VendorMemory)
	require.NoError(t, err)
	roles := approval.StaticRoles{"lead-alice": {"lead"}}
	engine := engmem.New(policies, roles, events)
	monitor := New(engine, events)
	return engine, monitor, events
}

func TestExpiryAtDeadline(t *testing.T) {
	engine, monitor, events := newFixture(t, 100*time.Millisecond)
	expired, err := events.Subscribe("test", approval.TopicApprovalExpired)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Shutdown()

	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	// Not expired before the deadline.
	time.Sleep(50 * time.Millisecond)
	current, err := engine.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, current.Status)

	consumeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := expired.Consume(consumeCtx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, msg.T().Data.Record.ID)
	assert.Equal(t, Actor, msg.T().Data.Actor)
	require.NoError(t, msg.Ack())

	current, err = engine.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusExpired, current.Status)
	assert.False(t, current.DecidedAt.Before(rec.Deadline), "never expired early")
}

func TestDecidedRecordIsNotExpired(t *testing.T) {
	engine, monitor, _ := newFixture(t, 80*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Shutdown()

	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	_, err = engine.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "fast")
	require.NoError(t, err)

	// Past the deadline the stale schedule entry is a tombstone, not a
	// second transition.
	time.Sleep(150 * time.Millisecond)
	current, err := engine.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, current.Status)
}

func TestEarlierDeadlineWakesLoop(t *testing.T) {
	policies, err := policy.NewStore(
		&policy.Policy{ActionType: "deploy.prod", RequiredRole: "lead", SLA: 5 * time.Second},
		&policy.Policy{ActionType: "cache.flush", RequiredRole: "lead", SLA: 60 * time.Millisecond},
	)
	require.NoError(t, err)
	events, err := bus.New[approval.Event](messaging.VendorMemory)
	require.NoError(t, err)
	engine := engmem.New(policies, approval.StaticRoles{}, events)
	monitor := New(engine, events)

	ctx := context.Background()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Shutdown()

	// The loop first waits on a 5s deadline; the short one must pre-empt it.
	_, err = engine.OnActionRequested(ctx, &approval.ActionRequest{TaskID: "t1", ActionType: "deploy.prod", RequestedBy: "dev"})
	require.NoError(t, err)
	short, err := engine.OnActionRequested(ctx, &approval.ActionRequest{TaskID: "t2", ActionType: "cache.flush", RequestedBy: "dev"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		current, err := engine.Lookup(ctx, short.ID)
		return err == nil && current.Status == approval.StatusExpired
	}, time.Second, 10*time.Millisecond)
}

func TestSeedsExistingPending(t *testing.T) {
	engine, monitor, _ := newFixture(t, 60*time.Millisecond)
	ctx := context.Background()

	// Created before the monitor starts.
	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	require.NoError(t, monitor.Start(ctx))
	defer monitor.Shutdown()

	assert.Eventually(t, func() bool {
		current, err := engine.Lookup(ctx, rec.ID)
		return err == nil && current.Status == approval.StatusExpired
	}, time.Second, 10*time.Millisecond)
}

func TestEntryOrdering(t *testing.T) {
	now := time.Now()
	a := &entry{deadline: now.Add(time.Second), id: "a"}
	b := &entry{deadline: now.Add(2 * time.Second), id: "b"}
	c := &entry{deadline: now.Add(time.Second), id: "c"}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Negative(t, a.Compare(c), "deadline ties break on id")

	schedule := pq.NewPriorityQueue(4, false)
	require.NoError(t, schedule.Put(b, c, a))
	head := schedule.Peek().(*entry)
	assert.Equal(t, "a", head.id)
}
