package emp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	engmem "github.com/corpcraft/gatekeeper/service/approval/memory"
	"github.com/corpcraft/gatekeeper/service/bus"
	"github.com/corpcraft/gatekeeper/service/messaging"
)

func newFixture(t *testing.T) (approval.Engine, *Service, *bus.Service[approval.Event], *policy.Store) {
	t.Helper()
	policies, err := policy.NewStore(
		&policy.Policy{ActionType: "deploy.prod", RequiredRole: "lead", SLA: 5 * time.Second, AllowEmergencyOverride: true},
		&policy.Policy{ActionType: "db.drop", RequiredRole: "dba", SLA: 5 * time.Second, AllowEmergencyOverride: false},
	)
	require.NoError(t, err)
	events, err := bus.New[approval.Event](messaging.VendorMemory)
	require.NoError(t, err)
	engine := engmem.New(policies, approval.StaticRoles{"lead-alice": {"lead"}}, events)
	handler := New(engine, policies, NewStaticAuthority("cto-carol"))
	return engine, handler, events, policies
}

func TestOverride(t *testing.T) {
	engine, handler, events, _ := newFixture(t)
	overridden, err := events.Subscribe("test", approval.TopicApprovalOverridden)
	require.NoError(t, err)

	ctx := context.Background()
	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	result, err := handler.Override(ctx, rec.ID, "cto-carol", "prod outage, incident 42")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusOverridden, result.Status)
	assert.Equal(t, "cto-carol", result.DecidedBy)
	assert.Equal(t, "prod outage, incident 42", result.Reason)

	msg, err := overridden.Consume(ctx)
	require.NoError(t, err)
	assert.True(t, msg.T().Data.RequiresPostHocReview)
	require.NoError(t, msg.Ack())
}

func TestOverrideNotPermitted(t *testing.T) {
	engine, handler, _, _ := newFixture(t)
	ctx := context.Background()
	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "db.drop", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	_, err = handler.Override(ctx, rec.ID, "cto-carol", "hurry")
	assert.True(t, errors.Is(err, ErrOverrideNotPermitted))

	current, err := engine.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, current.Status, "record stays pending")
}

func TestOverrideUnauthorized(t *testing.T) {
	engine, handler, _, _ := newFixture(t)
	ctx := context.Background()
	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	_, err = handler.Override(ctx, rec.ID, "dev-bob", "trust me")
	assert.True(t, errors.Is(err, approval.ErrUnauthorized))

	current, err := engine.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, current.Status)
}

func TestOverrideRaces(t *testing.T) {
	engine, handler, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := handler.Override(ctx, "no-such-id", "cto-carol", "x")
	assert.True(t, errors.Is(err, approval.ErrNotFound))

	rec, err := engine.OnActionRequested(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)
	_, err = engine.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "done first")
	require.NoError(t, err)

	_, err = handler.Override(ctx, rec.ID, "cto-carol", "too late")
	assert.True(t, errors.Is(err, approval.ErrAlreadyDecided))
}
